package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/harms-haus/jestir/internal/story"
	"github.com/harms-haus/jestir/internal/usage"
)

type fakeLoader struct {
	sc  *story.Context
	err error
}

func (l *fakeLoader) Load() (*story.Context, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.sc, nil
}

type fakeLedger struct {
	summary *usage.Summary
}

func (l *fakeLedger) Close(ctx context.Context) error        { return nil }
func (l *fakeLedger) EnsureSchema(ctx context.Context) error { return nil }

func (l *fakeLedger) Append(ctx context.Context, rec usage.Record) error { return nil }

func (l *fakeLedger) Summarize(ctx context.Context) (*usage.Summary, error) {
	return l.summary, nil
}

func testContext(t *testing.T) *story.Context {
	t.Helper()
	sc := story.New()
	idx := sc.AppendUserInput("Lily visits the Magic Forest")
	for _, e := range []*story.Entity{
		{ID: "char_001", Type: story.TypeCharacter, Name: "Lily", Existing: true, ExternalRef: "graph://lily", Provenance: []int{idx}},
		{ID: "loc_001", Type: story.TypeLocation, Name: "Magic Forest", Provenance: []int{idx}},
	} {
		if err := sc.AddEntity(e); err != nil {
			t.Fatalf("seeding entity: %v", err)
		}
	}
	if err := sc.AddRelationship(&story.Relationship{
		Type:        "visits",
		Subject:     story.IDList{"char_001"},
		Object:      story.IDList{"loc_001"},
		MentionedAt: []int{idx},
	}); err != nil {
		t.Fatalf("seeding relationship: %v", err)
	}
	return sc
}

func testServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(&fakeLoader{sc: testContext(t)}, nil, "test")
}

func TestHandleGetEntity(t *testing.T) {
	s := testServer(t)

	t.Run("by id", func(t *testing.T) {
		_, out, err := s.handleGetEntity(context.Background(), nil, GetEntityInput{ID: "char_001"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out.Name != "Lily" || !out.Existing || out.ExternalRef != "graph://lily" {
			t.Fatalf("unexpected output: %+v", out)
		}
	})

	t.Run("by name without type", func(t *testing.T) {
		_, out, err := s.handleGetEntity(context.Background(), nil, GetEntityInput{Name: "magic forest"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out.ID != "loc_001" {
			t.Fatalf("unexpected output: %+v", out)
		}
	})

	t.Run("not found", func(t *testing.T) {
		if _, _, err := s.handleGetEntity(context.Background(), nil, GetEntityInput{ID: "char_099"}); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("no selector", func(t *testing.T) {
		if _, _, err := s.handleGetEntity(context.Background(), nil, GetEntityInput{}); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("loader failure propagates", func(t *testing.T) {
		broken := NewServer(&fakeLoader{err: errors.New("corrupt")}, nil, "test")
		if _, _, err := broken.handleGetEntity(context.Background(), nil, GetEntityInput{ID: "char_001"}); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestHandleListEntities(t *testing.T) {
	s := testServer(t)

	t.Run("all", func(t *testing.T) {
		_, out, err := s.handleListEntities(context.Background(), nil, ListEntitiesInput{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(out.Entities) != 2 {
			t.Fatalf("expected 2 entities, got %+v", out.Entities)
		}
		// Sorted by id: char before loc.
		if out.Entities[0].ID != "char_001" || out.Entities[1].ID != "loc_001" {
			t.Fatalf("unexpected order: %+v", out.Entities)
		}
	})

	t.Run("filtered by type", func(t *testing.T) {
		_, out, err := s.handleListEntities(context.Background(), nil, ListEntitiesInput{Type: story.TypeLocation})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(out.Entities) != 1 || out.Entities[0].Name != "Magic Forest" {
			t.Fatalf("unexpected entities: %+v", out.Entities)
		}
	})
}

func TestHandleListRelationships(t *testing.T) {
	s := testServer(t)

	t.Run("all", func(t *testing.T) {
		_, out, err := s.handleListRelationships(context.Background(), nil, ListRelationshipsInput{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(out.Relationships) != 1 || out.Relationships[0].Type != "visits" {
			t.Fatalf("unexpected relationships: %+v", out.Relationships)
		}
	})

	t.Run("scoped to entity", func(t *testing.T) {
		_, out, err := s.handleListRelationships(context.Background(), nil, ListRelationshipsInput{Entity: "loc_001"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(out.Relationships) != 1 {
			t.Fatalf("expected 1 relationship, got %+v", out.Relationships)
		}
		_, out, err = s.handleListRelationships(context.Background(), nil, ListRelationshipsInput{Entity: "char_099"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(out.Relationships) != 0 {
			t.Fatalf("expected no relationships, got %+v", out.Relationships)
		}
	})
}

func TestHandleGetUsageSummary(t *testing.T) {
	t.Run("from ledger", func(t *testing.T) {
		ledger := &fakeLedger{summary: &usage.Summary{
			TotalCalls:   4,
			TotalTokens:  2000,
			TotalCostUSD: 0.01,
			Models:       []usage.ModelTotal{{Model: "gpt-4o-mini", Calls: 4, Tokens: 2000, CostUSD: 0.01}},
		}}
		s := NewServer(&fakeLoader{sc: testContext(t)}, ledger, "test")
		_, out, err := s.handleGetUsageSummary(context.Background(), nil, GetUsageSummaryInput{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out.TotalCalls != 4 || len(out.Models) != 1 {
			t.Fatalf("unexpected summary: %+v", out)
		}
	})

	t.Run("falls back to context counters", func(t *testing.T) {
		sc := testContext(t)
		sc.Metadata.TokenUsage.TotalCalls = 7
		sc.Metadata.TokenUsage.TotalTokens = 900
		s := NewServer(&fakeLoader{sc: sc}, nil, "test")
		_, out, err := s.handleGetUsageSummary(context.Background(), nil, GetUsageSummaryInput{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out.TotalCalls != 7 || out.TotalTokens != 900 {
			t.Fatalf("unexpected summary: %+v", out)
		}
	})
}
