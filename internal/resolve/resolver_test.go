package resolve

import (
	"context"
	"errors"
	"testing"

	"github.com/harms-haus/jestir/internal/config"
	"github.com/harms-haus/jestir/internal/match"
)

type fakeLookup struct {
	responses []string
	err       error
	queries   []string
}

func (l *fakeLookup) Query(ctx context.Context, query string) (string, error) {
	l.queries = append(l.queries, query)
	if l.err != nil {
		return "", l.err
	}
	if len(l.responses) == 0 {
		return "", nil
	}
	resp := l.responses[0]
	l.responses = l.responses[1:]
	return resp, nil
}

func testResolver(lookup Lookup) *Resolver {
	m := match.New(config.MatcherConfig{
		ExactThreshold:      0.95,
		HighThreshold:       0.8,
		LowThreshold:        0.5,
		TypeMismatchPenalty: 0.5,
	})
	return NewResolver(lookup, m, nil)
}

func TestResolve(t *testing.T) {
	t.Run("all resolved across two rounds", func(t *testing.T) {
		lookup := &fakeLookup{responses: []string{
			"Lily (character): A curious young girl.\n" +
				"Magic Forest (location): An enchanted woodland.\n" +
				"Pip (character): A brave little mouse.",
			"Wendy Whisk (character): The village baker.\n" +
				"Moonstone (item): A softly glowing gem.",
		}}
		r := testResolver(lookup)

		candidates := []Candidate{
			{Name: "Lily", Type: "character"},
			{Name: "Magic Forest", Type: "location"},
			{Name: "Pip", Type: "character"},
			{Name: "Wendy Whisk", Type: "character"},
			{Name: "Moonstone", Type: "item"},
		}
		outcome, err := r.Resolve(context.Background(), candidates)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if outcome.Rounds != 2 {
			t.Fatalf("expected 2 rounds, got %d", outcome.Rounds)
		}
		if len(outcome.Resolved) != 5 {
			t.Fatalf("expected 5 resolutions, got %d", len(outcome.Resolved))
		}
		if len(outcome.New) != 0 {
			t.Fatalf("expected no new candidates, got %#v", outcome.New)
		}
		if len(lookup.queries) != 2 {
			t.Fatalf("expected 2 queries, got %d", len(lookup.queries))
		}
	})

	t.Run("stuck round reports remainder as new", func(t *testing.T) {
		lookup := &fakeLookup{responses: []string{
			"Lily (character): A curious young girl.",
			"I have no information about those entities.",
		}}
		r := testResolver(lookup)

		outcome, err := r.Resolve(context.Background(), []Candidate{
			{Name: "Lily", Type: "character"},
			{Name: "Sir Nobody", Type: "character"},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(outcome.Resolved) != 1 || outcome.Resolved[0].Candidate.Name != "Lily" {
			t.Fatalf("unexpected resolutions: %+v", outcome.Resolved)
		}
		if len(outcome.New) != 1 || outcome.New[0].Name != "Sir Nobody" {
			t.Fatalf("unexpected new candidates: %+v", outcome.New)
		}
		if outcome.Rounds != 2 {
			t.Fatalf("expected 2 rounds, got %d", outcome.Rounds)
		}
	})

	t.Run("lookup failure degrades to all new", func(t *testing.T) {
		lookup := &fakeLookup{err: errors.New("connection refused")}
		r := testResolver(lookup)

		outcome, err := r.Resolve(context.Background(), []Candidate{
			{Name: "Lily", Type: "character"},
			{Name: "Pip", Type: "character"},
		})
		if err == nil {
			t.Fatalf("expected an error")
		}
		if outcome == nil || len(outcome.New) != 2 {
			t.Fatalf("expected both candidates reported new, got %+v", outcome)
		}
	})

	t.Run("exact resolution carries the graph record", func(t *testing.T) {
		lookup := &fakeLookup{responses: []string{
			"Lily (character): A curious young girl.",
		}}
		r := testResolver(lookup)

		outcome, err := r.Resolve(context.Background(), []Candidate{{Name: "Lily", Type: "character"}})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		res := outcome.Resolved[0]
		if res.Match.Band != match.BandExact {
			t.Fatalf("expected exact band, got %s", res.Match.Band)
		}
		if res.Match.Record.Description != "A curious young girl." {
			t.Fatalf("unexpected record: %+v", res.Match.Record)
		}
		if res.Match.Record.Type != "character" {
			t.Fatalf("unexpected record type: %q", res.Match.Record.Type)
		}
	})

	t.Run("weak record is reported as a near miss", func(t *testing.T) {
		// "Lily Lavender" pairs with "Lily" but the partial containment
		// plus the type mismatch scores below acceptance.
		lookup := &fakeLookup{responses: []string{
			"Lily Lavender (location): A meadow at the edge of the village.",
		}}
		r := testResolver(lookup)

		outcome, err := r.Resolve(context.Background(), []Candidate{{Name: "Lily", Type: "character"}})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(outcome.Resolved) != 0 {
			t.Fatalf("weak record must not resolve, got %+v", outcome.Resolved)
		}
		if len(outcome.New) != 1 || outcome.New[0].Name != "Lily" {
			t.Fatalf("candidate must stay new, got %+v", outcome.New)
		}
		if len(outcome.NearMisses) != 1 {
			t.Fatalf("expected 1 near miss, got %+v", outcome.NearMisses)
		}
		nm := outcome.NearMisses[0]
		if nm.Match.Record.Name != "Lily Lavender" || nm.Match.Accepted() {
			t.Fatalf("unexpected near miss: %+v", nm)
		}
	})

	t.Run("no candidates no queries", func(t *testing.T) {
		lookup := &fakeLookup{}
		r := testResolver(lookup)
		outcome, err := r.Resolve(context.Background(), nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if outcome.Rounds != 0 || len(lookup.queries) != 0 {
			t.Fatalf("expected no rounds, got %+v", outcome)
		}
	})
}
