package usage

import (
	"context"
	"errors"
	"testing"

	"github.com/harms-haus/jestir/internal/story"
)

type fakeStore struct {
	records []Record
	err     error
}

func (s *fakeStore) Close(ctx context.Context) error        { return nil }
func (s *fakeStore) EnsureSchema(ctx context.Context) error { return nil }

func (s *fakeStore) Append(ctx context.Context, rec Record) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeStore) Summarize(ctx context.Context) (*Summary, error) {
	return &Summary{}, nil
}

func TestTrack(t *testing.T) {
	t.Run("records and rolls up", func(t *testing.T) {
		store := &fakeStore{}
		tracker := NewTracker(store, nil)
		sc := story.New()

		tracker.Track(context.Background(), sc, "openai", "extraction", "gpt-4o-mini", 1000, 500)
		tracker.Track(context.Background(), sc, "openai", "candidate_extraction", "gpt-4o-mini", 200, 100)

		if len(store.records) != 2 {
			t.Fatalf("expected 2 ledger records, got %d", len(store.records))
		}
		rec := store.records[0]
		if rec.ID == "" {
			t.Fatalf("record has no id")
		}
		if rec.Operation != "extraction" || rec.Model != "gpt-4o-mini" {
			t.Fatalf("unexpected record: %+v", rec)
		}

		counters := sc.Metadata.TokenUsage
		if counters.TotalCalls != 2 {
			t.Fatalf("expected 2 calls, got %d", counters.TotalCalls)
		}
		if counters.TotalTokens != 1800 {
			t.Fatalf("expected 1800 tokens, got %d", counters.TotalTokens)
		}
		if counters.TotalCostUSD <= 0 {
			t.Fatalf("expected positive cost, got %v", counters.TotalCostUSD)
		}
		if counters.LastUpdated == "" {
			t.Fatalf("last_updated not set")
		}
	})

	t.Run("ledger failure does not lose counters", func(t *testing.T) {
		tracker := NewTracker(&fakeStore{err: errors.New("disk full")}, nil)
		sc := story.New()
		tracker.Track(context.Background(), sc, "openai", "extraction", "gpt-4o", 10, 10)
		if sc.Metadata.TokenUsage.TotalCalls != 1 {
			t.Fatalf("counters must update even when the ledger fails")
		}
	})

	t.Run("nil store keeps counters only", func(t *testing.T) {
		tracker := NewTracker(nil, nil)
		sc := story.New()
		tracker.Track(context.Background(), sc, "openai", "extraction", "gpt-4o", 10, 10)
		if sc.Metadata.TokenUsage.TotalCalls != 1 {
			t.Fatalf("counters must update without a ledger")
		}
	})
}
