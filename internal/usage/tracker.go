package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/harms-haus/jestir/internal/story"
)

// Tracker records model calls into the ledger and rolls them up into the
// context's counters. A nil store disables the ledger but keeps the
// counters; ledger write failures are logged and swallowed because
// accounting must never fail a story operation.
type Tracker struct {
	store Store
	log   *slog.Logger
}

func NewTracker(store Store, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{store: store, log: log}
}

// Track records one model call.
func (t *Tracker) Track(ctx context.Context, sc *story.Context, service, operation, model string, promptTokens, completionTokens int) {
	cost := Cost(model, promptTokens, completionTokens)

	if sc != nil {
		sc.Metadata.TokenUsage.TotalCalls++
		sc.Metadata.TokenUsage.TotalTokens += promptTokens + completionTokens
		sc.Metadata.TokenUsage.TotalCostUSD += cost
		sc.Metadata.TokenUsage.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	}

	if t.store == nil {
		return
	}
	rec := Record{
		ID:               uuid.NewString(),
		Service:          service,
		Operation:        operation,
		Model:            model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		CostUSD:          cost,
		CreatedAt:        time.Now().UTC(),
	}
	if err := t.store.Append(ctx, rec); err != nil {
		t.log.Warn("could not append usage record", "operation", operation, "error", err)
	}
}
