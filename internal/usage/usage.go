// Package usage is the token-usage ledger. Every model call the pipeline
// makes is appended as a record; rollups feed both the context file's
// counters and the usage command.
package usage

import (
	"context"
	"time"
)

// Record is one model call.
type Record struct {
	ID               string
	Service          string
	Operation        string
	Model            string
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
	CreatedAt        time.Time
}

// ModelTotal is the per-model rollup inside a Summary.
type ModelTotal struct {
	Model   string
	Calls   int
	Tokens  int
	CostUSD float64
}

// Summary is the ledger rollup reported by the usage command and the MCP
// server.
type Summary struct {
	TotalCalls   int
	TotalTokens  int
	TotalCostUSD float64
	Models       []ModelTotal
}

// Store is a usage ledger backend.
type Store interface {
	Close(ctx context.Context) error
	EnsureSchema(ctx context.Context) error
	Append(ctx context.Context, rec Record) error
	Summarize(ctx context.Context) (*Summary, error)
}
