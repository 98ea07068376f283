// Package llm is the language-model collaborator boundary. The rest of the
// pipeline only sees the Generator interface; everything HTTP-shaped stays
// here.
package llm

import (
	"context"
	"errors"
)

// ErrUnavailable wraps every transport-level failure after retries are
// exhausted. Callers that can degrade (candidate extraction has a local
// fallback) branch on it with errors.Is.
var ErrUnavailable = errors.New("language model unavailable")

// Request is a single system/user prompt pair.
type Request struct {
	System string
	User   string
}

// Result carries the response text plus the token counts the usage ledger
// records.
type Result struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Generator performs one request/response completion call.
type Generator interface {
	Complete(ctx context.Context, req Request) (*Result, error)
	Model() string
}
