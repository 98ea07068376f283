package resolve

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/harms-haus/jestir/internal/llm"
)

type fakeGenerator struct {
	text string
	err  error
}

func (g *fakeGenerator) Complete(ctx context.Context, req llm.Request) (*llm.Result, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &llm.Result{Text: g.text, PromptTokens: 10, CompletionTokens: 5}, nil
}

func (g *fakeGenerator) Model() string { return "fake" }

func TestCandidates(t *testing.T) {
	labels := []string{"Lily", "Magic Forest", "Wendy Whisk"}

	t.Run("model picks known labels", func(t *testing.T) {
		e := NewExtractor(&fakeGenerator{text: `["Lily", "Magic Forest"]`}, nil)
		got, err := e.Candidates(context.Background(), "Lily walks into the Magic Forest", labels)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		want := []string{"Lily", "Magic Forest"}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("candidates = %#v, want %#v", got, want)
		}
	})

	t.Run("invented labels dropped", func(t *testing.T) {
		e := NewExtractor(&fakeGenerator{text: `["Lily", "Dragon King"]`}, nil)
		got, err := e.Candidates(context.Background(), "Lily meets someone", labels)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !reflect.DeepEqual(got, []string{"Lily"}) {
			t.Fatalf("candidates = %#v, want [Lily]", got)
		}
	})

	t.Run("case differences map to canonical label", func(t *testing.T) {
		e := NewExtractor(&fakeGenerator{text: `["magic forest"]`}, nil)
		got, err := e.Candidates(context.Background(), "into the magic forest", labels)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !reflect.DeepEqual(got, []string{"Magic Forest"}) {
			t.Fatalf("candidates = %#v, want [Magic Forest]", got)
		}
	})

	t.Run("model unavailable falls back to text scan", func(t *testing.T) {
		gen := &fakeGenerator{err: fmt.Errorf("%w: connection refused", llm.ErrUnavailable)}
		e := NewExtractor(gen, nil)
		got, err := e.Candidates(context.Background(), "Lily visits the Magic Forest today", labels)
		if err != nil {
			t.Fatalf("expected graceful fallback, got %v", err)
		}
		want := []string{"Lily", "Magic Forest"}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("candidates = %#v, want %#v", got, want)
		}
	})

	t.Run("non-transport error also falls back to text scan", func(t *testing.T) {
		gen := &fakeGenerator{err: fmt.Errorf("extraction endpoint returned status 400: bad request")}
		e := NewExtractor(gen, nil)
		got, err := e.Candidates(context.Background(), "Wendy Whisk bakes for Lily", labels)
		if err != nil {
			t.Fatalf("expected graceful fallback, got %v", err)
		}
		want := []string{"Lily", "Wendy Whisk"}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("candidates = %#v, want %#v", got, want)
		}
	})

	t.Run("no labels means no work", func(t *testing.T) {
		e := NewExtractor(&fakeGenerator{text: `[]`}, nil)
		got, err := e.Candidates(context.Background(), "anything", nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got != nil {
			t.Fatalf("expected no candidates, got %#v", got)
		}
	})

	t.Run("usage callback fires", func(t *testing.T) {
		e := NewExtractor(&fakeGenerator{text: `["Lily"]`}, nil)
		var op string
		var prompt, completion int
		e.OnUsage = func(operation string, p, c int) {
			op, prompt, completion = operation, p, c
		}
		if _, err := e.Candidates(context.Background(), "Lily", labels); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if op != "candidate_extraction" || prompt != 10 || completion != 5 {
			t.Fatalf("unexpected usage: %s %d/%d", op, prompt, completion)
		}
	})
}
