// Package resolve finds which known knowledge-graph entities a piece of
// story text refers to. The extractor narrows the graph's label list down
// to candidates; the resolver then looks the candidates up iteratively and
// pairs them with graph records.
package resolve

import (
	"context"
	"log/slog"
	"strings"

	"github.com/harms-haus/jestir/internal/llm"
	"github.com/harms-haus/jestir/internal/story"
)

// UsageFunc records token usage for one model call. Optional.
type UsageFunc func(operation string, promptTokens, completionTokens int)

// Extractor selects which known graph labels a story input plausibly
// mentions.
type Extractor struct {
	gen     llm.Generator
	log     *slog.Logger
	OnUsage UsageFunc
}

func NewExtractor(gen llm.Generator, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{gen: gen, log: log}
}

// Candidates returns the subset of labels referenced by inputText, in the
// label list's spelling. The model does the selection; labels it invents
// are dropped. Any generator failure degrades to a local substring scan
// so one misbehaving collaborator cannot abort the whole invocation.
func (e *Extractor) Candidates(ctx context.Context, inputText string, labels []string) ([]string, error) {
	if len(labels) == 0 {
		return nil, nil
	}

	result, err := e.gen.Complete(ctx, llm.CandidatePrompt(inputText, labels))
	if err != nil {
		e.log.Warn("candidate extraction failed, falling back to text scan", "error", err)
		return scanLabels(inputText, labels), nil
	}
	if e.OnUsage != nil {
		e.OnUsage("candidate_extraction", result.PromptTokens, result.CompletionTokens)
	}

	picked, err := llm.ParseLabels(result.Text)
	if err != nil {
		e.log.Warn("unparseable candidate response, falling back to text scan", "error", err)
		return scanLabels(inputText, labels), nil
	}

	known := make(map[string]string, len(labels))
	for _, label := range labels {
		known[story.NormalizeName(label)] = label
	}

	var out []string
	seen := make(map[string]bool)
	for _, p := range picked {
		canonical, ok := known[story.NormalizeName(p)]
		if !ok {
			e.log.Warn("model returned a label the graph does not know, dropping", "label", p)
			continue
		}
		if !seen[canonical] {
			seen[canonical] = true
			out = append(out, canonical)
		}
	}
	return out, nil
}

// scanLabels is the offline fallback: a label is a candidate when it
// appears verbatim (case-insensitively) in the input text.
func scanLabels(inputText string, labels []string) []string {
	text := story.NormalizeName(inputText)
	var out []string
	for _, label := range labels {
		norm := story.NormalizeName(label)
		if norm == "" {
			continue
		}
		if strings.Contains(text, norm) {
			out = append(out, label)
		}
	}
	return out
}
