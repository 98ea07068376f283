// Package pipeline runs one context invocation end to end: record the
// input, extract entities and relationships, resolve candidates against
// the knowledge graph, and merge everything into the story context. The
// pipeline degrades rather than fails: a dead model falls back to a local
// scan, a dead graph means everything is created new, and both
// degradations are reported in the result.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/harms-haus/jestir/internal/config"
	"github.com/harms-haus/jestir/internal/llm"
	"github.com/harms-haus/jestir/internal/match"
	"github.com/harms-haus/jestir/internal/merge"
	"github.com/harms-haus/jestir/internal/resolve"
	"github.com/harms-haus/jestir/internal/story"
	"github.com/harms-haus/jestir/internal/usage"
)

// GraphService is the slice of the graph client the pipeline needs.
type GraphService interface {
	ListLabels(ctx context.Context) ([]string, error)
	Query(ctx context.Context, query string) (string, error)
}

// Result reports what one invocation did.
type Result struct {
	Context   *story.Context
	Decisions []merge.Decision
	Rounds    int

	// LookupErr is set when the graph was unreachable and the run
	// degraded to creating entities as new. The context is still valid.
	LookupErr error

	// ExtractionFallback is true when the model was unreachable and the
	// local capitalized-word scan supplied the entities.
	ExtractionFallback bool
}

// Pipeline wires the collaborators for a context invocation.
type Pipeline struct {
	cfg     *config.Config
	gen     llm.Generator
	graph   GraphService
	tracker *usage.Tracker
	log     *slog.Logger

	matcher   *match.Matcher
	extractor *resolve.Extractor
	resolver  *resolve.Resolver
	merger    *merge.Merger
}

func New(cfg *config.Config, gen llm.Generator, graphSvc GraphService, tracker *usage.Tracker, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if tracker == nil {
		tracker = usage.NewTracker(nil, log)
	}
	matcher := match.New(cfg.Matcher)
	return &Pipeline{
		cfg:       cfg,
		gen:       gen,
		graph:     graphSvc,
		tracker:   tracker,
		log:       log,
		matcher:   matcher,
		extractor: resolve.NewExtractor(gen, log),
		resolver:  resolve.NewResolver(graphSvc, matcher, log),
		merger:    merge.New(log),
	}
}

// Run processes one user input against the context. The context is
// modified in place; the caller decides whether to persist it.
func (p *Pipeline) Run(ctx context.Context, sc *story.Context, inputText string) (*Result, error) {
	inputText = strings.TrimSpace(inputText)
	if inputText == "" {
		return nil, fmt.Errorf("input text is empty")
	}

	result := &Result{Context: sc}
	idx := sc.AppendUserInput(inputText)
	p.extractor.OnUsage = func(operation string, prompt, completion int) {
		p.tracker.Track(ctx, sc, "openai", operation, p.gen.Model(), prompt, completion)
	}

	extraction := p.extract(ctx, sc, inputText, result)

	for _, point := range ExtractPlotPoints(inputText) {
		sc.AddPlotPoint(point)
	}

	labels := p.listLabels(ctx, result)
	candidates, err := p.extractor.Candidates(ctx, inputText, labels)
	if err != nil {
		return nil, err
	}

	toResolve, direct := p.partition(extraction.Entities, candidates)

	outcome, err := p.resolver.Resolve(ctx, toResolve)
	if err != nil {
		p.log.Warn("graph lookup failed, creating candidates as new entities", "error", err)
		result.LookupErr = err
	}
	result.Rounds = outcome.Rounds

	incoming := p.buildIncoming(extraction.Entities, outcome, direct)
	decisions, idMap, err := p.merger.Apply(sc, incoming, idx)
	if err != nil {
		return nil, fmt.Errorf("merging entities: %w", err)
	}
	result.Decisions = decisions

	relDecisions, err := p.merger.ApplyRelationships(sc, toRelationships(extraction.Relationships), idMap, idx)
	if err != nil {
		return nil, fmt.Errorf("merging relationships: %w", err)
	}
	result.Decisions = append(result.Decisions, relDecisions...)

	return result, nil
}

// extract runs the model extraction, falling back to a local scan when
// the model is unreachable or its output is unusable.
func (p *Pipeline) extract(ctx context.Context, sc *story.Context, inputText string, result *Result) *llm.Extraction {
	res, err := p.gen.Complete(ctx, llm.ExtractionPrompt(inputText))
	if err != nil {
		p.log.Warn("model extraction failed, using fallback scan", "error", err)
		result.ExtractionFallback = true
		return FallbackExtraction(inputText)
	}
	p.tracker.Track(ctx, sc, "openai", "extraction", p.gen.Model(), res.PromptTokens, res.CompletionTokens)

	extraction, err := llm.ParseExtraction(res.Text)
	if err != nil {
		p.log.Warn("unparseable extraction response, using fallback scan", "error", err)
		result.ExtractionFallback = true
		return FallbackExtraction(inputText)
	}
	return extraction
}

func (p *Pipeline) listLabels(ctx context.Context, result *Result) []string {
	if p.graph == nil {
		return nil
	}
	labels, err := p.graph.ListLabels(ctx)
	if err != nil {
		p.log.Warn("could not list graph labels", "error", err)
		result.LookupErr = err
		return nil
	}
	return labels
}

// partition splits extracted entities into those worth looking up (their
// name matches a known graph label) and those that go straight to the
// merge as new.
func (p *Pipeline) partition(entities []llm.ExtractedEntity, candidateLabels []string) (toResolve []resolve.Candidate, direct map[string]bool) {
	direct = make(map[string]bool)
	for _, e := range entities {
		if _, _, ok := p.matcher.BestCandidate(e.Name, candidateLabels); ok {
			toResolve = append(toResolve, resolve.Candidate{Name: e.Name, Type: e.Type})
		} else {
			direct[e.ID] = true
		}
	}
	return toResolve, direct
}

func (p *Pipeline) buildIncoming(entities []llm.ExtractedEntity, outcome *resolve.Outcome, direct map[string]bool) []merge.Incoming {
	matches := make(map[string]*match.Result, len(outcome.Resolved))
	for i := range outcome.Resolved {
		res := outcome.Resolved[i]
		matches[story.NormalizeName(res.Candidate.Name)] = &res.Match
	}

	incoming := make([]merge.Incoming, 0, len(entities))
	for _, e := range entities {
		inc := merge.Incoming{Entity: toEntity(e)}
		if !direct[e.ID] {
			inc.Match = matches[story.NormalizeName(e.Name)]
		}
		incoming = append(incoming, inc)
	}
	return incoming
}

func toEntity(e llm.ExtractedEntity) *story.Entity {
	return &story.Entity{
		ID:          e.ID,
		Type:        e.Type,
		Subtype:     e.Subtype,
		Name:        e.Name,
		Description: e.Description,
		Properties:  e.Properties,
	}
}

func toRelationships(rels []llm.ExtractedRelationship) []*story.Relationship {
	out := make([]*story.Relationship, 0, len(rels))
	for _, r := range rels {
		out = append(out, &story.Relationship{
			Type:     r.Type,
			Subject:  story.IDList(r.Subject),
			Object:   story.IDList(r.Object),
			Location: r.Location,
			Metadata: r.Metadata,
		})
	}
	return out
}

var plotPointPattern = regexp.MustCompile(`\b(wants to|needs to|goes to|finds|discovers)\b`)

// ExtractPlotPoints pulls action sentences out of the input text.
func ExtractPlotPoints(inputText string) []string {
	var points []string
	for _, sentence := range splitSentences(inputText) {
		if plotPointPattern.MatchString(sentence) {
			points = append(points, sentence)
		}
	}
	return points
}

func splitSentences(text string) []string {
	var sentences []string
	for _, s := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

var capitalizedWord = regexp.MustCompile(`\b[A-Z][a-z]+\b`)

// Words that start sentences without naming anyone.
var fallbackStopwords = map[string]bool{
	"A": true, "An": true, "The": true, "And": true, "But": true,
	"He": true, "She": true, "It": true, "They": true, "Then": true,
	"When": true, "Where": true, "While": true, "After": true,
	"Before": true, "In": true, "On": true, "At": true, "With": true,
}

// FallbackExtraction is the offline substitute for model extraction:
// capitalized words become provisional characters so the pipeline still
// produces something useful without a model.
func FallbackExtraction(inputText string) *llm.Extraction {
	extraction := &llm.Extraction{}
	seen := make(map[string]bool)
	n := 0
	for _, word := range capitalizedWord.FindAllString(inputText, -1) {
		if fallbackStopwords[word] || seen[word] {
			continue
		}
		seen[word] = true
		n++
		extraction.Entities = append(extraction.Entities, llm.ExtractedEntity{
			ID:   fmt.Sprintf("char_%03d", n),
			Type: story.TypeCharacter,
			Name: word,
		})
	}
	return extraction
}
