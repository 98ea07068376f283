package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/harms-haus/jestir/internal/match"
)

// Lookup is the slice of the graph client the resolver needs.
type Lookup interface {
	Query(ctx context.Context, query string) (string, error)
}

// Candidate is one name to resolve, with the entity type the extractor
// believes it has (may be empty).
type Candidate struct {
	Name string
	Type string
}

// Resolution pairs a candidate with the graph record it resolved to.
type Resolution struct {
	Candidate Candidate
	Match     match.Result
}

// Outcome is the result of a resolution run. Candidates the graph could
// not answer end up in New; the caller creates fresh entities for them.
// NearMisses records graph answers that paired with a candidate but scored
// too weak to accept, so the audit trail shows why a candidate stayed new.
type Outcome struct {
	Resolved   []Resolution
	New        []Candidate
	NearMisses []Resolution
	Rounds     int
}

// Resolver looks candidates up in the graph in rounds. Each round sends
// one batched query for everything still unresolved; a round that resolves
// nothing ends the run, so the loop is bounded by the candidate count.
type Resolver struct {
	lookup  Lookup
	matcher *match.Matcher
	log     *slog.Logger
}

func NewResolver(lookup Lookup, matcher *match.Matcher, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{lookup: lookup, matcher: matcher, log: log}
}

// Resolve runs the lookup loop. A lookup failure is not fatal: the
// remaining candidates are reported as new alongside the error so the
// caller can both create them and surface the degradation.
func (r *Resolver) Resolve(ctx context.Context, candidates []Candidate) (*Outcome, error) {
	outcome := &Outcome{}
	unresolved := make([]Candidate, len(candidates))
	copy(unresolved, candidates)

	for len(unresolved) > 0 && outcome.Rounds < len(candidates) {
		outcome.Rounds++

		resp, err := r.lookup.Query(ctx, batchQuery(unresolved))
		if err != nil {
			outcome.New = append(outcome.New, unresolved...)
			return outcome, fmt.Errorf("resolving %d candidates: %w", len(unresolved), err)
		}

		progress := false
		for _, rec := range parseRecords(resp) {
			name, _, ok := r.matcher.BestCandidate(rec.Name, names(unresolved))
			if !ok {
				continue
			}
			idx := indexOf(unresolved, name)
			if idx == -1 {
				continue
			}
			cand := unresolved[idx]
			scored := r.matcher.Score(cand.Name, rec, cand.Type)
			if !scored.Accepted() {
				r.log.Warn("graph record too weak to accept, candidate stays new",
					"candidate", cand.Name, "record", rec.Name,
					"confidence", scored.Confidence, "reason", scored.Reason)
				outcome.NearMisses = append(outcome.NearMisses, Resolution{Candidate: cand, Match: scored})
				continue
			}
			outcome.Resolved = append(outcome.Resolved, Resolution{Candidate: cand, Match: scored})
			unresolved = append(unresolved[:idx], unresolved[idx+1:]...)
			progress = true
		}

		if !progress {
			r.log.Debug("resolution round made no progress, stopping",
				"round", outcome.Rounds, "remaining", len(unresolved))
			break
		}
	}

	outcome.New = append(outcome.New, unresolved...)
	return outcome, nil
}

// batchQuery asks the graph about every unresolved name at once. The
// answer format is prescribed so parseRecords can read it back.
func batchQuery(candidates []Candidate) string {
	quoted := make([]string, len(candidates))
	for i, c := range candidates {
		quoted[i] = fmt.Sprintf("%q", c.Name)
	}
	return fmt.Sprintf(
		"For each of the following story entities, give one line in the exact form "+
			"Name (type): one-sentence description. Use entity types character, location, or item. "+
			"Omit any entity you have no information about. Entities: %s",
		strings.Join(quoted, ", "))
}

// recordLine matches "Name (type): description" with an optional list
// bullet and an optional type.
var recordLine = regexp.MustCompile(`^[\s\-*\d.]*([^:(]+?)\s*(?:\(([^)]+)\))?\s*:\s+(.+)$`)

func parseRecords(resp string) []match.Record {
	var records []match.Record
	for _, line := range strings.Split(resp, "\n") {
		m := recordLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.Trim(strings.TrimSpace(m[1]), `"'`)
		if name == "" {
			continue
		}
		records = append(records, match.Record{
			Name:        name,
			Type:        strings.ToLower(strings.TrimSpace(m[2])),
			Description: strings.TrimSpace(m[3]),
		})
	}
	return records
}

func names(candidates []Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Name
	}
	return out
}

func indexOf(candidates []Candidate, name string) int {
	for i, c := range candidates {
		if c.Name == name {
			return i
		}
	}
	return -1
}
