// Package match scores extracted candidate names against knowledge-graph
// records and sorts the results into confidence bands that drive the merge
// decision: accept, accept-with-review, or create new.
package match

import (
	"fmt"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/harms-haus/jestir/internal/config"
	"github.com/harms-haus/jestir/internal/story"
)

// Band classifies a match confidence. Exact and high matches are merged
// automatically, moderate ones are merged but flagged for review, low and
// reject both mean the candidate becomes a new entity.
type Band string

const (
	BandExact    Band = "exact"
	BandHigh     Band = "high"
	BandModerate Band = "moderate"
	BandLow      Band = "low"
	BandReject   Band = "reject"
)

// Below this confidence a candidate is not even worth reporting as a near
// miss.
const rejectFloor = 0.25

// minSubstringLen keeps two-letter fragments ("of", "an") from triggering
// the containment rule.
const minSubstringLen = 3

// Record is one entity as known to the remote graph.
type Record struct {
	Name        string
	Type        string
	Description string
}

// Result is the scored pairing of a candidate name and a graph record.
type Result struct {
	Candidate  string
	Record     Record
	Similarity float64
	Confidence float64
	Band       Band
	Reason     string
}

// NeedsReview reports whether the match was accepted on middling
// confidence and should be surfaced to the user.
func (r *Result) NeedsReview() bool {
	return r.Band == BandModerate
}

// Accepted reports whether the match is strong enough to merge instead of
// creating a new entity.
func (r *Result) Accepted() bool {
	switch r.Band {
	case BandExact, BandHigh, BandModerate:
		return true
	}
	return false
}

// Matcher scores candidates using configured thresholds.
type Matcher struct {
	cfg config.MatcherConfig
}

func New(cfg config.MatcherConfig) *Matcher {
	return &Matcher{cfg: cfg}
}

// Score pairs a candidate name with a graph record. Names are compared
// case- and whitespace-insensitively. wantType, when known, penalizes
// records of a different entity type rather than excluding them: the graph
// and the extractor disagree on typing often enough that a hard filter
// loses real matches.
func (m *Matcher) Score(candidate string, rec Record, wantType string) Result {
	a := story.NormalizeName(candidate)
	b := story.NormalizeName(rec.Name)

	var sim, conf float64
	var reason string
	switch {
	case a == b:
		sim, conf = 1.0, 1.0
		reason = "exact name match"
	case containsName(a, b):
		shorter, longer := a, b
		if len(shorter) > len(longer) {
			shorter, longer = longer, shorter
		}
		ratio := float64(len(shorter)) / float64(len(longer))
		sim = levenshtein.Similarity(a, b, nil)
		if sim < 0.7 {
			sim = 0.7
		}
		if ratio >= 0.75 {
			conf = 0.8 + 0.1*ratio
			if conf > 0.94 {
				conf = 0.94
			}
			reason = fmt.Sprintf("name containment, length ratio %.2f", ratio)
		} else {
			// "Wendy" inside "Wendy Whisk" is suggestive, not
			// conclusive: a short name swallowed by a long one stays
			// in review territory.
			conf = sim
			reason = fmt.Sprintf("partial name containment, length ratio %.2f", ratio)
		}
	default:
		sim = levenshtein.Similarity(a, b, nil)
		conf = sim
		reason = fmt.Sprintf("name similarity %.2f", sim)
	}

	if wantType != "" && rec.Type != "" && wantType != rec.Type {
		conf *= m.cfg.TypeMismatchPenalty
		reason += fmt.Sprintf("; type mismatch (%s vs %s)", wantType, rec.Type)
	}

	return Result{
		Candidate:  candidate,
		Record:     rec,
		Similarity: sim,
		Confidence: conf,
		Band:       m.band(conf),
		Reason:     reason,
	}
}

// Best scores the candidate against every record and returns the highest
// confidence result. The boolean is false when records is empty.
func (m *Matcher) Best(candidate string, records []Record, wantType string) (Result, bool) {
	var best Result
	found := false
	for _, rec := range records {
		r := m.Score(candidate, rec, wantType)
		if !found || r.Confidence > best.Confidence {
			best = r
			found = true
		}
	}
	return best, found
}

// BestCandidate is the reverse pairing used when walking a graph response:
// given a name the graph reported, find which unresolved candidate it most
// plausibly answers. Pairings below the low threshold are discarded.
func (m *Matcher) BestCandidate(name string, candidates []string) (string, float64, bool) {
	var best string
	var bestConf float64
	for _, cand := range candidates {
		r := m.Score(cand, Record{Name: name}, "")
		if r.Confidence > bestConf {
			best = cand
			bestConf = r.Confidence
		}
	}
	if bestConf < m.cfg.LowThreshold {
		return "", 0, false
	}
	return best, bestConf, true
}

func (m *Matcher) band(conf float64) Band {
	switch {
	case conf >= m.cfg.ExactThreshold:
		return BandExact
	case conf >= m.cfg.HighThreshold:
		return BandHigh
	case conf >= m.cfg.LowThreshold:
		return BandModerate
	case conf >= rejectFloor:
		return BandLow
	default:
		return BandReject
	}
}

// containsName reports whether one normalized name contains the other as a
// substring, with the shorter side long enough to mean something.
func containsName(a, b string) bool {
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) < minSubstringLen {
		return false
	}
	return strings.Contains(longer, shorter)
}
