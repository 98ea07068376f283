// Package validate inspects a story context and reports everything wrong
// or suspicious about it. Errors are invariant violations a pipeline run
// must not proceed past; warnings are things a human should look at.
package validate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/harms-haus/jestir/internal/story"
)

type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warning"
)

const (
	codeEmptyEntity       = "empty_entity"
	codeKeyMismatch       = "entity_key_mismatch"
	codeMissingName       = "missing_name"
	codeUnknownType       = "unknown_entity_type"
	codeRefInconsistent   = "external_ref_inconsistent"
	codeRefDuplicate      = "external_ref_duplicate"
	codeDuplicateName     = "duplicate_name"
	codeDanglingReference = "dangling_reference"
	codeMentionOutOfRange = "mention_out_of_range"
	codeProvenanceRange   = "provenance_out_of_range"
	codeMissingSetting    = "missing_setting"
	codeNeedsReview       = "needs_review"
	codeUnknownRemote     = "unknown_remote_entity"
)

type Issue struct {
	Severity Severity
	Code     string
	Message  string
	Entity   string
}

type Report struct {
	Issues []Issue
}

func (r *Report) HasErrors() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (r *Report) Counts() (errors, warnings int) {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			errors++
		} else {
			warnings++
		}
	}
	return errors, warnings
}

// Run validates the context. When remote is non-nil, entities that claim a
// graph record are checked against the live graph too.
func Run(ctx context.Context, sc *story.Context, remote RemoteChecker) (*Report, error) {
	if sc == nil {
		return nil, fmt.Errorf("context is required")
	}

	issues := make([]Issue, 0)
	issues = append(issues, checkSettings(sc)...)
	issues = append(issues, checkEntities(sc)...)
	issues = append(issues, checkRelationships(sc)...)

	if remote != nil {
		remoteIssues, err := checkRemote(ctx, sc, remote)
		if err != nil {
			return nil, err
		}
		issues = append(issues, remoteIssues...)
	}

	return &Report{Issues: issues}, nil
}

func checkSettings(sc *story.Context) []Issue {
	var issues []Issue
	for name, value := range map[string]string{
		"genre":  sc.Settings.Genre,
		"tone":   sc.Settings.Tone,
		"length": sc.Settings.Length,
	} {
		if strings.TrimSpace(value) == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarn,
				Code:     codeMissingSetting,
				Message:  fmt.Sprintf("setting %s is empty", name),
			})
		}
	}
	return issues
}

func checkEntities(sc *story.Context) []Issue {
	var issues []Issue
	refs := make(map[string]string)
	names := make(map[string]string)

	for _, id := range sortedIDs(sc) {
		e := sc.Entities[id]
		if e == nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     codeEmptyEntity,
				Message:  "entity is empty",
				Entity:   id,
			})
			continue
		}
		if e.ID != id {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     codeKeyMismatch,
				Message:  fmt.Sprintf("entity key %s does not match id %s", id, e.ID),
				Entity:   id,
			})
		}
		if strings.TrimSpace(e.Name) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     codeMissingName,
				Message:  "entity has no name",
				Entity:   id,
			})
		}
		switch e.Type {
		case story.TypeCharacter, story.TypeLocation, story.TypeItem:
		default:
			issues = append(issues, Issue{
				Severity: SeverityWarn,
				Code:     codeUnknownType,
				Message:  fmt.Sprintf("unknown entity type %q", e.Type),
				Entity:   id,
			})
		}
		if e.Existing != (e.ExternalRef != "") {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     codeRefInconsistent,
				Message:  fmt.Sprintf("existing=%v but external_ref=%q", e.Existing, e.ExternalRef),
				Entity:   id,
			})
		}
		if e.ExternalRef != "" {
			if other, ok := refs[e.ExternalRef]; ok {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Code:     codeRefDuplicate,
					Message:  fmt.Sprintf("external_ref %s also claimed by %s", e.ExternalRef, other),
					Entity:   id,
				})
			} else {
				refs[e.ExternalRef] = id
			}
		}
		nameKey := story.NormalizeName(e.Name) + "/" + e.Type
		if other, ok := names[nameKey]; ok {
			issues = append(issues, Issue{
				Severity: SeverityWarn,
				Code:     codeDuplicateName,
				Message:  fmt.Sprintf("same name and type as %s", other),
				Entity:   id,
			})
		} else {
			names[nameKey] = id
		}
		for _, idx := range e.Provenance {
			if idx < 0 || idx >= len(sc.UserInputs) {
				issues = append(issues, Issue{
					Severity: SeverityWarn,
					Code:     codeProvenanceRange,
					Message:  fmt.Sprintf("provenance references user input %d of %d", idx, len(sc.UserInputs)),
					Entity:   id,
				})
			}
		}
		if e.Properties["needs_review"] == true {
			issues = append(issues, Issue{
				Severity: SeverityWarn,
				Code:     codeNeedsReview,
				Message:  "entity is flagged for review",
				Entity:   id,
			})
		}
	}
	return issues
}

func checkRelationships(sc *story.Context) []Issue {
	var issues []Issue
	for i, r := range sc.Relationships {
		if r == nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     codeEmptyEntity,
				Message:  fmt.Sprintf("relationship %d is empty", i),
			})
			continue
		}
		endpoints := append(append(story.IDList{}, r.Subject...), r.Object...)
		if r.Location != "" {
			endpoints = append(endpoints, r.Location)
		}
		for _, id := range endpoints {
			if _, ok := sc.Entities[id]; !ok {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Code:     codeDanglingReference,
					Message:  fmt.Sprintf("relationship %d (%s) references unknown entity %s", i, r.Type, id),
					Entity:   id,
				})
			}
		}
		for _, idx := range r.MentionedAt {
			if idx < 0 || idx >= len(sc.UserInputs) {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Code:     codeMentionOutOfRange,
					Message:  fmt.Sprintf("relationship %d (%s) references user input %d of %d", i, r.Type, idx, len(sc.UserInputs)),
				})
			}
		}
	}
	return issues
}

func checkRemote(ctx context.Context, sc *story.Context, remote RemoteChecker) ([]Issue, error) {
	var issues []Issue
	for _, id := range sortedIDs(sc) {
		e := sc.Entities[id]
		if e == nil || e.ExternalRef == "" {
			continue
		}
		name := strings.TrimPrefix(e.ExternalRef, "graph://")
		exists, err := remote.EntityExists(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("checking %s against the graph: %w", e.ExternalRef, err)
		}
		if !exists {
			issues = append(issues, Issue{
				Severity: SeverityWarn,
				Code:     codeUnknownRemote,
				Message:  fmt.Sprintf("graph has no entity named %q", name),
				Entity:   id,
			})
		}
	}
	return issues, nil
}

func sortedIDs(sc *story.Context) []string {
	ids := make([]string, 0, len(sc.Entities))
	for id := range sc.Entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
