// Package merge folds resolved and new entities into a story context. The
// merge is additive and idempotent: nothing is deleted, re-applying the
// same batch changes nothing, and every outcome is recorded as a Decision
// so the caller can show the user what happened and why.
package merge

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"

	"github.com/harms-haus/jestir/internal/match"
	"github.com/harms-haus/jestir/internal/story"
)

// Action is what the merger did with one incoming entity or relationship.
type Action string

const (
	ActionCreated  Action = "created"
	ActionUpdated  Action = "updated"
	ActionSkipped  Action = "skipped"
	ActionConflict Action = "conflict"
)

// reviewProperty flags an entity merged on middling confidence.
const reviewProperty = "needs_review"

// Incoming is one entity headed into the context. Match is nil when the
// graph had no record for it and the entity is new to the story world.
type Incoming struct {
	Entity *story.Entity
	Match  *match.Result
}

// Decision is one line of the merge audit.
type Decision struct {
	Action   Action
	EntityID string
	Name     string
	Band     match.Band
	Reason   string
}

// Merger applies incoming entities and relationships to a context.
type Merger struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Merger {
	if log == nil {
		log = slog.Default()
	}
	return &Merger{log: log}
}

// ExternalRef derives the stable reference tying a local entity to a
// graph-service record.
func ExternalRef(remoteName string) string {
	return "graph://" + story.NormalizeName(remoteName)
}

// Apply merges incoming entities into the context, recording inputIdx as
// provenance. It returns the audit trail plus a translation map from each
// incoming entity's original id to the id it holds in the context, which
// ApplyRelationships uses to rewrite relationship endpoints.
func (m *Merger) Apply(sc *story.Context, incoming []Incoming, inputIdx int) ([]Decision, map[string]string, error) {
	decisions := make([]Decision, 0, len(incoming))
	idMap := make(map[string]string)

	for _, inc := range incoming {
		e := inc.Entity
		if e == nil || e.Name == "" {
			continue
		}

		var target *story.Entity
		var ref string
		if inc.Match != nil {
			ref = ExternalRef(inc.Match.Record.Name)
			target = sc.FindByExternalRef(ref)
			if target == nil {
				// A prior run may have created this entity before the
				// graph knew it; adopt it instead of duplicating.
				target = sc.FindByNameType(e.Name, e.Type)
			}
		} else {
			target = sc.FindByNameType(e.Name, e.Type)
		}

		if target == nil {
			created := m.create(sc, e, inc.Match, ref, inputIdx)
			if err := sc.AddEntity(created); err != nil {
				return decisions, idMap, fmt.Errorf("merging entity %q: %w", e.Name, err)
			}
			if e.ID != "" {
				idMap[e.ID] = created.ID
			}
			decisions = append(decisions, Decision{
				Action:   ActionCreated,
				EntityID: created.ID,
				Name:     created.Name,
				Band:     bandOf(inc.Match),
				Reason:   createReason(inc.Match),
			})
			continue
		}

		if e.ID != "" {
			idMap[e.ID] = target.ID
		}

		if target.Type != e.Type && e.Type != "" {
			m.log.Warn("entity type conflict, flagging for review",
				"entity", target.ID, "have", target.Type, "incoming", e.Type)
			if cur, ok := target.Properties[reviewProperty]; !ok || cur != true {
				setProperty(target, reviewProperty, true)
				sc.Touch()
			}
			decisions = append(decisions, Decision{
				Action:   ActionConflict,
				EntityID: target.ID,
				Name:     target.Name,
				Band:     bandOf(inc.Match),
				Reason:   fmt.Sprintf("existing entity is a %s, incoming is a %s", target.Type, e.Type),
			})
			continue
		}

		changed := m.update(target, e, inc.Match, ref, inputIdx)
		if changed {
			sc.Touch()
			decisions = append(decisions, Decision{
				Action:   ActionUpdated,
				EntityID: target.ID,
				Name:     target.Name,
				Band:     bandOf(inc.Match),
				Reason:   "merged new details into existing entity",
			})
		} else {
			decisions = append(decisions, Decision{
				Action:   ActionSkipped,
				EntityID: target.ID,
				Name:     target.Name,
				Band:     bandOf(inc.Match),
				Reason:   "nothing new to merge",
			})
		}
	}

	return decisions, idMap, nil
}

func (m *Merger) create(sc *story.Context, e *story.Entity, res *match.Result, ref string, inputIdx int) *story.Entity {
	created := &story.Entity{
		ID:          sc.NextID(e.Type),
		Type:        e.Type,
		Subtype:     e.Subtype,
		Name:        e.Name,
		Description: e.Description,
		Provenance:  []int{inputIdx},
	}
	for _, k := range sortedKeys(e.Properties) {
		setProperty(created, k, e.Properties[k])
	}
	if res != nil {
		created.Existing = true
		created.ExternalRef = ref
		if len(res.Record.Description) > len(created.Description) {
			created.Description = res.Record.Description
		}
		if res.NeedsReview() {
			setProperty(created, reviewProperty, true)
		}
	}
	return created
}

// update folds incoming details into target and reports whether anything
// actually changed. Longer descriptions win; properties union with the
// incoming value taking precedence; provenance accumulates.
func (m *Merger) update(target, e *story.Entity, res *match.Result, ref string, inputIdx int) bool {
	changed := false

	if res != nil && !target.Existing {
		target.Existing = true
		target.ExternalRef = ref
		changed = true
	}

	desc := e.Description
	if res != nil && len(res.Record.Description) > len(desc) {
		desc = res.Record.Description
	}
	if len(desc) > len(target.Description) {
		target.Description = desc
		changed = true
	}

	if target.Subtype == "" && e.Subtype != "" {
		target.Subtype = e.Subtype
		changed = true
	}

	for _, k := range sortedKeys(e.Properties) {
		v := e.Properties[k]
		// Property values can be nested maps or lists, so plain ==
		// would panic on them.
		if cur, ok := target.Properties[k]; !ok || !reflect.DeepEqual(cur, v) {
			setProperty(target, k, v)
			changed = true
		}
	}

	if res != nil && res.NeedsReview() {
		if cur, ok := target.Properties[reviewProperty]; !ok || cur != true {
			setProperty(target, reviewProperty, true)
			changed = true
		}
	}

	if !containsInt(target.Provenance, inputIdx) {
		target.Provenance = append(target.Provenance, inputIdx)
		changed = true
	}

	return changed
}

// ApplyRelationships merges relationships whose endpoints are expressed in
// the incoming entities' ids. idMap translates those to context ids; a
// relationship naming an id that translates to nothing is dropped with a
// skipped decision rather than corrupting the context.
func (m *Merger) ApplyRelationships(sc *story.Context, rels []*story.Relationship, idMap map[string]string, inputIdx int) ([]Decision, error) {
	var decisions []Decision

next:
	for _, rel := range rels {
		mapped := &story.Relationship{
			Type:        rel.Type,
			Subject:     make(story.IDList, 0, len(rel.Subject)),
			Object:      make(story.IDList, 0, len(rel.Object)),
			MentionedAt: []int{inputIdx},
			Metadata:    rel.Metadata,
		}
		for _, id := range rel.Subject {
			mappedID, ok := translate(sc, idMap, id)
			if !ok {
				decisions = append(decisions, skipRelationship(rel, id))
				continue next
			}
			mapped.Subject = append(mapped.Subject, mappedID)
		}
		for _, id := range rel.Object {
			mappedID, ok := translate(sc, idMap, id)
			if !ok {
				decisions = append(decisions, skipRelationship(rel, id))
				continue next
			}
			mapped.Object = append(mapped.Object, mappedID)
		}
		if rel.Location != "" {
			mappedID, ok := translate(sc, idMap, rel.Location)
			if !ok {
				decisions = append(decisions, skipRelationship(rel, rel.Location))
				continue next
			}
			mapped.Location = mappedID
		}

		if existing := findSameShape(sc, mapped); existing != nil {
			if containsInt(existing.MentionedAt, inputIdx) {
				decisions = append(decisions, Decision{
					Action: ActionSkipped,
					Name:   rel.Type,
					Reason: "relationship already recorded for this input",
				})
				continue
			}
			existing.MentionedAt = append(existing.MentionedAt, inputIdx)
			sc.Touch()
			decisions = append(decisions, Decision{
				Action: ActionUpdated,
				Name:   rel.Type,
				Reason: "relationship mentioned again",
			})
			continue
		}

		if err := sc.AddRelationship(mapped); err != nil {
			return decisions, fmt.Errorf("merging relationship %s: %w", rel.Type, err)
		}
		decisions = append(decisions, Decision{
			Action: ActionCreated,
			Name:   rel.Type,
			Reason: "new relationship",
		})
	}

	return decisions, nil
}

func translate(sc *story.Context, idMap map[string]string, id string) (string, bool) {
	if mapped, ok := idMap[id]; ok {
		return mapped, true
	}
	if _, ok := sc.Entities[id]; ok {
		return id, true
	}
	return "", false
}

func findSameShape(sc *story.Context, rel *story.Relationship) *story.Relationship {
	for _, existing := range sc.Relationships {
		if existing.SameShape(rel) {
			return existing
		}
	}
	return nil
}

func skipRelationship(rel *story.Relationship, id string) Decision {
	return Decision{
		Action: ActionSkipped,
		Name:   rel.Type,
		Reason: fmt.Sprintf("endpoint %s is not a known entity", id),
	}
}

func setProperty(e *story.Entity, key string, value any) {
	if e.Properties == nil {
		e.Properties = make(map[string]any)
	}
	e.Properties[key] = value
}

func bandOf(res *match.Result) match.Band {
	if res == nil {
		return ""
	}
	return res.Band
}

func createReason(res *match.Result) string {
	if res == nil {
		return "no graph record, created as new"
	}
	return fmt.Sprintf("linked to graph record %q (%s)", res.Record.Name, res.Reason)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
