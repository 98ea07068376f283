package story

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const SchemaVersion = "1.0.0"

// Entity types recognised by the pipeline.
const (
	TypeCharacter = "character"
	TypeLocation  = "location"
	TypeItem      = "item"
)

var idPrefixes = map[string]string{
	TypeCharacter: "char",
	TypeLocation:  "loc",
	TypeItem:      "item",
}

var (
	ErrDuplicateID      = errors.New("duplicate entity id")
	ErrUnknownReference = errors.New("relationship references unknown entity")
)

// Entity is a character, location, or item in the story world. The typed
// core is fixed; Properties is the open side-map for type-specific
// attributes, and Extra preserves fields this version does not understand.
type Entity struct {
	ID          string         `yaml:"id"`
	Type        string         `yaml:"type"`
	Subtype     string         `yaml:"subtype,omitempty"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Existing    bool           `yaml:"existing"`
	ExternalRef string         `yaml:"external_ref,omitempty"`
	Properties  map[string]any `yaml:"properties,omitempty"`
	Provenance  []int          `yaml:"provenance,omitempty"`
	Extra       map[string]any `yaml:",inline"`
}

// IDList accepts either a scalar or a sequence in YAML; it always
// serialises as a sequence.
type IDList []string

func (l *IDList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = IDList{s}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = IDList(items)
		return nil
	default:
		return fmt.Errorf("id list must be a string or a list of strings")
	}
}

// Relationship ties one or more subject entities to one or more object
// entities with a verb-like type. MentionedAt holds indexes into
// Context.UserInputs recording which inputs produced this relationship.
type Relationship struct {
	Type        string         `yaml:"type"`
	Subject     IDList         `yaml:"subject"`
	Object      IDList         `yaml:"object"`
	Location    string         `yaml:"location,omitempty"`
	MentionedAt []int          `yaml:"mentioned_at,omitempty"`
	Metadata    map[string]any `yaml:"metadata,omitempty"`
}

// SameShape reports structural equality of (type, subject, object,
// location), the identity used for relationship deduplication.
func (r *Relationship) SameShape(other *Relationship) bool {
	if r.Type != other.Type || r.Location != other.Location {
		return false
	}
	return equalIDs(r.Subject, other.Subject) && equalIDs(r.Object, other.Object)
}

func equalIDs(a, b IDList) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// UserInput is one appended user request. The list is append-only.
type UserInput struct {
	Text      string `yaml:"text"`
	Timestamp string `yaml:"timestamp"`
}

// UsageCounters is the rolled-up token accounting stored in metadata.
type UsageCounters struct {
	TotalTokens  int     `yaml:"total_tokens"`
	TotalCostUSD float64 `yaml:"total_cost_usd"`
	TotalCalls   int     `yaml:"total_calls"`
	LastUpdated  string  `yaml:"last_updated,omitempty"`
}

type Metadata struct {
	Version    string         `yaml:"version"`
	CreatedAt  string         `yaml:"created_at"`
	UpdatedAt  string         `yaml:"updated_at"`
	TokenUsage UsageCounters  `yaml:"token_usage"`
	Extra      map[string]any `yaml:",inline"`
}

type Settings struct {
	Genre          string         `yaml:"genre"`
	Tone           string         `yaml:"tone"`
	Length         string         `yaml:"length"`
	Morals         []string       `yaml:"morals"`
	AgeAppropriate bool           `yaml:"age_appropriate"`
	Extra          map[string]any `yaml:",inline"`
}

// Context is the complete persisted story state. Entities and
// relationships are only ever added or field-updated, never silently
// deleted; UserInputs is append-only.
type Context struct {
	Metadata      Metadata           `yaml:"metadata"`
	Settings      Settings           `yaml:"settings"`
	Entities      map[string]*Entity `yaml:"entities"`
	Relationships []*Relationship    `yaml:"relationships"`
	UserInputs    []UserInput        `yaml:"user_inputs"`
	PlotPoints    []string           `yaml:"plot_points"`
	Outline       string             `yaml:"outline,omitempty"`
	Story         string             `yaml:"story,omitempty"`
	Extra         map[string]any     `yaml:",inline"`
}

// New returns an empty context with default settings.
func New() *Context {
	now := timestamp()
	return &Context{
		Metadata: Metadata{
			Version:   SchemaVersion,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Settings: Settings{
			Genre:          "adventure",
			Tone:           "gentle",
			Length:         "short",
			Morals:         []string{},
			AgeAppropriate: true,
		},
		Entities: make(map[string]*Entity),
	}
}

// AppendUserInput records a new user request and returns its index, which
// serves as the provenance reference for everything it produces.
func (c *Context) AppendUserInput(text string) int {
	c.UserInputs = append(c.UserInputs, UserInput{Text: text, Timestamp: timestamp()})
	c.Touch()
	return len(c.UserInputs) - 1
}

// AddEntity inserts an entity under its id. Adding an id that is already
// present is a programming error surfaced as ErrDuplicateID; updates go
// through the merger, not here.
func (c *Context) AddEntity(e *Entity) error {
	if e.ID == "" {
		return fmt.Errorf("entity %q has no id", e.Name)
	}
	if _, ok := c.Entities[e.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, e.ID)
	}
	if c.Entities == nil {
		c.Entities = make(map[string]*Entity)
	}
	c.Entities[e.ID] = e
	c.Touch()
	return nil
}

// AddRelationship appends a relationship after checking every referenced
// id exists.
func (c *Context) AddRelationship(r *Relationship) error {
	for _, id := range append(append(IDList{}, r.Subject...), r.Object...) {
		if _, ok := c.Entities[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownReference, id)
		}
	}
	if r.Location != "" {
		if _, ok := c.Entities[r.Location]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownReference, r.Location)
		}
	}
	c.Relationships = append(c.Relationships, r)
	c.Touch()
	return nil
}

// AddPlotPoint appends a plot point, skipping exact duplicates.
func (c *Context) AddPlotPoint(point string) {
	for _, existing := range c.PlotPoints {
		if existing == point {
			return
		}
	}
	c.PlotPoints = append(c.PlotPoints, point)
	c.Touch()
}

// NextID allocates the next free story-local id for an entity type, e.g.
// char_003. Allocation scans existing ids so manual edits to the file
// cannot cause collisions.
func (c *Context) NextID(entityType string) string {
	prefix, ok := idPrefixes[entityType]
	if !ok {
		prefix = "ent"
	}
	max := 0
	for id := range c.Entities {
		var n int
		if _, err := fmt.Sscanf(id, prefix+"_%03d", &n); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s_%03d", prefix, max+1)
}

// FindByExternalRef returns the entity tied to a graph-service record, if
// any. At most one local entity may hold a given external ref.
func (c *Context) FindByExternalRef(ref string) *Entity {
	if ref == "" {
		return nil
	}
	for _, id := range c.sortedEntityIDs() {
		if c.Entities[id].ExternalRef == ref {
			return c.Entities[id]
		}
	}
	return nil
}

// FindByNameType returns an entity with the same normalised name and type.
func (c *Context) FindByNameType(name, entityType string) *Entity {
	want := NormalizeName(name)
	for _, id := range c.sortedEntityIDs() {
		e := c.Entities[id]
		if NormalizeName(e.Name) == want && e.Type == entityType {
			return e
		}
	}
	return nil
}

func (c *Context) sortedEntityIDs() []string {
	ids := make([]string, 0, len(c.Entities))
	for id := range c.Entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Touch refreshes the updated_at timestamp.
func (c *Context) Touch() {
	c.Metadata.UpdatedAt = timestamp()
}

// Validate checks the structural invariants every context must satisfy.
// Violations mean the record is corrupt and must not be processed.
func (c *Context) Validate() error {
	refs := make(map[string]string)
	for id, e := range c.Entities {
		if e == nil {
			return fmt.Errorf("entity %s is empty", id)
		}
		if e.ID != id {
			return fmt.Errorf("entity key %s does not match id %s", id, e.ID)
		}
		if strings.TrimSpace(e.Name) == "" {
			return fmt.Errorf("entity %s has no name", id)
		}
		if e.Existing && e.ExternalRef == "" {
			return fmt.Errorf("entity %s is marked existing but has no external_ref", id)
		}
		if !e.Existing && e.ExternalRef != "" {
			return fmt.Errorf("entity %s has external_ref but is not marked existing", id)
		}
		if e.ExternalRef != "" {
			if other, ok := refs[e.ExternalRef]; ok {
				return fmt.Errorf("external_ref %s claimed by both %s and %s", e.ExternalRef, other, id)
			}
			refs[e.ExternalRef] = id
		}
	}

	for i, r := range c.Relationships {
		if r == nil {
			return fmt.Errorf("relationship %d is empty", i)
		}
		for _, id := range append(append(IDList{}, r.Subject...), r.Object...) {
			if _, ok := c.Entities[id]; !ok {
				return fmt.Errorf("relationship %d (%s): %w: %s", i, r.Type, ErrUnknownReference, id)
			}
		}
		if r.Location != "" {
			if _, ok := c.Entities[r.Location]; !ok {
				return fmt.Errorf("relationship %d (%s): %w: location %s", i, r.Type, ErrUnknownReference, r.Location)
			}
		}
		for _, idx := range r.MentionedAt {
			if idx < 0 || idx >= len(c.UserInputs) {
				return fmt.Errorf("relationship %d (%s) references user input %d of %d", i, r.Type, idx, len(c.UserInputs))
			}
		}
	}
	return nil
}

// NormalizeName folds a display name for identity comparison.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
