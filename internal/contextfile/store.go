// Package contextfile persists a story context as a YAML file. Saves are
// atomic (write-then-rename in the same directory) so a crash mid-write
// never leaves a half-written context behind, and loads validate the
// structural invariants so corruption is caught before it propagates.
package contextfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/harms-haus/jestir/internal/story"
)

var (
	// ErrCorrupt wraps any context file that cannot be parsed or that
	// violates the structural invariants.
	ErrCorrupt = errors.New("corrupt context file")

	// ErrAppendOnly means a save would rewrite or drop previously
	// recorded user inputs.
	ErrAppendOnly = errors.New("user inputs are append-only")
)

// Store reads and writes one context file. It remembers the user inputs
// it loaded so a save cannot silently rewrite history.
type Store struct {
	path         string
	loadedInputs []story.UserInput
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the file this store reads and writes.
func (s *Store) Path() string {
	return s.path
}

// Load reads the context file. A missing file yields a fresh context with
// default settings rather than an error, so the first invocation against
// a new story just works.
func (s *Store) Load() (*story.Context, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.loadedInputs = nil
		return story.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading context file %s: %w", s.path, err)
	}

	var sc story.Context
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	if sc.Entities == nil {
		sc.Entities = make(map[string]*story.Entity)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}

	s.loadedInputs = append([]story.UserInput(nil), sc.UserInputs...)
	return &sc, nil
}

// Save validates the context and writes it atomically. The previously
// loaded user inputs must survive as a prefix of the saved ones.
func (s *Store) Save(sc *story.Context) error {
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid context: %w", err)
	}
	if err := s.checkAppendOnly(sc); err != nil {
		return err
	}

	data, err := yaml.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshaling context: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".jestir-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing context: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing context: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("setting context file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing context file %s: %w", s.path, err)
	}

	s.loadedInputs = append([]story.UserInput(nil), sc.UserInputs...)
	return nil
}

func (s *Store) checkAppendOnly(sc *story.Context) error {
	if len(sc.UserInputs) < len(s.loadedInputs) {
		return fmt.Errorf("%w: save has %d inputs, loaded %d",
			ErrAppendOnly, len(sc.UserInputs), len(s.loadedInputs))
	}
	for i, loaded := range s.loadedInputs {
		if sc.UserInputs[i] != loaded {
			return fmt.Errorf("%w: input %d was rewritten", ErrAppendOnly, i)
		}
	}
	return nil
}
