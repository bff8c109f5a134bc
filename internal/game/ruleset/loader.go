package ruleset

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Registry holds all loaded Bindings keyed by ID.
type Registry struct {
	bindings map[string]*Binding
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]*Binding)}
}

// Register adds b to the registry, overwriting any existing entry with the same ID.
//
// Precondition: b must be non-nil with a non-empty ID.
func (r *Registry) Register(b *Binding) {
	if b == nil {
		panic("ruleset.Registry.Register: precondition violated: binding must be non-nil")
	}
	if b.ID == "" {
		panic("ruleset.Registry.Register: precondition violated: binding ID must be non-empty")
	}
	r.bindings[b.ID] = b
}

// Get returns the Binding for id, or (nil, false) if not found.
func (r *Registry) Get(id string) (*Binding, bool) {
	b, ok := r.bindings[id]
	return b, ok
}

// All returns a snapshot slice of all registered Bindings.
func (r *Registry) All() []*Binding {
	out := make([]*Binding, 0, len(r.bindings))
	for _, b := range r.bindings {
		out = append(out, b)
	}
	return out
}

// LoadDirectory reads every *.yaml file in dir, parses each as a Binding,
// validates it, and returns a populated Registry.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a non-nil Registry, or an error if any file fails
// to parse or validate.
func LoadDirectory(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading ruleset dir %q: %w", dir, err)
	}
	reg := NewRegistry()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		b, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		reg.Register(b)
	}
	return reg, nil
}

// LoadFile reads and validates a single Binding from path.
//
// Postcondition: Returns a validated Binding or a non-nil error.
func LoadFile(path string) (*Binding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	var b Binding
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("parsing %q: %w", path, err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("validating %q: %w", path, err)
	}
	return &b, nil
}
