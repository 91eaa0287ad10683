package strategy

import (
	"fmt"
	"sort"

	errspkg "github.com/drblury/flowgate/internal/runtime/errors"
)

// Registry is the fixed set of strategies routes may name. It is built once
// at startup and read-only afterwards.
type Registry struct {
	byName map[string]Strategy
}

// NewRegistry indexes strategies by name, rejecting duplicates.
func NewRegistry(strategies ...Strategy) (*Registry, error) {
	r := &Registry{byName: make(map[string]Strategy, len(strategies))}
	for _, s := range strategies {
		if s == nil {
			return nil, errspkg.ErrStrategyRequired
		}
		name := s.Name()
		if name == "" {
			return nil, errspkg.ErrStrategyNameEmpty
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("%w: %s", errspkg.ErrDuplicateStrategy, name)
		}
		r.byName[name] = s
	}
	return r, nil
}

// Lookup returns the strategy registered under name.
func (r *Registry) Lookup(name string) (Strategy, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Names lists the registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
