package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Loader compiles named schemas from <dir>/<name>.json and caches them.
type Loader struct {
	dir string

	mu    sync.Mutex
	cache map[string]Predicate
}

// NewLoader returns a Loader reading from dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir, cache: map[string]Predicate{}}
}

// Load returns the predicate for name, compiling it on first use.
func (l *Loader) Load(name string) (Predicate, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return nil, fmt.Errorf("invalid schema name %q", name)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if p, ok := l.cache[name]; ok {
		return p, nil
	}

	path := filepath.Join(l.dir, name+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", name, err)
	}
	p, err := Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	l.cache[name] = p
	return p, nil
}

// Forget drops every cached schema so the next Load re-reads the files.
func (l *Loader) Forget() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = map[string]Predicate{}
}
