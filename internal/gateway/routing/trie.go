// Package routing resolves request paths to route leaves with a segment trie.
//
// Templates are slash-separated; a segment starting with ':' captures one
// path segment under that name. Lookups prefer a literal child over the
// wildcard child at every level and never backtrack.
package routing

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	errspkg "github.com/drblury/flowgate/internal/runtime/errors"
)

// Match is a successful resolution.
type Match[L any] struct {
	Template string
	Method   string
	Leaf     L
	// Params maps each captured name to the path segment it bound.
	Params map[string]string
}

// Route identifies a registered template and method.
type Route struct {
	Template string
	Method   string
}

// Trie maps (path, method) pairs to leaves. It is safe for concurrent use.
type Trie[L any] struct {
	mu   sync.RWMutex
	root *node[L]
}

// A node always has an inner part (literal children plus at most one
// wildcard child). It gains a terminal part once a template ends on it, so a
// path can be both a route and the prefix of longer routes.
type node[L any] struct {
	children map[string]*node[L]
	wildcard *node[L]
	terminal *terminal[L]
}

type terminal[L any] struct {
	methods map[string]entry[L]
}

type entry[L any] struct {
	template string
	params   []string
	leaf     L
}

// New returns an empty trie.
func New[L any]() *Trie[L] {
	return &Trie[L]{root: newNode[L]()}
}

func newNode[L any]() *node[L] {
	return &node[L]{children: map[string]*node[L]{}}
}

// Add registers leaf for template and method. Registering the same pair again
// replaces the previous leaf.
func (t *Trie[L]) Add(template, method string, leaf L) error {
	method = normalizeMethod(method)
	if method == "" {
		return fmt.Errorf("%w: %s has no method", errspkg.ErrInvalidRoute, template)
	}
	segments := splitPath(template)

	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.root
	var params []string
	for _, seg := range segments {
		if name, ok := strings.CutPrefix(seg, ":"); ok {
			if name == "" {
				return fmt.Errorf("%w: %s has an unnamed parameter", errspkg.ErrInvalidRoute, template)
			}
			params = append(params, name)
			if n.wildcard == nil {
				n.wildcard = newNode[L]()
			}
			n = n.wildcard
			continue
		}
		child, ok := n.children[seg]
		if !ok {
			child = newNode[L]()
			n.children[seg] = child
		}
		n = child
	}

	if n.terminal == nil {
		n.terminal = &terminal[L]{methods: map[string]entry[L]{}}
	}
	n.terminal.methods[method] = entry[L]{
		template: canonicalTemplate(segments),
		params:   params,
		leaf:     leaf,
	}
	return nil
}

// Resolve finds the leaf for path and method. Any query string is ignored.
// Unknown paths and unknown methods on known paths both yield
// ErrRouteNotFound.
func (t *Trie[L]) Resolve(path, method string) (Match[L], error) {
	path, _, _ = strings.Cut(path, "?")
	method = normalizeMethod(method)

	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.root
	var values []string
	for _, seg := range splitPath(path) {
		if child, ok := n.children[seg]; ok {
			n = child
			continue
		}
		if n.wildcard != nil {
			values = append(values, seg)
			n = n.wildcard
			continue
		}
		return Match[L]{}, errspkg.ErrRouteNotFound
	}

	if n.terminal == nil {
		return Match[L]{}, errspkg.ErrRouteNotFound
	}
	e, ok := n.terminal.methods[method]
	if !ok {
		return Match[L]{}, errspkg.ErrRouteNotFound
	}

	params := make(map[string]string, len(e.params))
	for i, name := range e.params {
		if i < len(values) {
			params[name] = values[i]
		}
	}
	return Match[L]{Template: e.template, Method: method, Leaf: e.leaf, Params: params}, nil
}

// Routes lists every registered template and method, sorted.
func (t *Trie[L]) Routes() []Route {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Route
	var walk func(n *node[L])
	walk = func(n *node[L]) {
		if n.terminal != nil {
			for method, e := range n.terminal.methods {
				out = append(out, Route{Template: e.template, Method: method})
			}
		}
		for _, child := range n.children {
			walk(child)
		}
		if n.wildcard != nil {
			walk(n.wildcard)
		}
	}
	walk(t.root)

	sort.Slice(out, func(i, j int) bool {
		if out[i].Template != out[j].Template {
			return out[i].Template < out[j].Template
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// Len returns the number of registered (template, method) pairs.
func (t *Trie[L]) Len() int {
	return len(t.Routes())
}

func splitPath(path string) []string {
	raw := strings.Split(path, "/")
	segments := raw[:0]
	for _, seg := range raw {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

func canonicalTemplate(segments []string) string {
	return "/" + strings.Join(segments, "/")
}

func normalizeMethod(method string) string {
	return strings.ToUpper(strings.TrimSpace(method))
}
