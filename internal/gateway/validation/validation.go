// Package validation compiles JSON Schemas into predicates that gate requests
// before any strategy runs.
package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Predicate returns the validation messages for doc. No messages means the
// document is valid.
type Predicate func(doc any) []string

// Status is the outcome of a gate check.
type Status int

const (
	// Skipped means the route has no predicate.
	Skipped Status = iota
	Valid
	Invalid
)

func (s Status) String() string {
	switch s {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "skipped"
	}
}

// Result carries the status and, for Invalid, the messages.
type Result struct {
	Status   Status
	Messages []string
}

// OK reports whether the request may continue.
func (r Result) OK() bool { return r.Status != Invalid }

// Check runs p against doc. A nil predicate is Skipped.
func Check(p Predicate, doc any) Result {
	if p == nil {
		return Result{Status: Skipped}
	}
	if messages := p(doc); len(messages) > 0 {
		return Result{Status: Invalid, Messages: messages}
	}
	return Result{Status: Valid}
}

// Compile turns a JSON Schema document into a Predicate.
func Compile(schema []byte) (Predicate, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return func(doc any) []string {
		result, err := compiled.Validate(gojsonschema.NewGoLoader(doc))
		if err != nil {
			return []string{"parameter: (root) " + err.Error()}
		}
		if result.Valid() {
			return nil
		}
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, fmt.Sprintf("parameter: %s %s", desc.Field(), desc.Description()))
		}
		return messages
	}, nil
}

// MustCompile is Compile for schemas known at build time.
func MustCompile(schema string) Predicate {
	p, err := Compile([]byte(schema))
	if err != nil {
		panic(err)
	}
	return p
}
