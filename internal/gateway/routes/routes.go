// Package routes loads route definition files and compiles them into
// pipeline routes.
package routes

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/drblury/flowgate/internal/gateway/pipeline"
	"github.com/drblury/flowgate/internal/gateway/strategy"
	"github.com/drblury/flowgate/internal/gateway/validation"
	errspkg "github.com/drblury/flowgate/internal/runtime/errors"
)

// File is the top level of a route definition file.
type File struct {
	Routes []Definition `yaml:"routes" json:"routes"`
}

// Definition describes one route as written in a route file.
type Definition struct {
	URL    string `yaml:"url" json:"url"`
	Method string `yaml:"method" json:"method"`
	// ValidationSchema names <schemaDir>/<name>.json. Empty skips validation.
	ValidationSchema string           `yaml:"validationSchema,omitempty" json:"validationSchema,omitempty"`
	DefaultStrategy  string           `yaml:"defaultStrategy,omitempty" json:"defaultStrategy,omitempty"`
	DefaultPayload   map[string]any   `yaml:"defaultPayload,omitempty" json:"defaultPayload,omitempty"`
	Steps            []StepDefinition `yaml:"steps,omitempty" json:"steps,omitempty"`
}

// StepDefinition is one step of a route's chain.
type StepDefinition struct {
	Name    string         `yaml:"name" json:"name"`
	NoWait  bool           `yaml:"noWait,omitempty" json:"noWait,omitempty"`
	Extract string         `yaml:"extract,omitempty" json:"extract,omitempty"`
	Payload map[string]any `yaml:"payload,omitempty" json:"payload,omitempty"`
}

// SchemaSource resolves schema names to predicates.
type SchemaSource interface {
	Load(name string) (validation.Predicate, error)
}

// Parse decodes a route file. JSON input is accepted as YAML.
func Parse(raw []byte) ([]Definition, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", errspkg.ErrInvalidRoute, err)
	}
	return f.Routes, nil
}

// LoadFile reads and parses the route file at path.
func LoadFile(path string) ([]Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes: %w", err)
	}
	return Parse(raw)
}

// Compile turns definitions into pipeline routes. Every definition is checked;
// the returned error joins all problems found.
func Compile(defs []Definition, schemas SchemaSource) ([]pipeline.Route, error) {
	out := make([]pipeline.Route, 0, len(defs))
	var errs []error
	for i, def := range defs {
		r, err := compileOne(def, schemas)
		if err != nil {
			errs = append(errs, fmt.Errorf("route %d (%s %s): %w", i, def.Method, def.URL, err))
			continue
		}
		out = append(out, r)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

func compileOne(def Definition, schemas SchemaSource) (pipeline.Route, error) {
	if strings.TrimSpace(def.URL) == "" {
		return pipeline.Route{}, fmt.Errorf("%w: url is required", errspkg.ErrInvalidRoute)
	}
	if strings.TrimSpace(def.Method) == "" {
		return pipeline.Route{}, fmt.Errorf("%w: method is required", errspkg.ErrInvalidRoute)
	}

	r := pipeline.Route{
		Template:        def.URL,
		Method:          strings.ToUpper(def.Method),
		DefaultStrategy: def.DefaultStrategy,
		DefaultPayload:  strategy.Payload(def.DefaultPayload),
	}

	if def.ValidationSchema != "" {
		if schemas == nil {
			return pipeline.Route{}, fmt.Errorf("%w: schema %q named but no schema source configured", errspkg.ErrInvalidRoute, def.ValidationSchema)
		}
		p, err := schemas.Load(def.ValidationSchema)
		if err != nil {
			return pipeline.Route{}, err
		}
		r.Validation = p
	}

	for j, s := range def.Steps {
		if s.Name == "" {
			return pipeline.Route{}, fmt.Errorf("%w: step %d has no name", errspkg.ErrInvalidRoute, j)
		}
		extract, err := pipeline.ParseExtraction(s.Extract)
		if err != nil {
			return pipeline.Route{}, fmt.Errorf("step %d: %w", j, err)
		}
		wait := pipeline.Await
		if s.NoWait {
			wait = pipeline.FireAndForget
		}
		r.Steps = append(r.Steps, pipeline.Step{
			Strategy: s.Name,
			Wait:     wait,
			Extract:  extract,
			Payload:  strategy.Payload(s.Payload),
		})
	}
	return r, nil
}

// Target receives compiled route tables.
type Target interface {
	ReplaceRoutes([]pipeline.Route) error
}

// Apply loads path, compiles it and installs the result on target. A
// *validation.Loader source is flushed first so edited schemas are re-read.
func Apply(target Target, path string, schemas SchemaSource) error {
	if l, ok := schemas.(*validation.Loader); ok && l != nil {
		l.Forget()
	}
	defs, err := LoadFile(path)
	if err != nil {
		return err
	}
	compiled, err := Compile(defs, schemas)
	if err != nil {
		return err
	}
	return target.ReplaceRoutes(compiled)
}
