package pipeline

import (
	"fmt"
	"strings"

	"github.com/drblury/flowgate/internal/gateway/strategy"
	"github.com/drblury/flowgate/internal/gateway/validation"
	errspkg "github.com/drblury/flowgate/internal/runtime/errors"
)

// WaitPolicy says whether the pipeline waits for a step.
type WaitPolicy int

const (
	Await WaitPolicy = iota
	FireAndForget
)

func (w WaitPolicy) String() string {
	if w == FireAndForget {
		return "fire_and_forget"
	}
	return "await"
}

// ExtractionPolicy says whether a step's body is kept for later steps.
type ExtractionPolicy int

const (
	ExtractNone ExtractionPolicy = iota
	// ExtractAllParams stores the step's response body in the outputs under
	// the strategy name.
	ExtractAllParams
)

// ParseExtraction maps the route-file spelling to a policy.
func ParseExtraction(s string) (ExtractionPolicy, error) {
	switch strings.ToLower(s) {
	case "", "none", "noparams":
		return ExtractNone, nil
	case "allparams", "all":
		return ExtractAllParams, nil
	default:
		return ExtractNone, fmt.Errorf("%w: unknown extraction %q", errspkg.ErrInvalidRoute, s)
	}
}

// Step is one entry of a route's chain.
type Step struct {
	Strategy string
	Wait     WaitPolicy
	Extract  ExtractionPolicy
	Payload  strategy.Payload
}

// Route is a fully specified route: where it lives, what gates it and what
// runs for it.
type Route struct {
	Template string
	Method   string
	// Validation may be nil.
	Validation validation.Predicate
	// DefaultStrategy runs when Steps is empty.
	DefaultStrategy string
	DefaultPayload  strategy.Payload
	Steps           []Step
}

// leaf is a Route with its strategies resolved.
type leaf struct {
	route    Route
	fallback strategy.Strategy
	steps    []boundStep
}

type boundStep struct {
	Step
	strategy strategy.Strategy
}

func bind(r Route, reg *strategy.Registry) (*leaf, error) {
	l := &leaf{route: r}
	if r.DefaultStrategy != "" {
		s, ok := reg.Lookup(r.DefaultStrategy)
		if !ok {
			return nil, fmt.Errorf("%w: %s (route %s %s)", errspkg.ErrUnknownStrategy, r.DefaultStrategy, r.Method, r.Template)
		}
		l.fallback = s
	}
	for i, step := range r.Steps {
		s, ok := reg.Lookup(step.Strategy)
		if !ok {
			return nil, fmt.Errorf("%w: %s (route %s %s, step %d)", errspkg.ErrUnknownStrategy, step.Strategy, r.Method, r.Template, i)
		}
		l.steps = append(l.steps, boundStep{Step: step, strategy: s})
	}
	return l, nil
}
