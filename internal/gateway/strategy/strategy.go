// Package strategy defines the pluggable handlers a route step invokes and
// the built-in implementations.
package strategy

import (
	"context"

	"github.com/drblury/flowgate/internal/gateway/response"
	"github.com/drblury/flowgate/internal/runtime/jsoncodec"
	"github.com/drblury/flowgate/internal/runtime/metadata"
)

// Strategy handles one step of a route pipeline.
type Strategy interface {
	// Name is the unique key routes refer to.
	Name() string
	// HandleRequest processes req. outputs holds the bodies of earlier steps
	// that asked for extraction, keyed by strategy name; payload is the
	// step's configuration from the route table.
	HandleRequest(ctx context.Context, req Request, requestURL string, outputs Outputs, payload Payload) (response.Response, error)
}

type detachedKey struct{}

// Detached marks ctx as belonging to a fire-and-forget step. Strategies that
// can skip waiting for a result check it with IsDetached.
func Detached(ctx context.Context) context.Context {
	return context.WithValue(ctx, detachedKey{}, true)
}

// IsDetached reports whether nobody waits for the step's response.
func IsDetached(ctx context.Context) bool {
	detached, _ := ctx.Value(detachedKey{}).(bool)
	return detached
}

// Request is the inbound request as strategies see it.
type Request struct {
	Method  string
	Body    any
	Query   metadata.Metadata
	Headers metadata.Metadata
	// Params are the captured path parameters.
	Params map[string]string
}

// Document returns {body, query, headers, params}, the shape validation
// schemas are written against.
func (r Request) Document() map[string]any {
	return map[string]any{
		"body":    r.Body,
		"query":   stringMap(r.Query),
		"headers": stringMap(r.Headers),
		"params":  stringMap(r.Params),
	}
}

// Data returns the body with captured params merged in under "params". Bodies
// that are not objects are nested under "body" when params exist.
func (r Request) Data() any {
	if len(r.Params) == 0 {
		return r.Body
	}
	params := stringMap(r.Params)
	switch body := r.Body.(type) {
	case nil:
		return map[string]any{"params": params}
	case map[string]any:
		out := make(map[string]any, len(body)+1)
		for k, v := range body {
			out[k] = v
		}
		out["params"] = params
		return out
	default:
		return map[string]any{"body": body, "params": params}
	}
}

// Outputs maps strategy names to the response bodies they produced.
type Outputs map[string]any

// Clone returns a shallow copy.
func (o Outputs) Clone() Outputs {
	out := make(Outputs, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Payload is a strategy's per-route configuration.
type Payload map[string]any

// Decode converts the payload into a typed struct.
func (p Payload) Decode(dst any) error {
	if p == nil {
		return jsoncodec.Convert(map[string]any{}, dst)
	}
	return jsoncodec.Convert(map[string]any(p), dst)
}

// Compose merges outputs into the request data. It is the body that
// forwarding strategies send onward.
func Compose(req Request, outputs Outputs) any {
	data := req.Data()
	if len(outputs) == 0 {
		return data
	}
	var out map[string]any
	switch d := data.(type) {
	case nil:
		out = make(map[string]any, len(outputs))
	case map[string]any:
		out = make(map[string]any, len(d)+len(outputs))
		for k, v := range d {
			out[k] = v
		}
	default:
		out = map[string]any{"body": d}
	}
	for k, v := range outputs {
		out[k] = v
	}
	return out
}

func stringMap[M ~map[string]string](m M) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
