// Package pipeline runs a resolved route: validation gate, then either the
// default strategy or the step chain.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/flowgate/internal/gateway/response"
	"github.com/drblury/flowgate/internal/gateway/routing"
	"github.com/drblury/flowgate/internal/gateway/strategy"
	"github.com/drblury/flowgate/internal/gateway/validation"
	errspkg "github.com/drblury/flowgate/internal/runtime/errors"
	"github.com/drblury/flowgate/internal/runtime/logging"
	"github.com/drblury/flowgate/internal/runtime/metadata"
)

// Incoming is a parsed HTTP request.
type Incoming struct {
	Method string
	// URL is the absolute request URL including the query string.
	URL     string
	Path    string
	Body    any
	Query   metadata.Metadata
	Headers metadata.Metadata
}

// Pipeline resolves requests against its route table and runs them.
type Pipeline struct {
	strategies *strategy.Registry
	routes     atomic.Pointer[routing.Trie[*leaf]]
	logger     logging.ServiceLogger
	tracer     trace.Tracer
	metrics    *Metrics
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithMetrics records outcomes on m.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTracer replaces the global otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// New creates a pipeline with an empty route table.
func New(strategies *strategy.Registry, logger logging.ServiceLogger, opts ...Option) (*Pipeline, error) {
	if strategies == nil {
		return nil, errspkg.ErrStrategyRequired
	}
	p := &Pipeline{
		strategies: strategies,
		logger:     logging.WithComponent(logger, "pipeline"),
		tracer:     otel.Tracer("flowgate/pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.routes.Store(routing.New[*leaf]())
	return p, nil
}

// AddRoute registers r, replacing any route with the same template and
// method. Every strategy r names must be registered.
func (p *Pipeline) AddRoute(r Route) error {
	l, err := bind(r, p.strategies)
	if err != nil {
		return err
	}
	return p.routes.Load().Add(r.Template, r.Method, l)
}

// ReplaceRoutes swaps in a new route table. On error the current table stays.
func (p *Pipeline) ReplaceRoutes(routes []Route) error {
	next := routing.New[*leaf]()
	for _, r := range routes {
		l, err := bind(r, p.strategies)
		if err != nil {
			return err
		}
		if err := next.Add(r.Template, r.Method, l); err != nil {
			return err
		}
	}
	p.routes.Store(next)
	return nil
}

// Routes lists the registered routes.
func (p *Pipeline) Routes() []routing.Route {
	return p.routes.Load().Routes()
}

// Handle runs in through the pipeline. It always returns a response;
// failures and panics become a generic 500.
func (p *Pipeline) Handle(ctx context.Context, in Incoming) (resp response.Response) {
	route := "unmatched"
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Pipeline panicked", fmt.Errorf("panic: %v", r), logging.LogFields{
				"method": in.Method,
				"path":   in.Path,
			})
			resp = response.InternalError()
		}
		p.metrics.observeRequest(route, in.Method, resp.Code())
	}()

	match, err := p.routes.Load().Resolve(in.Path, in.Method)
	if err != nil {
		return response.Unknown()
	}
	route = match.Template

	resp, err = p.run(ctx, match, in)
	if err != nil {
		p.logger.Error("Request failed", err, logging.LogFields{
			"method": in.Method,
			"route":  route,
		})
		return response.InternalError()
	}
	return resp
}

func (p *Pipeline) run(ctx context.Context, match routing.Match[*leaf], in Incoming) (response.Response, error) {
	l := match.Leaf
	req := strategy.Request{
		Method:  match.Method,
		Body:    in.Body,
		Query:   in.Query,
		Headers: in.Headers,
		Params:  match.Params,
	}

	if result := validation.Check(l.route.Validation, req.Document()); !result.OK() {
		p.logger.Debug("Request failed validation", logging.LogFields{
			"route":    match.Template,
			"messages": result.Messages,
		})
		return response.InvalidBody(result.Messages), nil
	}

	if len(l.steps) == 0 {
		if l.fallback == nil {
			return response.NoStrategy(), nil
		}
		return p.invoke(ctx, l.fallback, Await, req, in.URL, strategy.Outputs{}, l.route.DefaultPayload)
	}

	outputs := strategy.Outputs{}
	final := response.Success()
	for _, step := range l.steps {
		if step.Wait == FireAndForget {
			p.dispatch(ctx, step, req, in.URL, outputs.Clone())
			continue
		}
		res, err := p.invoke(ctx, step.strategy, Await, req, in.URL, outputs, step.Payload)
		if err != nil {
			return response.Response{}, fmt.Errorf("step %s: %w", step.strategy.Name(), err)
		}
		if res.IsError() {
			return res, nil
		}
		if step.Extract == ExtractAllParams {
			outputs[step.strategy.Name()] = res.Body()
		}
		final = res
	}
	return final, nil
}

func (p *Pipeline) invoke(ctx context.Context, s strategy.Strategy, wait WaitPolicy, req strategy.Request, url string, outputs strategy.Outputs, payload strategy.Payload) (response.Response, error) {
	ctx, span := p.tracer.Start(ctx, "strategy "+s.Name(), trace.WithAttributes(
		attribute.String("flowgate.strategy", s.Name()),
		attribute.String("flowgate.wait", wait.String()),
	))
	defer span.End()

	start := time.Now()
	res, err := s.HandleRequest(ctx, req, url, outputs, payload)
	p.metrics.observeStep(s.Name(), wait, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", res.Code()))
	return res, nil
}

// dispatch runs a fire-and-forget step detached from the request: its
// outcome is logged and never reaches the caller.
func (p *Pipeline) dispatch(ctx context.Context, step boundStep, req strategy.Request, url string, outputs strategy.Outputs) {
	detached := strategy.Detached(context.WithoutCancel(ctx))
	name := step.strategy.Name()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.metrics.observeAsyncFailure(name)
				p.logger.Error("Fire-and-forget step panicked", fmt.Errorf("panic: %v", r), logging.LogFields{
					"strategy": name,
					"data":     req.Data(),
					"outputs":  outputs,
				})
			}
		}()
		res, err := p.invoke(detached, step.strategy, FireAndForget, req, url, outputs, step.Payload)
		switch {
		case err != nil:
			p.metrics.observeAsyncFailure(name)
			p.logger.Error("Fire-and-forget step failed", err, logging.LogFields{
				"strategy": name,
				"data":     req.Data(),
				"outputs":  outputs,
			})
		case res.IsError():
			p.metrics.observeAsyncFailure(name)
			p.logger.Info("Fire-and-forget step returned an error response", logging.LogFields{
				"strategy": name,
				"code":     res.Code(),
			})
		}
	}()
}
