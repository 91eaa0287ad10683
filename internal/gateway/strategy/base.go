package strategy

import (
	"context"
	"net/http"

	"github.com/drblury/flowgate/internal/gateway/response"
	"github.com/drblury/flowgate/internal/runtime/logging"
)

// Base echoes what it receives. It is the default for routes that only
// validate.
type Base struct {
	name string
}

// NewBase returns a Base registered under name, or "base" if name is empty.
func NewBase(name string) *Base {
	if name == "" {
		name = "base"
	}
	return &Base{name: name}
}

func (b *Base) Name() string { return b.name }

func (b *Base) HandleRequest(_ context.Context, req Request, _ string, _ Outputs, payload Payload) (response.Response, error) {
	return response.Custom(http.StatusOK, map[string]any{
		"data":    req.Data(),
		"payload": map[string]any(payload),
	}, nil), nil
}

// Logging records each request and returns the default success.
type Logging struct {
	name   string
	logger logging.ServiceLogger
}

// NewLogging returns a Logging strategy registered under name, or "logging".
func NewLogging(name string, logger logging.ServiceLogger) *Logging {
	if name == "" {
		name = "logging"
	}
	return &Logging{name: name, logger: logging.WithComponent(logger, "strategy."+name)}
}

func (l *Logging) Name() string { return l.name }

func (l *Logging) HandleRequest(_ context.Context, req Request, requestURL string, outputs Outputs, payload Payload) (response.Response, error) {
	l.logger.Info("Handling request", logging.LogFields{
		"url":     requestURL,
		"method":  req.Method,
		"data":    req.Data(),
		"outputs": outputs,
		"payload": payload,
	})
	return response.Success(), nil
}
