package strategy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/drblury/flowgate/internal/gateway/broker"
	"github.com/drblury/flowgate/internal/gateway/envelope"
	"github.com/drblury/flowgate/internal/gateway/response"
	errspkg "github.com/drblury/flowgate/internal/runtime/errors"
	"github.com/drblury/flowgate/internal/runtime/logging"
)

// BridgePayload configures one bridged step.
type BridgePayload struct {
	// Topic defaults to the broker's default request topic.
	Topic string `json:"topic"`
	// PartitionKey is a dot-separated path into the outbound data.
	PartitionKey string `json:"partitionKey"`
	// MessageName is copied into the envelope headers for responders that
	// multiplex one topic.
	MessageName string `json:"messageName"`
	// Timeout is a duration string such as "5s".
	Timeout string `json:"timeout"`
	// NoWait publishes and returns without waiting for a reply. Fire-and-forget
	// steps never wait, whatever this says.
	NoWait bool `json:"noWait"`
}

// Requester is the part of the broker the bridge strategy needs.
type Requester interface {
	Request(ctx context.Context, call broker.Call) (envelope.Message, error)
}

// Bridge turns a step into a request/response exchange over pub/sub.
type Bridge struct {
	name      string
	requester Requester
	logger    logging.ServiceLogger
}

// NewBridge returns a Bridge registered under name, or "bridge".
func NewBridge(name string, requester Requester, logger logging.ServiceLogger) *Bridge {
	if name == "" {
		name = "bridge"
	}
	return &Bridge{name: name, requester: requester, logger: logging.WithComponent(logger, "strategy."+name)}
}

func (b *Bridge) Name() string { return b.name }

func (b *Bridge) HandleRequest(ctx context.Context, req Request, _ string, outputs Outputs, payload Payload) (response.Response, error) {
	var p BridgePayload
	if err := payload.Decode(&p); err != nil {
		return response.Response{}, fmt.Errorf("%s: decode payload: %w", b.name, err)
	}
	var timeout time.Duration
	if p.Timeout != "" {
		d, err := time.ParseDuration(p.Timeout)
		if err != nil {
			return response.Response{}, fmt.Errorf("%s: timeout %q: %w", b.name, p.Timeout, err)
		}
		timeout = d
	}

	noWait := p.NoWait || IsDetached(ctx)

	headers := envelope.Headers{}
	if p.MessageName != "" {
		headers["messageName"] = p.MessageName
	}

	reply, err := b.requester.Request(ctx, broker.Call{
		Topic:            p.Topic,
		Data:             Compose(req, outputs),
		Headers:          headers,
		PartitionKeyPath: p.PartitionKey,
		Timeout:          timeout,
		NoWait:           noWait,
	})
	switch {
	case errors.Is(err, errspkg.ErrTimeout):
		b.logger.Info("Bridged call timed out", logging.LogFields{"topic": p.Topic, "error": err.Error()})
		return response.Timeout(), nil
	case err != nil:
		return response.Response{}, fmt.Errorf("%s: %w", b.name, err)
	case noWait:
		return response.Success(), nil
	}

	return response.Custom(http.StatusOK, map[string]any{
		"data":    reply.Data,
		"headers": map[string]any(reply.Headers),
	}, nil), nil
}
