package strategy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/flowgate/internal/gateway/broker"
	"github.com/drblury/flowgate/internal/gateway/envelope"
	"github.com/drblury/flowgate/internal/gateway/response"
	errspkg "github.com/drblury/flowgate/internal/runtime/errors"
	"github.com/drblury/flowgate/internal/runtime/logging"
)

type fakeRequester struct {
	calls []broker.Call
	reply envelope.Message
	err   error
}

func (f *fakeRequester) Request(_ context.Context, call broker.Call) (envelope.Message, error) {
	f.calls = append(f.calls, call)
	return f.reply, f.err
}

func TestBridgeReturnsReply(t *testing.T) {
	requester := &fakeRequester{reply: envelope.New(
		map[string]any{"status": "reserved"},
		envelope.Headers{envelope.HeaderCorrelationID: "01J", "traceId": "t-1"},
	)}
	bridge := NewBridge("", requester, logging.NewNopServiceLogger())
	assert.Equal(t, "bridge", bridge.Name())

	req := Request{Body: map[string]any{"customer": "c-1"}, Params: map[string]string{"id": "42"}}
	payload := Payload{"topic": "inventory", "partitionKey": "customer", "messageName": "ReserveStock", "timeout": "5s"}

	resp, err := bridge.HandleRequest(context.Background(), req, "http://gw/orders/42", Outputs{"pricing": 12}, payload)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Code())
	assert.Equal(t, map[string]any{
		"data":    map[string]any{"status": "reserved"},
		"headers": map[string]any{envelope.HeaderCorrelationID: "01J", "traceId": "t-1"},
	}, resp.Body())

	require.Len(t, requester.calls, 1)
	call := requester.calls[0]
	assert.Equal(t, "inventory", call.Topic)
	assert.Equal(t, "customer", call.PartitionKeyPath)
	assert.Equal(t, 5*time.Second, call.Timeout)
	assert.False(t, call.NoWait)
	assert.Equal(t, envelope.Headers{"messageName": "ReserveStock"}, call.Headers)
	assert.Equal(t, map[string]any{
		"customer": "c-1",
		"params":   map[string]any{"id": "42"},
		"pricing":  12,
	}, call.Data)

	key, ok := broker.PartitionKey(call.PartitionKeyPath, call.Data)
	assert.True(t, ok)
	assert.Equal(t, "c-1", key)
}

func TestBridgeTimeoutMapsTo504(t *testing.T) {
	requester := &fakeRequester{err: fmt.Errorf("%w: correlation \"x\" after 1s", errspkg.ErrTimeout)}
	bridge := NewBridge("", requester, nil)

	resp, err := bridge.HandleRequest(context.Background(), Request{}, "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, response.Timeout(), resp)
}

func TestBridgeNoWait(t *testing.T) {
	requester := &fakeRequester{}
	bridge := NewBridge("ledger", requester, nil)

	resp, err := bridge.HandleRequest(context.Background(), Request{Body: "x"}, "", nil, Payload{"noWait": true})
	require.NoError(t, err)
	assert.Equal(t, response.Success(), resp)
	assert.True(t, requester.calls[0].NoWait)
}

func TestBridgeDetachedStepDoesNotWait(t *testing.T) {
	requester := &fakeRequester{}
	bridge := NewBridge("ledger", requester, nil)

	ctx := Detached(context.Background())
	resp, err := bridge.HandleRequest(ctx, Request{Body: "x"}, "", nil, Payload{"topic": "ledger"})
	require.NoError(t, err)
	assert.Equal(t, response.Success(), resp)
	require.Len(t, requester.calls, 1)
	assert.True(t, requester.calls[0].NoWait)
}

func TestDetached(t *testing.T) {
	assert.False(t, IsDetached(context.Background()))
	assert.True(t, IsDetached(Detached(context.Background())))
}

func TestBridgeErrors(t *testing.T) {
	requester := &fakeRequester{err: errors.New("publish failed")}
	bridge := NewBridge("", requester, nil)

	_, err := bridge.HandleRequest(context.Background(), Request{}, "", nil, nil)
	assert.ErrorContains(t, err, "publish failed")

	_, err = bridge.HandleRequest(context.Background(), Request{}, "", nil, Payload{"timeout": "soon"})
	assert.ErrorContains(t, err, `timeout "soon"`)
}
