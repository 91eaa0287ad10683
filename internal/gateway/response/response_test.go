package response

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drblury/flowgate/internal/runtime/metadata"
)

func TestFixedResponses(t *testing.T) {
	tests := []struct {
		name    string
		resp    Response
		code    int
		message string
	}{
		{"unknown", Unknown(), http.StatusNotFound, "Unknown request"},
		{"timeout", Timeout(), http.StatusGatewayTimeout, "Request timeout"},
		{"internal", InternalError(), http.StatusInternalServerError, "Internal Error"},
		{"no strategy", NoStrategy(), http.StatusInternalServerError, "No strategy configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.resp.Code())
			assert.Equal(t, map[string]any{"errors": []string{tt.message}, "success": false}, tt.resp.Body())
			assert.True(t, tt.resp.IsError())
		})
	}
}

func TestSuccess(t *testing.T) {
	resp := Success()
	assert.Equal(t, http.StatusOK, resp.Code())
	assert.Equal(t, map[string]any{"success": true}, resp.Body())
	assert.False(t, resp.IsError())
	assert.Empty(t, resp.Headers())
}

func TestInvalidBodyCopiesMessages(t *testing.T) {
	messages := []string{"parameter: body.amount is required"}
	resp := InvalidBody(messages)
	messages[0] = "mutated"

	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code())
	assert.Equal(t, map[string]any{
		"errors":  []string{"parameter: body.amount is required"},
		"success": false,
	}, resp.Body())

	empty := InvalidBody(nil)
	assert.Equal(t, []string{}, empty.Body().(map[string]any)["errors"])
}

func TestCustomDefaults(t *testing.T) {
	resp := Custom(0, nil, nil)
	assert.Equal(t, Success(), resp)

	created := Custom(http.StatusCreated, map[string]any{"id": "42"}, nil)
	assert.Equal(t, http.StatusCreated, created.Code())
	assert.Equal(t, map[string]any{"id": "42"}, created.Body())
}

func TestCustomHeadersAreImmutable(t *testing.T) {
	headers := metadata.Metadata{"x-upstream": "inventory"}
	resp := Custom(http.StatusOK, "ok", headers)

	headers["x-upstream"] = "mutated"
	assert.Equal(t, "inventory", resp.Headers()["x-upstream"])

	out := resp.Headers()
	out["x-upstream"] = "mutated again"
	assert.Equal(t, "inventory", resp.Headers()["x-upstream"])
}

func TestRelayKeepsRepeatedHeaders(t *testing.T) {
	upstream := http.Header{}
	upstream.Add("Set-Cookie", "a=1; Path=/")
	upstream.Add("Set-Cookie", "b=2; Path=/")
	resp := Relay(http.StatusOK, "ok", upstream)

	upstream.Add("Set-Cookie", "c=3")
	assert.Equal(t, []string{"a=1; Path=/", "b=2; Path=/"}, resp.Header().Values("Set-Cookie"))
	assert.Equal(t, "a=1; Path=/, b=2; Path=/", resp.Headers()["set-cookie"])

	out := resp.Header()
	out.Del("Set-Cookie")
	assert.Len(t, resp.Header().Values("Set-Cookie"), 2)
}

func TestIsErrorBoundary(t *testing.T) {
	assert.False(t, Custom(http.StatusNoContent, nil, nil).IsError())
	assert.False(t, Custom(399, nil, nil).IsError())
	assert.True(t, Custom(http.StatusBadRequest, nil, nil).IsError())
	assert.False(t, Response{}.IsError())
}
