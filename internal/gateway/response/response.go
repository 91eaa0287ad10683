// Package response defines the immutable result every gateway stage returns.
package response

import (
	"net/http"

	"github.com/drblury/flowgate/internal/runtime/metadata"
)

// Response is an HTTP-shaped result. The zero value is not meaningful; use the
// constructors.
type Response struct {
	code   int
	body   any
	header http.Header
}

// Code returns the HTTP status code.
func (r Response) Code() int { return r.code }

// Body returns the JSON-serialisable body.
func (r Response) Body() any { return r.body }

// Header returns a copy of the response headers with every value kept.
func (r Response) Header() http.Header { return r.header.Clone() }

// Headers returns the headers flattened to lower-cased keys, repeated values
// joined with ", ".
func (r Response) Headers() metadata.Metadata { return metadata.FromHTTP(r.header) }

// IsError reports whether the response stops a pipeline.
func (r Response) IsError() bool {
	return r.code != 0 && r.code >= http.StatusBadRequest
}

// Success is the default 200 result.
func Success() Response {
	return Response{code: http.StatusOK, body: successBody()}
}

// Custom builds a response with caller-chosen parts. A zero code means 200
// and a nil body means the default success body.
func Custom(code int, body any, headers metadata.Metadata) Response {
	if code == 0 {
		code = http.StatusOK
	}
	if body == nil {
		body = successBody()
	}
	r := Response{code: code, body: body}
	if len(headers) > 0 {
		r.header = make(http.Header, len(headers))
		headers.ApplyTo(r.header)
	}
	return r
}

// Relay is Custom for headers that may repeat, such as Set-Cookie.
func Relay(code int, body any, header http.Header) Response {
	r := Custom(code, body, nil)
	if len(header) > 0 {
		r.header = header.Clone()
	}
	return r
}

// InvalidBody reports a failed validation gate.
func InvalidBody(messages []string) Response {
	return failure(http.StatusUnprocessableEntity, append([]string(nil), messages...))
}

// Unknown is returned for unmatched paths and unmatched methods alike.
func Unknown() Response {
	return failure(http.StatusNotFound, []string{"Unknown request"})
}

// Timeout is returned when a bridged call gets no reply in time.
func Timeout() Response {
	return failure(http.StatusGatewayTimeout, []string{"Request timeout"})
}

// InternalError hides unexpected failures from callers.
func InternalError() Response {
	return failure(http.StatusInternalServerError, []string{"Internal Error"})
}

// NoStrategy is returned for a route with neither steps nor a default strategy.
func NoStrategy() Response {
	return failure(http.StatusInternalServerError, []string{"No strategy configured"})
}

func successBody() map[string]any {
	return map[string]any{"success": true}
}

func failure(code int, messages []string) Response {
	if messages == nil {
		messages = []string{}
	}
	return Response{
		code: code,
		body: map[string]any{"errors": messages, "success": false},
	}
}
