// Package envelope defines the JSON message exchanged with bridged services.
//
// On the wire a message is {"headers": {...}, "data": ...}. Requests carry
// their correlation id under headers.id and replies echo it back unchanged.
package envelope

import (
	"github.com/drblury/flowgate/internal/runtime/ids"
	"github.com/drblury/flowgate/internal/runtime/jsoncodec"
)

// Well-known header keys.
const (
	HeaderCorrelationID      = "id"
	HeaderTopicToRespond     = "topicToRespond"
	HeaderPartitionToRespond = "partitionToRespond"
	HeaderAwaitsResponse     = "awaitsResponse"
)

// Headers are free-form message headers.
type Headers map[string]any

// Clone returns a shallow copy with room for extra entries.
func (h Headers) Clone() Headers {
	out := make(Headers, len(h)+4)
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Message is a decoded envelope.
type Message struct {
	Headers Headers `json:"headers"`
	Data    any     `json:"data"`
}

// New builds a message with a private copy of headers.
func New(data any, headers Headers) Message {
	return Message{Headers: headers.Clone(), Data: data}
}

// CorrelationID returns headers.id when it is a non-empty string.
func (m Message) CorrelationID() (string, bool) {
	id, ok := m.Headers[HeaderCorrelationID].(string)
	return id, ok && id != ""
}

// Marshal encodes the message.
func (m Message) Marshal() ([]byte, error) {
	if m.Headers == nil {
		m.Headers = Headers{}
	}
	return jsoncodec.Marshal(m)
}

// Decode parses raw bytes. An empty payload decodes to a blank message.
func Decode(raw []byte) (Message, error) {
	var m Message
	if len(raw) == 0 {
		return Message{Headers: Headers{}}, nil
	}
	if err := jsoncodec.Unmarshal(raw, &m); err != nil {
		return Message{}, err
	}
	if m.Headers == nil {
		m.Headers = Headers{}
	}
	return m, nil
}

// Correlated is an outbound message with a freshly generated correlation id.
// It is never mutated after construction.
type Correlated struct {
	msg Message
	id  string
}

// NewCorrelated stamps a new correlation id into a copy of headers.
func NewCorrelated(data any, headers Headers) Correlated {
	id := ids.NewCorrelationID()
	h := headers.Clone()
	h[HeaderCorrelationID] = id
	return Correlated{msg: Message{Headers: h, Data: data}, id: id}
}

// CorrelationID returns the id stamped at construction.
func (c Correlated) CorrelationID() string { return c.id }

// Message returns a copy of the underlying message.
func (c Correlated) Message() Message {
	return Message{Headers: c.msg.Headers.Clone(), Data: c.msg.Data}
}

// Marshal encodes the message.
func (c Correlated) Marshal() ([]byte, error) {
	return c.msg.Marshal()
}
