package metadata

import (
	"net/http"
	"strings"
)

// Metadata holds flat string headers: inbound HTTP headers, upstream response
// headers and the metadata attached to bridged messages.
type Metadata map[string]string

// Metadata keys set on outbound bridge messages.
const (
	KeyCorrelationID = "correlation_id"
	KeyPartitionKey  = "partition_key"
	KeyMessageName   = "message_name"
)

func (m Metadata) cloneWithExtra(extra int) Metadata {
	size := len(m) + extra
	if size <= 0 {
		return Metadata{}
	}

	cloned := make(Metadata, size)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// With returns a cloned metadata map containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// WithAll returns a cloned metadata map containing the supplied entries.
func (m Metadata) WithAll(entries Metadata) Metadata {
	cloned := m.cloneWithExtra(len(entries))
	for k, v := range entries {
		cloned[k] = v
	}
	return cloned
}

// New constructs a Metadata map from alternating key/value pairs.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}

// FromHTTP flattens HTTP headers. Keys are lower-cased and repeated values are
// joined with ", ".
func FromHTTP(h http.Header) Metadata {
	md := make(Metadata, len(h))
	for k, values := range h {
		md[strings.ToLower(k)] = strings.Join(values, ", ")
	}
	return md
}

// ApplyTo writes every entry into h, replacing existing values.
func (m Metadata) ApplyTo(h http.Header) {
	for k, v := range m {
		h.Set(k, v)
	}
}
