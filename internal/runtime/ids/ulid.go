package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
func CreateULID() string {
	return newULID(time.Now()).String()
}

// NewCorrelationID returns an identifier for a request/response exchange.
// Identifiers are unique within the process and sort by creation time, which
// keeps broker logs readable when many calls are in flight.
func NewCorrelationID() string {
	return CreateULID()
}

// CorrelationTime extracts the creation time encoded in a correlation id.
func CorrelationTime(id string) (time.Time, bool) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(parsed.Time()), true
}

func newULID(now time.Time) ulid.ULID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), entropy)
}
