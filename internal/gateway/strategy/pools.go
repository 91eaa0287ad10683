package strategy

import (
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HostPools hands out one pooled HTTP client per upstream origin. At most
// maxHosts origins keep a pool; the least recently used one is closed when a
// new origin arrives.
type HostPools struct {
	mu       sync.Mutex
	pools    *lru.Cache[string, *hostPool]
	poolSize int
	timeout  time.Duration
}

type hostPool struct {
	client    *http.Client
	transport *http.Transport
}

// NewHostPools creates the registry. poolSize caps connections per origin.
func NewHostPools(maxHosts, poolSize int, timeout time.Duration) (*HostPools, error) {
	cache, err := lru.NewWithEvict[string, *hostPool](maxHosts, func(_ string, p *hostPool) {
		p.transport.CloseIdleConnections()
	})
	if err != nil {
		return nil, err
	}
	return &HostPools{pools: cache, poolSize: poolSize, timeout: timeout}, nil
}

// Client returns the client for origin (scheme://host[:port]), creating it on
// first use. Concurrent first calls for the same origin share one client.
func (h *HostPools) Client(origin string) *http.Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if p, ok := h.pools.Get(origin); ok {
		return p.client
	}
	p := h.newPool()
	h.pools.Add(origin, p)
	return p.client
}

// Len returns the number of origins holding a pool.
func (h *HostPools) Len() int {
	return h.pools.Len()
}

// Close releases the idle connections of every pool.
func (h *HostPools) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pools.Purge()
}

func (h *HostPools) newPool() *hostPool {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if h.poolSize > 0 {
		base.MaxConnsPerHost = h.poolSize
		base.MaxIdleConnsPerHost = h.poolSize
	}
	return &hostPool{
		transport: base,
		client: &http.Client{
			Transport: otelhttp.NewTransport(base),
			Timeout:   h.timeout,
		},
	}
}
