package strategy

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostPoolsReuseClientPerOrigin(t *testing.T) {
	pools, err := NewHostPools(8, 4, time.Second)
	require.NoError(t, err)

	a := pools.Client("http://inventory:8080")
	b := pools.Client("http://inventory:8080")
	c := pools.Client("http://ledger:8080")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, pools.Len())
	assert.Equal(t, time.Second, a.Timeout)
}

func TestHostPoolsConcurrentFirstUse(t *testing.T) {
	pools, err := NewHostPools(8, 4, time.Second)
	require.NoError(t, err)

	const workers = 16
	clients := make(chan any, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clients <- pools.Client("http://same-origin")
		}()
	}
	wg.Wait()
	close(clients)

	first := <-clients
	for c := range clients {
		assert.Same(t, first, c)
	}
	assert.Equal(t, 1, pools.Len())
}

func TestHostPoolsBoundedByLRU(t *testing.T) {
	pools, err := NewHostPools(2, 1, time.Second)
	require.NoError(t, err)

	first := pools.Client("http://a")
	pools.Client("http://b")
	pools.Client("http://a")
	pools.Client("http://c")

	assert.Equal(t, 2, pools.Len())
	assert.Same(t, first, pools.Client("http://a"), "recently used origin must survive eviction")

	pools.Close()
	assert.Equal(t, 0, pools.Len())
}

func TestNewHostPoolsRejectsZeroSize(t *testing.T) {
	_, err := NewHostPools(0, 1, time.Second)
	assert.Error(t, err)
}
