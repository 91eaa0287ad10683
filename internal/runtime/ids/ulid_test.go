package ids

import (
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestCreateULIDSequentialOrdering(t *testing.T) {
	const total = 100
	ids := make([]string, total)
	for i := 0; i < total; i++ {
		ids[i] = CreateULID()
	}

	for i := 0; i < total; i++ {
		if _, err := ulid.Parse(ids[i]); err != nil {
			t.Fatalf("expected valid ULID, got %v", err)
		}
	}
	for i := 1; i < total; i++ {
		if ids[i-1] >= ids[i] {
			t.Fatalf("expected ULIDs to be strictly increasing, %s >= %s", ids[i-1], ids[i])
		}
	}
}

func TestNewCorrelationIDConcurrentUniqueness(t *testing.T) {
	const goroutines = 10
	const perGoroutine = 50

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{})
	)

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				id := NewCorrelationID()
				mu.Lock()
				if _, ok := seen[id]; ok {
					t.Errorf("duplicate correlation id generated: %s", id)
				}
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != goroutines*perGoroutine {
		t.Fatalf("expected %d unique ids, got %d", goroutines*perGoroutine, len(seen))
	}
}

func TestCorrelationTime(t *testing.T) {
	before := time.Now().Add(-time.Second)
	id := NewCorrelationID()

	created, ok := CorrelationTime(id)
	if !ok {
		t.Fatalf("expected %q to parse", id)
	}
	if created.Before(before) {
		t.Fatalf("expected creation time after %v, got %v", before, created)
	}

	if _, ok := CorrelationTime("not-a-ulid"); ok {
		t.Fatal("expected malformed id to be rejected")
	}
}
