package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestKeyLockSerializesSameKey(t *testing.T) {
	k := NewKeyLock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("u|1")
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, k.size())
}

func TestKeyLockIndependentKeys(t *testing.T) {
	k := NewKeyLock()

	unlockA := k.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := k.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
	assert.Equal(t, 1, k.size())
	unlockA()
	assert.Zero(t, k.size())
}

func TestRateLimiterStore(t *testing.T) {
	s := NewRateLimiterStore(rate.Limit(1), 2)

	assert.True(t, s.Allow("u"))
	assert.True(t, s.Allow("u"))
	assert.False(t, s.Allow("u"))

	// other users have their own bucket
	assert.True(t, s.Allow("v"))

	s.SetLimiter("u", rate.Inf, 1)
	for i := 0; i < 10; i++ {
		assert.True(t, s.Allow("u"))
	}

	assert.Same(t, s.GetLimiter("v"), s.GetLimiter("v"))
}

func TestRateLimiterStorePrune(t *testing.T) {
	s := NewRateLimiterStore(rate.Limit(10), 10)

	s.GetLimiter("idle")
	s.SetLimiter("pinned", rate.Limit(1), 1)
	assert.Equal(t, 2, s.Len())

	time.Sleep(5 * time.Millisecond)
	s.GetLimiter("fresh")

	removed := s.Prune(2 * time.Millisecond)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, s.Len())
}
