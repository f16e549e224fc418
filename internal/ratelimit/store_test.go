package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreBudget(t *testing.T) {
	s := NewMemoryStore(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := s.Hit(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d should be allowed", i+1)
	}
	ok, err := s.Hit(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok, "attempt over budget must be blocked")

	// A different key has its own budget.
	ok, err = s.Hit(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStoreWindowRestart(t *testing.T) {
	s := NewMemoryStore(1, 20*time.Millisecond)
	ctx := context.Background()

	ok, _ := s.Hit(ctx, "k")
	assert.True(t, ok)
	ok, _ = s.Hit(ctx, "k")
	assert.False(t, ok)

	time.Sleep(30 * time.Millisecond)
	ok, _ = s.Hit(ctx, "k")
	assert.True(t, ok, "elapsed window restarts the counter")
}

func TestMemoryStoreReset(t *testing.T) {
	s := NewMemoryStore(1, time.Minute)
	ctx := context.Background()

	_, _ = s.Hit(ctx, "k")
	ok, _ := s.Hit(ctx, "k")
	require.False(t, ok)

	require.NoError(t, s.Reset(ctx, "k"))
	ok, _ = s.Hit(ctx, "k")
	assert.True(t, ok)
}

func TestMemoryStoreEvictsStaleKeys(t *testing.T) {
	s := NewMemoryStore(5, 10*time.Millisecond)
	ctx := context.Background()

	_, _ = s.Hit(ctx, "a")
	_, _ = s.Hit(ctx, "b")
	time.Sleep(15 * time.Millisecond)

	// A fresh window for any key sweeps out the elapsed ones.
	_, _ = s.Hit(ctx, "c")

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.keys, 1, "idle keys must not accumulate")
	assert.Contains(t, s.keys, "c")
}

func TestMemoryStoreConcurrentHits(t *testing.T) {
	s := NewMemoryStore(50, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	allowed := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := s.Hit(ctx, "k")
			allowed <- ok
		}()
	}
	wg.Wait()
	close(allowed)

	n := 0
	for ok := range allowed {
		if ok {
			n++
		}
	}
	assert.Equal(t, 50, n, "no increments may be lost under concurrency")
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"forwarded single", "10.0.0.1:1234", "203.0.113.9", "203.0.113.9"},
		{"forwarded chain", "10.0.0.1:1234", "203.0.113.9, 10.0.0.2", "203.0.113.9"},
		{"socket address", "198.51.100.3:5555", "", "198.51.100.3"},
		{"bare address", "198.51.100.3", "", "198.51.100.3"},
		{"nothing", "", "", "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := http.NewRequest(http.MethodPost, "/", nil)
			r.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			assert.Equal(t, tc.want, ClientIP(r))
		})
	}
}
