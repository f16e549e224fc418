// Package ratelimit tracks failed login attempts per client key.  The store
// is an interface so single-instance deployments can use the in-process map
// while multi-instance deployments share counters through Redis; without
// that, each replica would grant its own attempt budget.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// AttemptStore counts login attempts inside a fixed window.
type AttemptStore interface {
	// Hit records one attempt for key and reports whether the attempt is
	// still within the allowed budget.
	Hit(ctx context.Context, key string) (bool, error)
	// Reset clears the counter for key entirely.  Called after a
	// successful login so the full budget is available again.
	Reset(ctx context.Context, key string) error
}

// ClientIP resolves the rate-limit key for a request: the first entry of the
// proxy-forwarded header, then the socket address, then "unknown".
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i >= 0 {
			fwd = fwd[:i]
		}
		if ip := strings.TrimSpace(fwd); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

type entry struct {
	count int
	reset time.Time
}

// MemoryStore is the in-process AttemptStore.  All state lives behind one
// mutex; Hit is a single read-modify-write so concurrent logins from the
// same address cannot lose increments.
type MemoryStore struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	keys   map[string]*entry
}

// NewMemoryStore builds a store allowing max attempts per window.  Stale
// entries are swept whenever a window restarts, so the store needs no
// background goroutine and can be created and dropped freely.
func NewMemoryStore(max int, window time.Duration) *MemoryStore {
	return &MemoryStore{
		max:    max,
		window: window,
		keys:   make(map[string]*entry),
	}
}

// Hit implements AttemptStore.  The first attempt for a key (or the first
// after its window elapsed) restarts the window at count 1.
func (s *MemoryStore) Hit(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e := s.keys[key]
	if e == nil || now.After(e.reset) {
		s.evict(now)
		s.keys[key] = &entry{count: 1, reset: now.Add(s.window)}
		return s.max >= 1, nil
	}
	e.count++
	return e.count <= s.max, nil
}

// Reset implements AttemptStore.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
	return nil
}

// evict drops entries whose window has elapsed.  Callers hold the lock.
func (s *MemoryStore) evict(now time.Time) {
	for k, e := range s.keys {
		if now.After(e.reset) {
			delete(s.keys, k)
		}
	}
}
