package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoatlas/poi-admin-api/internal/ratelimit"
)

type stubStore struct {
	allowed bool
	err     error
	hits    int
}

func (s *stubStore) Hit(context.Context, string) (bool, error) {
	s.hits++
	return s.allowed, s.err
}

func (s *stubStore) Reset(context.Context, string) error { return nil }

func runLimiter(t *testing.T, store ratelimit.AttemptStore) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "1.2.3.4:5678"
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := LoginRateLimit(store)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, h(c))
	return rec
}

func TestLoginRateLimitAllows(t *testing.T) {
	store := &stubStore{allowed: true}
	rec := runLimiter(t, store)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.hits)
}

func TestLoginRateLimitBlocks(t *testing.T) {
	rec := runLimiter(t, &stubStore{allowed: false})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Too many login attempts")
}

func TestLoginRateLimitFailsOpen(t *testing.T) {
	rec := runLimiter(t, &stubStore{err: errors.New("redis down")})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginRateLimitRealStoreSequence(t *testing.T) {
	store := ratelimit.NewMemoryStore(2, time.Minute)

	for i := 0; i < 2; i++ {
		rec := runLimiter(t, store)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec := runLimiter(t, store)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
