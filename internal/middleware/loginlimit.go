package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/geoatlas/poi-admin-api/internal/ratelimit"
)

// LoginRateLimit guards the login endpoint only: every request through it
// counts as one attempt for the caller's IP, and once the budget is spent
// further attempts get 429 until the window elapses.  The login handler
// resets the counter on success, so a legitimate user who finally types the
// right password immediately regains the full budget.
//
// A store failure fails open: locking every user out because Redis blinked
// is worse than briefly losing the brute-force guard.
func LoginRateLimit(store ratelimit.AttemptStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := ratelimit.ClientIP(c.Request())
			allowed, err := store.Hit(c.Request().Context(), key)
			if err != nil {
				c.Logger().Warnf("login limiter store error for key=%s: %v", key, err)
				return next(c)
			}
			if !allowed {
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":      "Too many login attempts, please try again later.",
					"retryAfter": "15 minutes",
				})
			}
			return next(c)
		}
	}
}
