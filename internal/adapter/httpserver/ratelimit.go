package httpserver

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	apperrors "github.com/pscheid92/chatrelay/internal/platform/errors"
	"golang.org/x/time/rate"
)

// Idle per-client buckets are dropped after this long.
const clientBucketExpiry = 5 * time.Minute

// newRateLimiter throttles each client IP with a token bucket. CORS preflights are not counted.
func newRateLimiter(ratePerSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(ratePerSecond),
		Burst:     burst,
		ExpiresIn: clientBucketExpiry,
	})
	retryAfter := strconv.Itoa(int(math.Ceil(1 / ratePerSecond)))

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().Method == http.MethodOptions
		},
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, client string, _ error) error {
			c.Response().Header().Set("Retry-After", retryAfter)
			return apperrors.HandleError(c, apperrors.RateLimitedError("rate limit exceeded").WithContext("client", client))
		},
	})
}
