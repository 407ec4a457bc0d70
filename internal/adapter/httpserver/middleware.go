package httpserver

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/chatrelay/internal/platform/correlation"
	apperrors "github.com/pscheid92/chatrelay/internal/platform/errors"
)

const headerAPIKey = "X-API-Key"

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(echo.HeaderXRequestID)
		if id == "" {
			id = correlation.NewID()
		}
		c.Response().Header().Set(echo.HeaderXRequestID, id)

		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// requireAPIKey guards a route with the shared API key. An empty key disables the check.
func requireAPIKey(key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if key == "" {
				return next(c)
			}

			provided := c.Request().Header.Get(headerAPIKey)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				return apperrors.UnauthorizedError("Invalid API key")
			}
			return next(c)
		}
	}
}
