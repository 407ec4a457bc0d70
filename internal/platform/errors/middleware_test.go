package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/chatrelay/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext() (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestMiddlewareWithStructuredError(t *testing.T) {
	c, rec := newTestContext()
	metrics.HTTPErrorsTotal.Reset()

	handler := Middleware()(func(c echo.Context) error {
		return ValidationError("limit must be a positive integer")
	})

	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "limit must be a positive integer", resp.Error)
	assert.Equal(t, TypeValidation, resp.Type)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPErrorsTotal.WithLabelValues("validation")))
}

func TestMiddlewareWithStandardError(t *testing.T) {
	c, rec := newTestContext()
	metrics.HTTPErrorsTotal.Reset()

	handler := Middleware()(func(c echo.Context) error {
		return fmt.Errorf("standard error")
	})

	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "internal server error", resp.Error)
	assert.Equal(t, TypeInternal, resp.Type)
}

func TestMiddlewareWithNoError(t *testing.T) {
	c, rec := newTestContext()

	handler := Middleware()(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMiddlewarePassesEchoHTTPError(t *testing.T) {
	c, _ := newTestContext()
	metrics.HTTPErrorsTotal.Reset()

	handler := Middleware()(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
	})

	err := handler(c)
	var httpErr *echo.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusTooManyRequests, httpErr.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPErrorsTotal.WithLabelValues("rate_limited")))
}

func TestHandleErrorWithNil(t *testing.T) {
	c, rec := newTestContext()

	require.NoError(t, HandleError(c, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestWrapHTTPError(t *testing.T) {
	tests := []struct {
		code int
		want ErrorType
	}{
		{http.StatusBadRequest, TypeValidation},
		{http.StatusUnauthorized, TypeUnauthorized},
		{http.StatusForbidden, TypeUnauthorized},
		{http.StatusNotFound, TypeNotFound},
		{http.StatusMethodNotAllowed, TypeNotFound},
		{http.StatusTooManyRequests, TypeRateLimited},
		{http.StatusBadGateway, TypeExternal},
		{http.StatusServiceUnavailable, TypeUnavailable},
		{http.StatusTeapot, TypeInternal},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			wrapped := WrapHTTPError(echo.NewHTTPError(tt.code, "msg"))
			assert.Equal(t, tt.want, wrapped.Type)
			assert.Equal(t, "msg", wrapped.Message)
		})
	}
}

func TestWrapHTTPErrorKeepsInternalCause(t *testing.T) {
	cause := errors.New("upgrade failed")
	httpErr := echo.NewHTTPError(http.StatusBadRequest).SetInternal(cause)

	wrapped := WrapHTTPError(httpErr)
	assert.Equal(t, cause, wrapped.Cause)
}

func TestWrapHTTPErrorWithNonStringMessage(t *testing.T) {
	wrapped := WrapHTTPError(&echo.HTTPError{Code: http.StatusInternalServerError, Message: 42})
	assert.Equal(t, "internal server error", wrapped.Message)
}
