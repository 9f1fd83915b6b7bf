package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/vitalpulse/internal/platform/correlation"
	apperrors "github.com/pscheid92/vitalpulse/internal/platform/errors"
)

func runMiddleware(t *testing.T, h echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, ErrorHandlingMiddleware()(h)(c))
	return rec
}

func TestMiddlewareWithStructuredError(t *testing.T) {
	rec := runMiddleware(t, func(echo.Context) error {
		return apperrors.ValidationError("invalid interval").WithContext("interval", "abc")
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid interval", resp.Error)
	assert.Equal(t, apperrors.TypeValidation, resp.Type)
	assert.Equal(t, "abc", resp.Context["interval"])
}

func TestMiddlewareWithStandardError(t *testing.T) {
	rec := runMiddleware(t, func(echo.Context) error {
		return errors.New("standard error")
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "internal server error", resp.Error)
	assert.Equal(t, apperrors.TypeInternal, resp.Type)
}

func TestMiddlewareWithNoError(t *testing.T) {
	rec := runMiddleware(t, func(c echo.Context) error {
		return c.String(http.StatusOK, "success")
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", rec.Body.String())
}

func TestMiddlewareAllErrorTypes(t *testing.T) {
	tests := []struct {
		err  *apperrors.Error
		code int
	}{
		{apperrors.UnauthorizedError("session rejected", nil), http.StatusUnauthorized},
		{apperrors.RateLimitedError("too many connections"), http.StatusTooManyRequests},
		{apperrors.UnavailableError("shutting down", errors.New("stopped")), http.StatusServiceUnavailable},
		{apperrors.ExternalError("record store failed", errors.New("refused")), http.StatusBadGateway},
		{apperrors.InternalError("boom", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Type), func(t *testing.T) {
			rec := runMiddleware(t, func(echo.Context) error { return tt.err })
			assert.Equal(t, tt.code, rec.Code)

			var resp apperrors.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.err.Type, resp.Type)
		})
	}
}

func TestMiddlewarePassesEchoHTTPError(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	httpErr := echo.NewHTTPError(http.StatusNotFound, "nope")
	err := ErrorHandlingMiddleware()(func(echo.Context) error { return httpErr })(c)

	assert.Same(t, httpErr, err)
}

func TestCorrelationMiddlewareSetsRequestID(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	var got string
	err := correlationMiddleware(func(c echo.Context) error {
		got, _ = correlation.Request(c.Request().Context())
		return nil
	})(c)

	require.NoError(t, err)
	assert.Len(t, got, 8)
}
