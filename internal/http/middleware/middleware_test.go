package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"asset-pipeline/internal/auth"
	"asset-pipeline/internal/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID_KeepsValidHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := RequestID()(func(c echo.Context) error { return nil })(c)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", GetRequestID(c))
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestRequestID_ReplacesInvalidHeader(t *testing.T) {
	for _, bad := range []string{"", "has space", strings.Repeat("x", 65)} {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, bad)
		c := e.NewContext(req, httptest.NewRecorder())

		require.NoError(t, RequestID()(func(c echo.Context) error { return nil })(c))
		_, err := uuid.Parse(GetRequestID(c))
		assert.NoError(t, err, "input %q", bad)
	}
}

func TestActorKey(t *testing.T) {
	e := echo.New()
	newCtx := func() echo.Context {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.7:5555"
		return e.NewContext(req, httptest.NewRecorder())
	}

	anon := newCtx()
	assert.Equal(t, "ip:10.0.0.7", ActorKey(anon))

	userID := uuid.New()
	user := newCtx()
	user.Set(auth.ContextKeyActorType, auth.ActorUser)
	user.Set(auth.ContextKeyUserID, userID)
	assert.Equal(t, "user:"+userID.String(), ActorKey(user))

	worker := newCtx()
	worker.Set(auth.ContextKeyActorType, auth.ActorWorker)
	worker.Set(auth.ContextKeyScope, "batch")
	assert.Equal(t, "worker:batch", ActorKey(worker))
}

func TestRequestLogger_RendersErrors(t *testing.T) {
	e := echo.New()
	e.Use(RequestLogger(logger.Nop()))
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "short and stout")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	serve := func(path string) *httptest.ResponseRecorder {
		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), rec)
		require.NoError(t, SecurityHeaders()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c))
		return rec
	}

	signed := serve("/uploads/signed/public?key=k&expires=1&sig=abc")
	assert.Equal(t, "nosniff", signed.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", signed.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", signed.Header().Get("Referrer-Policy"))
	assert.Equal(t, "no-store", signed.Header().Get("Cache-Control"))
	assert.Equal(t, apiContentSecurityPolicy, signed.Header().Get("Content-Security-Policy"))

	download := serve("/api/assets/" + uuid.NewString() + "/download")
	assert.Equal(t, "private, no-store", download.Header().Get("Cache-Control"))
	assert.Equal(t, downloadContentSecurityPolicy, download.Header().Get("Content-Security-Policy"))

	admin := serve("/api/admin/assets")
	assert.Equal(t, "no-store", admin.Header().Get("Cache-Control"))

	health := serve("/health")
	assert.Equal(t, "no-cache", health.Header().Get("Cache-Control"))
}
