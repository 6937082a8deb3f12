package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestLoggerComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Component: ComponentRecurring, Output: &buf})
	assert.Equal(t, ComponentRecurring, logger.Component())

	logger.Info("run finished", NewFields().WithRun("2025-03-01", 3, 1).WithError(errors.New("boom")).ToSlice()...)
	out := buf.String()
	assert.Contains(t, out, "component=recurring")
	assert.Contains(t, out, "generated=3")
	assert.Contains(t, out, "error=boom")

	buf.Reset()
	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	child := logger.WithComponent(ComponentLock)
	assert.Equal(t, ComponentLock, child.Component())
}

func TestFromContextFallsBack(t *testing.T) {
	assert.Equal(t, "unknown", FromContext(context.Background()).Component())

	logger := New(Config{Component: ComponentWorker, Output: &bytes.Buffer{}})
	assert.Same(t, logger, FromContext(NewContext(context.Background(), logger)))
}

func TestMiddlewareLogsRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Output: &buf})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Middleware(logger))
	r.Get("/api/recurring-rules/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ComponentHTTP, FromContext(r.Context()).Component())
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recurring-rules/abc", nil))

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "status_code=404")
	assert.Contains(t, out, "route=/api/recurring-rules/{id}")
	assert.Contains(t, out, "request_id=")
}
