package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func get(t *testing.T, server *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	server := NewServer(nil, zaptest.NewLogger(t))
	rec := get(t, server, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestReadyzReflectsProbe(t *testing.T) {
	t.Parallel()

	healthy := NewServer(func(context.Context) error { return nil }, zaptest.NewLogger(t))
	require.Equal(t, http.StatusOK, get(t, healthy, "/readyz").Code)

	broken := NewServer(func(context.Context) error {
		return errors.New("catalog is unreachable")
	}, zaptest.NewLogger(t))
	rec := get(t, broken, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "catalog is unreachable")
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := NewServer(nil, zaptest.NewLogger(t))
	rec := get(t, server, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
}
