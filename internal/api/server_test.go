package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/furniture-helper/furniture-crawler/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

func doRequest(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, zap.NewNop())
	rec := doRequest(t, s, "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyzReflectsReadyFunc(t *testing.T) {
	t.Parallel()

	ready := NewServer(func(context.Context) error { return nil }, nil, zap.NewNop())
	rec := doRequest(t, ready, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	down := NewServer(func(context.Context) error { return errors.New("postgres unreachable") }, nil, zap.NewNop())
	rec = doRequest(t, down, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "unavailable", body["status"])
}

func TestStatsSnapshot(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, func() Stats {
		return Stats{RunID: "0198f7c2", Admitted: 12, Completed: 9, Tracked: 3}
	}, zap.NewNop())
	rec := doRequest(t, s, "/v1/stats")

	require.Equal(t, http.StatusOK, rec.Code)
	var got Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, int64(12), got.Admitted)
	require.Equal(t, int64(9), got.Completed)
	require.Equal(t, 3, got.Tracked)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, zap.NewNop())
	rec := doRequest(t, s, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}
