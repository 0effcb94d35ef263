package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alanyoungcy/kalshitracker/internal/domain"
	"github.com/alanyoungcy/kalshitracker/internal/server/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	dir   string
	dates []time.Time
}

func (f *fakeStore) Dates() ([]time.Time, error) { return f.dates, nil }

func (f *fakeStore) Has(date time.Time) (bool, error) {
	for _, d := range f.dates {
		if d.Equal(date) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) Path(date time.Time) string {
	return filepath.Join(f.dir, domain.FormatDate(date)+".json")
}

type fixedStatus handler.RunStatus

func (s fixedStatus) Status() handler.RunStatus { return handler.RunStatus(s) }

func newTestServer(t *testing.T, apiKey string) (http.Handler, chan struct{}) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	day := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{dir: t.TempDir(), dates: []time.Time{day, day.AddDate(0, 0, 1)}}
	require.NoError(t, os.WriteFile(store.Path(day), []byte(`{"date":"2025-09-01","trades":[]}`), 0o644))

	trigger := make(chan struct{}, 1)
	srv := NewServer(Config{Addr: ":0", APIKey: apiKey}, Handlers{
		Health:    handler.NewHealthHandler(map[string]handler.HealthCheck{"snapshot_store": func(context.Context) error { return nil }}),
		Status:    handler.NewStatusHandler(fixedStatus{Mode: "full", Schedule: "0 6 * * *", Runs: 3}),
		Snapshots: handler.NewSnapshotHandler(store, logger),
		Sync:      handler.NewSyncHandler(trigger, logger),
	}, logger)
	return srv.Handler(), trigger
}

func do(t *testing.T, h http.Handler, method, path, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthNeedsNoAuth(t *testing.T) {
	h, _ := newTestServer(t, "secret")
	rec := do(t, h, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHealthReportsFailingCheck(t *testing.T) {
	h := handler.NewHealthHandler(map[string]handler.HealthCheck{
		"snapshot_store": func(context.Context) error { return nil },
		"disk":           func(context.Context) error { return errors.New("read-only") },
	})
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
	assert.Contains(t, rec.Body.String(), `"disk":"read-only"`)
	assert.Contains(t, rec.Body.String(), `"snapshot_store":"ok"`)
}

func TestAuth(t *testing.T) {
	h, _ := newTestServer(t, "secret")

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/status", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/status", "wrong").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/status", "secret").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatus(t *testing.T) {
	h, _ := newTestServer(t, "")
	rec := do(t, h, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got handler.RunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "full", got.Mode)
	assert.Equal(t, 3, got.Runs)
}

func TestSnapshots(t *testing.T) {
	h, _ := newTestServer(t, "")

	rec := do(t, h, http.MethodGet, "/api/snapshots", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count int      `json:"count"`
		First string   `json:"first"`
		Last  string   `json:"last"`
		Dates []string `json:"dates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "2025-09-01", list.First)
	assert.Equal(t, "2025-09-02", list.Last)

	rec = do(t, h, http.MethodGet, "/api/snapshots/2025-09-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"date":"2025-09-01"`)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/snapshots/2025-10-01", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/snapshots/yesterday", "").Code)
}

func TestTriggerCoalesces(t *testing.T) {
	h, trigger := newTestServer(t, "")

	rec := do(t, h, http.MethodPost, "/api/sync/trigger", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"coalesced":false`)

	rec = do(t, h, http.MethodPost, "/api/sync/trigger", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"coalesced":true`)
	assert.Len(t, trigger, 1)

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/sync/trigger", "").Code)
}
