package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestLevel(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/api/health", http.StatusOK, slog.LevelDebug},
		{"/api/status", http.StatusOK, slog.LevelInfo},
		{"/api/snapshots/x", http.StatusNotFound, slog.LevelWarn},
		{"/api/health", http.StatusServiceUnavailable, slog.LevelError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, requestLevel(tt.path, tt.status), "%s %d", tt.path, tt.status)
	}
}

func TestLogging_RecordsStatusAndBytes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("hello"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/sync/trigger", nil))

	assert.Contains(t, buf.String(), `"status":202`)
	assert.Contains(t, buf.String(), `"bytes":5`)
}

func TestAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name   string
		key    string
		header string
		value  string
		want   int
	}{
		{"disabled", "", "", "", http.StatusNoContent},
		{"missing", "k", "", "", http.StatusUnauthorized},
		{"bearer", "k", "Authorization", "Bearer k", http.StatusNoContent},
		{"bearer lowercase scheme", "k", "Authorization", "bearer k", http.StatusNoContent},
		{"basic is ignored", "k", "Authorization", "Basic k", http.StatusUnauthorized},
		{"api key header", "k", "X-API-Key", "k", http.StatusNoContent},
		{"wrong", "k", "X-API-Key", "nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			Auth(tt.key)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}
