package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/kalshitracker/internal/domain"
)

// RunStatus describes the scheduler's most recent run.
type RunStatus struct {
	Mode       string             `json:"mode"`
	Schedule   string             `json:"schedule"`
	Running    bool               `json:"running"`
	Runs       int                `json:"runs"`
	LastStart  *time.Time         `json:"last_start,omitempty"`
	LastFinish *time.Time         `json:"last_finish,omitempty"`
	LastError  string             `json:"last_error,omitempty"`
	LastRunDir string             `json:"last_run_dir,omitempty"`
	LastSync   *domain.SyncReport `json:"last_sync,omitempty"`
}

// StatusSource supplies the current RunStatus.
type StatusSource interface {
	Status() RunStatus
}

// StatusHandler serves the run status.
type StatusHandler struct {
	source StatusSource
}

// NewStatusHandler creates a StatusHandler reading from source.
func NewStatusHandler(source StatusSource) *StatusHandler {
	return &StatusHandler{source: source}
}

// GetStatus responds with the latest run status.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.source.Status())
}
