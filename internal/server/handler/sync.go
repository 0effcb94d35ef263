package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// SyncHandler serves the manual sync trigger.
type SyncHandler struct {
	logger    *slog.Logger
	triggerCh chan<- struct{}
}

// NewSyncHandler creates a SyncHandler. Each accepted request sends on
// triggerCh, which the scheduler drains to start an extra run.
func NewSyncHandler(triggerCh chan<- struct{}, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{triggerCh: triggerCh, logger: logger}
}

// TriggerSync asks the scheduler for an immediate run. Requests made while
// a trigger is still pending are coalesced into it.
// POST /api/sync/trigger
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	queued := true
	select {
	case h.triggerCh <- struct{}{}:
	default:
		queued = false
	}
	h.logger.InfoContext(r.Context(), "sync trigger requested", slog.Bool("queued", queued))

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"coalesced":    !queued,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
