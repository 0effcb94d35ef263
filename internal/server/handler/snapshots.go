package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/kalshitracker/internal/domain"
)

// SnapshotStore is the read side of the snapshot store the API exposes.
type SnapshotStore interface {
	Dates() ([]time.Time, error)
	Has(date time.Time) (bool, error)
	Path(date time.Time) string
}

// SnapshotHandler serves the snapshot inventory and individual files.
type SnapshotHandler struct {
	store  SnapshotStore
	logger *slog.Logger
}

// NewSnapshotHandler creates a SnapshotHandler.
func NewSnapshotHandler(store SnapshotStore, logger *slog.Logger) *SnapshotHandler {
	return &SnapshotHandler{store: store, logger: logger}
}

// ListSnapshots lists every stored date.
// GET /api/snapshots
func (h *SnapshotHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	dates, err := h.store.Dates()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "listing snapshots failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "listing snapshots failed")
		return
	}

	out := map[string]any{
		"count": len(dates),
		"dates": formatDates(dates),
	}
	if len(dates) > 0 {
		out["first"] = domain.FormatDate(dates[0])
		out["last"] = domain.FormatDate(dates[len(dates)-1])
	}
	writeJSON(w, http.StatusOK, out)
}

// GetSnapshot streams the snapshot file for one date. Only complete
// snapshots are served.
// GET /api/snapshots/{date}
func (h *SnapshotHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	date, err := domain.ParseDate(r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ok, err := h.store.Has(date)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "checking snapshot failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "checking snapshot failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no snapshot for "+domain.FormatDate(date))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	http.ServeFile(w, r, h.store.Path(date))
}

func formatDates(ds []time.Time) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, domain.FormatDate(d))
	}
	return out
}
