package app

import (
	"sync"
	"time"

	"github.com/alanyoungcy/kalshitracker/internal/domain"
	"github.com/alanyoungcy/kalshitracker/internal/server/handler"
)

// runTracker records the outcome of each run for the status API. A nil
// tracker ignores every call.
type runTracker struct {
	mu     sync.Mutex
	status handler.RunStatus
	now    func() time.Time
}

func newRunTracker(mode, schedule string, now func() time.Time) *runTracker {
	return &runTracker{
		status: handler.RunStatus{Mode: mode, Schedule: schedule},
		now:    now,
	}
}

// Status implements handler.StatusSource.
func (t *runTracker) Status() handler.RunStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.status
	if out.LastSync != nil {
		rep := *out.LastSync
		out.LastSync = &rep
	}
	return out
}

func (t *runTracker) started() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now().UTC()
	t.status.Running = true
	t.status.Runs++
	t.status.LastStart = &now
}

func (t *runTracker) finished(err error) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now().UTC()
	t.status.Running = false
	t.status.LastFinish = &now
	t.status.LastError = ""
	if err != nil {
		t.status.LastError = err.Error()
	}
}

func (t *runTracker) syncDone(rep domain.SyncReport) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.LastSync = &rep
}

func (t *runTracker) runWritten(dir string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.LastRunDir = dir
}
