package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// DateFailure records why a single date could not be synced.
type DateFailure struct {
	Date time.Time
	Err  error
}

// SyncReport is the structured outcome of one dispatcher run. It is the
// only thing notification collaborators consume; it never carries
// human-formatted text.
type SyncReport struct {
	Range DateRange
	// Succeeded holds every date in Range that has a valid snapshot after the
	// run, whether it was fetched now or already present.
	Succeeded []time.Time
	// Fetched is the subset of Succeeded written during this run.
	Fetched    []time.Time
	Failed     []DateFailure
	StartedAt  time.Time
	FinishedAt time.Time
}

// OK reports whether every date in the range succeeded.
func (r SyncReport) OK() bool {
	return len(r.Failed) == 0
}

// Sort orders every date list ascending so reports are deterministic
// regardless of worker completion order.
func (r *SyncReport) Sort() {
	sortDates(r.Succeeded)
	sortDates(r.Fetched)
	sort.Slice(r.Failed, func(i, j int) bool {
		return r.Failed[i].Date.Before(r.Failed[j].Date)
	})
}

func sortDates(ds []time.Time) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].Before(ds[j]) })
}

type syncReportJSON struct {
	Start      string            `json:"start"`
	End        string            `json:"end"`
	Succeeded  []string          `json:"succeeded"`
	Fetched    []string          `json:"fetched"`
	Failed     []dateFailureJSON `json:"failed"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

type dateFailureJSON struct {
	Date  string `json:"date"`
	Error string `json:"error"`
}

// MarshalJSON renders dates as YYYY-MM-DD and errors as strings.
func (r SyncReport) MarshalJSON() ([]byte, error) {
	out := syncReportJSON{
		Start:      FormatDate(r.Range.Start),
		End:        FormatDate(r.Range.End),
		Succeeded:  formatDates(r.Succeeded),
		Fetched:    formatDates(r.Fetched),
		Failed:     make([]dateFailureJSON, 0, len(r.Failed)),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	for _, f := range r.Failed {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		out.Failed = append(out.Failed, dateFailureJSON{Date: FormatDate(f.Date), Error: msg})
	}
	return json.Marshal(out)
}

func formatDates(ds []time.Time) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, FormatDate(d))
	}
	return out
}
