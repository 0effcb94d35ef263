package aggregate

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/kalshitracker/internal/domain"
	"github.com/alanyoungcy/kalshitracker/internal/snapshot"
)

// Source walks snapshots in ascending date order.
type Source interface {
	Walk(fn snapshot.WalkFunc) error
}

// DaySummary is the per-date reduction both aggregators work from.
type DaySummary struct {
	Date       time.Time
	Total      int64
	ByCategory map[domain.Category]int64
}

// Summarize reads every snapshot once and reduces it to per-day totals.
// Undecodable or incomplete files are logged and treated as absent days.
// An empty or unreadable store is an error.
func Summarize(src Source, logger *slog.Logger) ([]DaySummary, error) {
	var days []DaySummary
	err := src.Walk(func(date time.Time, snap domain.Snapshot, err error) error {
		if err != nil {
			logger.Warn("skipping unreadable snapshot",
				slog.String("date", domain.FormatDate(date)),
				slog.String("error", err.Error()),
			)
			return nil
		}
		if !snap.Complete {
			logger.Warn("skipping incomplete snapshot", slog.String("date", domain.FormatDate(date)))
			return nil
		}
		days = append(days, SummarizeSnapshot(date, snap))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate: scan snapshots: %w", err)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("aggregate: %w: no readable snapshots", domain.ErrEmptyStore)
	}

	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	return days, nil
}

// SummarizeSnapshot totals one snapshot. Trades with a non-positive count
// carry no volume.
func SummarizeSnapshot(date time.Time, snap domain.Snapshot) DaySummary {
	day := DaySummary{
		Date:       domain.Day(date),
		ByCategory: make(map[domain.Category]int64),
	}
	for _, t := range snap.Trades {
		if t.Count <= 0 {
			continue
		}
		day.Total += t.Count
		day.ByCategory[Classify(t.Ticker)] += t.Count
	}
	return day
}

// windowStart is the first calendar day of the trailing window ending at d.
func windowStart(d time.Time, window int) time.Time {
	return d.AddDate(0, 0, -(window - 1))
}
