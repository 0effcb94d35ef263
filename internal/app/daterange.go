package app

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/kalshitracker/internal/config"
	"github.com/alanyoungcy/kalshitracker/internal/domain"
)

// resolveRange picks the dates a sync covers. now must already be in the
// configured timezone.
//
// The end is the -end flag, then sync.end_date, then yesterday. It never
// passes today, and unless include_today is set it stops at yesterday. The start is the -start
// flag, then resume (the first date the store still needs), then
// sync.start_date. An empty result (start after end) means the store is up
// to date.
func resolveRange(cfg config.SyncConfig, o RangeOverride, resume time.Time, hasResume bool, now time.Time) (domain.DateRange, error) {
	today := domain.Day(now)
	yesterday := today.AddDate(0, 0, -1)

	end := yesterday
	switch {
	case o.End != "":
		d, err := domain.ParseDate(o.End)
		if err != nil {
			return domain.DateRange{}, fmt.Errorf("end date: %w", err)
		}
		end = d
	case cfg.EndDate != "":
		d, err := domain.ParseDate(cfg.EndDate)
		if err != nil {
			return domain.DateRange{}, fmt.Errorf("sync.end_date: %w", err)
		}
		end = d
	case cfg.IncludeToday:
		end = today
	}
	if end.After(today) {
		end = today
	}
	if !cfg.IncludeToday && !end.Before(today) {
		end = yesterday
	}

	var start time.Time
	switch {
	case o.Start != "":
		d, err := domain.ParseDate(o.Start)
		if err != nil {
			return domain.DateRange{}, fmt.Errorf("start date: %w", err)
		}
		start = d
	case hasResume:
		start = domain.Day(resume)
	default:
		d, err := domain.ParseDate(cfg.StartDate)
		if err != nil {
			return domain.DateRange{}, fmt.Errorf("sync.start_date: %w", err)
		}
		start = d
	}

	return domain.NewDateRange(start, end), nil
}

// BacklogStore is the part of the snapshot store range resolution reads.
type BacklogStore interface {
	Latest() (time.Time, bool, error)
	Backlog(rng domain.DateRange, overwrite bool) ([]time.Time, error)
}

// resumeDate is the first date a sync without -start must cover: the
// earliest gap between sync.start_date and the latest snapshot, or the day
// after the latest snapshot when there is no gap. ok is false for an empty
// store.
func resumeDate(store BacklogStore, startDate string) (time.Time, bool, error) {
	latest, ok, err := store.Latest()
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	next := latest.AddDate(0, 0, 1)

	first, err := domain.ParseDate(startDate)
	if err != nil {
		return next, true, nil
	}
	gaps, err := store.Backlog(domain.NewDateRange(first, latest), false)
	if err != nil {
		return time.Time{}, false, err
	}
	if len(gaps) > 0 {
		return gaps[0], true, nil
	}
	return next, true, nil
}
