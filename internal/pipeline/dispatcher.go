package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/kalshitracker/internal/domain"
)

// DaySyncer fetches and stores one date.
type DaySyncer interface {
	SyncDay(ctx context.Context, date time.Time, filter Filter) error
}

// BacklogSource answers which dates still lack a valid snapshot.
type BacklogSource interface {
	Backlog(rng domain.DateRange, overwrite bool) ([]time.Time, error)
}

// SnapshotPusher copies a freshly written snapshot elsewhere.
type SnapshotPusher interface {
	Push(ctx context.Context, date time.Time) error
}

// Dispatcher runs a bounded pool of fetch workers over the backlog of
// missing dates.
type Dispatcher struct {
	syncer    DaySyncer
	store     BacklogSource
	filter    Filter
	overwrite bool
	pusher    SnapshotPusher
	logger    *slog.Logger
	now       func() time.Time
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(syncer DaySyncer, store BacklogSource, filter Filter, overwrite bool, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		syncer:    syncer,
		store:     store,
		filter:    filter,
		overwrite: overwrite,
		logger:    logger.With(slog.String("component", "dispatcher")),
		now:       time.Now,
	}
}

// WithPusher mirrors every newly written snapshot through p. Push failures
// are logged; the local snapshot remains the source of truth.
func (d *Dispatcher) WithPusher(p SnapshotPusher) *Dispatcher {
	d.pusher = p
	return d
}

// Sync fetches every date in rng that lacks a valid snapshot using at most
// maxWorkers concurrent fetchers. Dates are handed out from one shared
// queue so no date is processed twice. A failing date never stops the
// others; the outcome is returned as a report rather than an error.
func (d *Dispatcher) Sync(ctx context.Context, rng domain.DateRange, maxWorkers int) domain.SyncReport {
	report := domain.SyncReport{Range: rng, StartedAt: d.now().UTC()}

	backlog, err := d.store.Backlog(rng, d.overwrite)
	if err != nil {
		d.logger.Error("backlog query failed", slog.String("range", rng.String()), slog.String("error", err.Error()))
		for _, day := range rng.Days() {
			report.Failed = append(report.Failed, domain.DateFailure{Date: day, Err: err})
		}
		report.FinishedAt = d.now().UTC()
		return report
	}

	pending := make(map[time.Time]struct{}, len(backlog))
	for _, day := range backlog {
		pending[day] = struct{}{}
	}
	for _, day := range rng.Days() {
		if _, ok := pending[day]; !ok {
			report.Succeeded = append(report.Succeeded, day)
		}
	}

	d.logger.Info("sync starting",
		slog.String("range", rng.String()),
		slog.Int("backlog", len(backlog)),
		slog.Int("present", len(report.Succeeded)),
	)
	if len(backlog) == 0 {
		report.FinishedAt = d.now().UTC()
		return report
	}

	workers := maxWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(backlog) {
		workers = len(backlog)
	}

	queue := make(chan time.Time, len(backlog))
	for _, day := range backlog {
		queue <- day
	}
	close(queue)

	var mu sync.Mutex
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		worker := i
		g.Go(func() error {
			for day := range queue {
				err := d.syncOne(ctx, worker, day)

				mu.Lock()
				if err != nil {
					report.Failed = append(report.Failed, domain.DateFailure{Date: day, Err: err})
				} else {
					report.Succeeded = append(report.Succeeded, day)
					report.Fetched = append(report.Fetched, day)
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Sort()
	report.FinishedAt = d.now().UTC()
	d.logger.Info("sync finished",
		slog.String("range", rng.String()),
		slog.Int("succeeded", len(report.Succeeded)),
		slog.Int("fetched", len(report.Fetched)),
		slog.Int("failed", len(report.Failed)),
		slog.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report
}

func (d *Dispatcher) syncOne(ctx context.Context, worker int, day time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := d.logger.With(slog.Int("worker", worker), slog.String("date", domain.FormatDate(day)))

	if err := d.syncer.SyncDay(ctx, day, d.filter); err != nil {
		log.Error("date failed", slog.String("error", err.Error()))
		return err
	}

	if d.pusher != nil {
		if err := d.pusher.Push(ctx, day); err != nil {
			log.Warn("snapshot mirror push failed", slog.String("error", err.Error()))
		}
	}
	return nil
}
