package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/alanyoungcy/kalshitracker/internal/aggregate"
	"github.com/alanyoungcy/kalshitracker/internal/config"
	"github.com/alanyoungcy/kalshitracker/internal/domain"
	"github.com/alanyoungcy/kalshitracker/internal/notify"
	"github.com/alanyoungcy/kalshitracker/internal/report"
)

// errDatesFailed marks a sync that completed but left some dates without a
// snapshot. Those dates stay in the backlog for the next run.
var errDatesFailed = errors.New("dates failed")

// SyncMode fills the snapshot store for the resolved date range.
func (a *App) SyncMode(ctx context.Context, deps *Dependencies) error {
	rep, err := a.runSync(ctx, deps)
	if err != nil {
		return fmt.Errorf("sync mode: %w", err)
	}
	return syncOutcome(rep)
}

// AggregateMode computes the volume series from the current store contents
// and writes a fresh run directory.
func (a *App) AggregateMode(ctx context.Context, deps *Dependencies) error {
	if err := a.runAggregate(ctx, deps, nil); err != nil {
		return fmt.Errorf("aggregate mode: %w", err)
	}
	return nil
}

// FullMode syncs and then aggregates. Aggregation still runs when some
// dates failed, over whatever the store holds.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	rep, err := a.runSync(ctx, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.runAggregate(ctx, deps, rep); err != nil {
		return errors.Join(syncOutcome(rep), fmt.Errorf("full mode: %w", err))
	}
	return syncOutcome(rep)
}

func syncOutcome(rep *domain.SyncReport) error {
	if rep == nil || rep.OK() {
		return nil
	}
	return fmt.Errorf("%w: %d of %d dates in %s", errDatesFailed, len(rep.Failed), len(rep.Range.Days()), rep.Range)
}

// runSync returns a nil report when the store is already up to date.
func (a *App) runSync(ctx context.Context, deps *Dependencies) (*domain.SyncReport, error) {
	cfg := a.cfg
	now := a.now().In(deps.Location)

	if deps.Locks != nil {
		unlock, err := deps.Locks.Acquire(ctx, cfg.Redis.LockKey, cfg.Redis.LockTTL.Duration)
		if err != nil {
			return nil, fmt.Errorf("acquire sync lock: %w", err)
		}
		defer unlock()
	}

	if !cfg.Sync.IncludeToday {
		a.withdrawToday(ctx, deps, domain.Day(now))
	}

	resume, hasResume, err := resumeDate(deps.Store, cfg.Sync.StartDate)
	if err != nil {
		return nil, fmt.Errorf("inspect snapshot store: %w", err)
	}
	rng, err := resolveRange(cfg.Sync, a.override, resume, hasResume, now)
	if err != nil {
		return nil, err
	}
	if rng.Empty() {
		a.logger.InfoContext(ctx, "no new dates to sync", slog.String("range", rng.String()))
		return nil, nil
	}

	if deps.Mirror != nil && cfg.S3.Hydrate {
		if _, err := deps.Mirror.Hydrate(ctx, rng); err != nil {
			a.logger.WarnContext(ctx, "mirror hydrate failed", slog.String("error", err.Error()))
		}
	}

	rep := deps.Dispatcher.Sync(ctx, rng, cfg.Sync.MaxWorkers)
	a.status.syncDone(rep)

	if deps.Reports != nil {
		if err := deps.Reports.PublishReport(ctx, rep); err != nil {
			a.logger.WarnContext(ctx, "sync report not published", slog.String("error", err.Error()))
		}
	}

	event := config.EventSyncComplete
	if !rep.OK() {
		event = config.EventSyncFailed
	}
	if err := deps.Notifier.Notify(ctx, event, notify.SyncMessage(rep)); err != nil {
		a.logger.WarnContext(ctx, "sync notification not delivered", slog.String("error", err.Error()))
	}
	return &rep, nil
}

// withdrawToday removes a snapshot for the current local date left by an
// earlier include-today run, since that day was still trading when fetched.
func (a *App) withdrawToday(ctx context.Context, deps *Dependencies, today time.Time) {
	if _, err := os.Stat(deps.Store.Path(today)); errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err := deps.Store.Remove(today); err != nil {
		a.logger.WarnContext(ctx, "stale snapshot for today not removed", slog.String("error", err.Error()))
		return
	}
	a.logger.InfoContext(ctx, "removed partial snapshot for today", slog.String("date", domain.FormatDate(today)))

	if deps.Mirror != nil && a.cfg.S3.Push {
		if err := deps.Mirror.Forget(ctx, today); err != nil {
			a.logger.WarnContext(ctx, "mirrored snapshot for today not removed", slog.String("error", err.Error()))
		}
	}
}

// runAggregate writes every artifact for the current store contents. rep,
// when non-nil, is saved alongside them.
func (a *App) runAggregate(ctx context.Context, deps *Dependencies, rep *domain.SyncReport) error {
	cfg := a.cfg.Aggregate
	now := a.now().In(deps.Location)

	days, err := aggregate.Summarize(deps.Store, a.logger)
	if err != nil {
		return fmt.Errorf("summarize snapshots: %w", err)
	}
	volume := aggregate.Volume(days, cfg.WindowDays)
	categories := aggregate.Categories(days, cfg.WindowDays, cfg.TopN)

	run, err := report.NewRunDir(cfg.OutputDir, now)
	if err != nil {
		return err
	}
	if err := run.WriteVolume(volume, cfg.WindowDays); err != nil {
		return err
	}
	if err := run.WriteCategories(categories.Rows, cfg.WindowDays); err != nil {
		return err
	}
	if err := run.WriteTopCategories(categories.Top, cfg.WindowDays); err != nil {
		return err
	}
	if rep != nil {
		if err := run.WriteSyncReport(*rep); err != nil {
			return err
		}
	}
	if err := run.WriteManifest(report.NewManifest(now, volume, cfg.WindowDays, cfg.TopN)); err != nil {
		return err
	}
	a.status.runWritten(run.Path)
	a.logger.InfoContext(ctx, "aggregation written",
		slog.String("run_dir", run.Path),
		slog.Int("days", len(volume)),
		slog.Int("category_rows", len(categories.Rows)),
	)

	if deps.Mirror != nil && a.cfg.S3.UploadRuns {
		if _, err := deps.Mirror.UploadRun(ctx, run.Path); err != nil {
			a.logger.WarnContext(ctx, "run upload failed", slog.String("error", err.Error()))
		}
	}

	if len(volume) > 0 {
		summary := notify.AggregateSummary{
			RunDir:       run.Path,
			SnapshotDays: len(volume),
			FirstDate:    volume[0].Date,
			LastDate:     volume[len(volume)-1].Date,
			Latest:       volume[len(volume)-1],
			WindowLength: cfg.WindowDays,
			Top:          categories.Top,
		}
		if err := deps.Notifier.Notify(ctx, config.EventAggregateComplete, notify.AggregateMessage(summary)); err != nil {
			a.logger.WarnContext(ctx, "aggregate notification not delivered", slog.String("error", err.Error()))
		}
	}
	return nil
}
