// Package app wires the tracker's components together and runs the
// configured mode (sync, aggregate or full) once or on a cron schedule.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/kalshitracker/internal/config"
	"github.com/alanyoungcy/kalshitracker/internal/notify"
	"github.com/alanyoungcy/kalshitracker/internal/pipeline"
	"github.com/alanyoungcy/kalshitracker/internal/server"
	"github.com/alanyoungcy/kalshitracker/internal/server/handler"
	"golang.org/x/sync/errgroup"
)

// RangeOverride carries the -start/-end command line dates. Empty fields
// fall back to configuration and store state.
type RangeOverride struct {
	Start string
	End   string
}

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	override RangeOverride
	closers  []func()
	now      func() time.Time
	status   *runTracker
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
		now:    time.Now,
	}
}

// WithRange applies command line date overrides to every sync.
func (a *App) WithRange(o RangeOverride) *App {
	a.override = o
	return a
}

// Run wires all dependencies and runs the configured mode. With a schedule
// it runs immediately and then on every cron match until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", mode),
		slog.String("schedule", a.cfg.Schedule),
		slog.String("data_dir", a.cfg.Sync.DataDir),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	job, err := a.modeJob(mode, deps)
	if err != nil {
		return err
	}
	job = a.notifyingJob(mode, deps, job)

	if a.cfg.Schedule == "" {
		return job(ctx)
	}
	scheduler := pipeline.NewScheduler(deps.Location, a.logger)
	if !a.cfg.ServerEnabled() {
		return scheduler.Run(ctx, a.cfg.Schedule, job)
	}
	return a.serve(ctx, mode, deps, scheduler, job)
}

// serve runs the scheduler next to the status API. Either one failing
// stops both.
func (a *App) serve(ctx context.Context, mode string, deps *Dependencies, scheduler *pipeline.Scheduler, job pipeline.Job) error {
	a.status = newRunTracker(mode, a.cfg.Schedule, a.now)
	trigger := make(chan struct{}, 1)

	srv := server.NewServer(server.Config{
		Addr:   a.cfg.Server.Addr,
		APIKey: a.cfg.Server.APIKey,
	}, server.Handlers{
		Health: handler.NewHealthHandler(map[string]handler.HealthCheck{
			"snapshot_store": func(context.Context) error {
				_, err := deps.Store.Dates()
				return err
			},
		}),
		Status:    handler.NewStatusHandler(a.status),
		Snapshots: handler.NewSnapshotHandler(deps.Store, a.logger),
		Sync:      handler.NewSyncHandler(trigger, a.logger),
	}, a.logger)

	tracked := func(ctx context.Context) error {
		a.status.started()
		err := job(ctx)
		a.status.finished(err)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.WithTrigger(trigger).Run(gctx, a.cfg.Schedule, tracked)
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *App) modeJob(mode string, deps *Dependencies) (pipeline.Job, error) {
	switch mode {
	case "sync":
		return func(ctx context.Context) error { return a.SyncMode(ctx, deps) }, nil
	case "aggregate":
		return func(ctx context.Context) error { return a.AggregateMode(ctx, deps) }, nil
	case "full":
		return func(ctx context.Context) error { return a.FullMode(ctx, deps) }, nil
	default:
		return nil, fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// notifyingJob reports aborted runs. Runs that finished with failed dates
// were already reported through the sync notification.
func (a *App) notifyingJob(mode string, deps *Dependencies, job pipeline.Job) pipeline.Job {
	return func(ctx context.Context) error {
		err := job(ctx)
		if err == nil || errors.Is(err, errDatesFailed) || errors.Is(err, context.Canceled) {
			return err
		}
		if nerr := deps.Notifier.Notify(ctx, config.EventRunFailed, notify.FailureMessage(mode, err)); nerr != nil {
			a.logger.WarnContext(ctx, "failure notification not delivered", slog.String("error", nerr.Error()))
		}
		return err
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
