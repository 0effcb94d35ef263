package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/kalshitracker/internal/domain"
	"github.com/alanyoungcy/kalshitracker/internal/platform/kalshi"
)

// TradePager retrieves one page of trades from the venue.
type TradePager interface {
	GetTrades(ctx context.Context, q kalshi.TradesQuery) (kalshi.TradesPage, error)
}

// SnapshotWriter persists a complete snapshot.
type SnapshotWriter interface {
	Write(snap domain.Snapshot) error
}

// Filter narrows a day's fetch to a subset of markets. The zero value
// selects every market.
type Filter struct {
	Ticker string
}

// FetcherConfig controls paging and retry behaviour.
type FetcherConfig struct {
	PageLimit int
	// MaxAttempts bounds how many times a single page is requested.
	MaxAttempts int
	// RetryDelay is multiplied by the attempt number after a transient error.
	RetryDelay time.Duration
	// RateLimitDelay is the base backoff after a 429, also linear in attempts.
	RateLimitDelay time.Duration
	// PageDelay is the pause between successive pages of the same day.
	PageDelay time.Duration
	// RateLimitKey identifies the shared pacing bucket when a RateLimiter is
	// attached.
	RateLimitKey string
}

// Fetcher pulls every trade page for a single date and, on success, writes
// the day's snapshot.
type Fetcher struct {
	client  TradePager
	store   SnapshotWriter
	limiter domain.RateLimiter
	cfg     FetcherConfig
	logger  *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewFetcher creates a Fetcher. Zero config fields fall back to the venue's
// documented defaults.
func NewFetcher(client TradePager, store SnapshotWriter, cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 500
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.RateLimitKey == "" {
		cfg.RateLimitKey = "kalshi:trades"
	}
	return &Fetcher{
		client: client,
		store:  store,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "fetcher")),
		sleep:  sleepContext,
		now:    time.Now,
	}
}

// WithRateLimiter paces every page request through limiter.
func (f *Fetcher) WithRateLimiter(limiter domain.RateLimiter) *Fetcher {
	f.limiter = limiter
	return f
}

// FetchDay retrieves every trade executed on date (a UTC calendar day). The
// returned snapshot is complete only because the venue signalled end of
// data; any page that cannot be fetched fails the whole day. A date after
// the current UTC day fails with domain.ErrInvalidDate, since the venue
// answers it with an empty final page.
func (f *Fetcher) FetchDay(ctx context.Context, date time.Time, filter Filter) (domain.Snapshot, error) {
	day := domain.Day(date)
	if today := domain.Day(f.now().UTC()); day.After(today) {
		return domain.Snapshot{}, fmt.Errorf("fetching %s: %w: after %s",
			domain.FormatDate(day), domain.ErrInvalidDate, domain.FormatDate(today))
	}
	minTS, maxTS := domain.DayBounds(day)
	log := f.logger.With(slog.String("date", domain.FormatDate(day)))

	q := kalshi.TradesQuery{
		MinTS:  minTS,
		MaxTS:  maxTS,
		Limit:  f.cfg.PageLimit,
		Ticker: filter.Ticker,
	}
	seen := make(map[string]struct{})
	trades := make([]domain.Trade, 0)
	pages := 0

	for {
		if err := ctx.Err(); err != nil {
			return domain.Snapshot{}, fmt.Errorf("fetching %s: %w", domain.FormatDate(day), err)
		}

		page, err := f.fetchPage(ctx, q, log)
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("fetching %s page %d: %w", domain.FormatDate(day), pages+1, err)
		}
		pages++
		trades = append(trades, page.Trades...)

		if page.Done() {
			break
		}
		if _, dup := seen[page.Cursor]; dup {
			return domain.Snapshot{}, fmt.Errorf("fetching %s page %d: %w: cursor %q repeated",
				domain.FormatDate(day), pages, domain.ErrMalformedResponse, page.Cursor)
		}
		seen[page.Cursor] = struct{}{}
		q.Cursor = page.Cursor

		if err := f.sleep(ctx, f.cfg.PageDelay); err != nil {
			return domain.Snapshot{}, fmt.Errorf("fetching %s: %w", domain.FormatDate(day), err)
		}
	}

	log.Debug("day fetched", slog.Int("pages", pages), slog.Int("trades", len(trades)))

	return domain.Snapshot{
		Date:      day,
		MinTS:     minTS,
		MaxTS:     maxTS,
		Complete:  true,
		FetchedAt: f.now().UTC(),
		Trades:    trades,
	}, nil
}

// SyncDay fetches date and atomically writes its snapshot. Nothing is
// written unless the fetch completed.
func (f *Fetcher) SyncDay(ctx context.Context, date time.Time, filter Filter) error {
	start := f.now()
	snap, err := f.FetchDay(ctx, date, filter)
	if err != nil {
		return err
	}
	if err := f.store.Write(snap); err != nil {
		return fmt.Errorf("writing snapshot %s: %w", domain.FormatDate(snap.Date), err)
	}

	f.logger.Info("snapshot written",
		slog.String("date", domain.FormatDate(snap.Date)),
		slog.Int("trades", len(snap.Trades)),
		slog.Int64("volume", snap.TotalVolume()),
		slog.Duration("elapsed", f.now().Sub(start)),
	)
	return nil
}

// fetchPage requests a single page, retrying transient failures with linear
// backoff. Malformed responses and permanent API errors are returned at
// once.
func (f *Fetcher) fetchPage(ctx context.Context, q kalshi.TradesQuery, log *slog.Logger) (kalshi.TradesPage, error) {
	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		f.pace(ctx, log)

		page, err := f.client.GetTrades(ctx, q)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return kalshi.TradesPage{}, err
		}
		if !retryable(err) {
			return kalshi.TradesPage{}, err
		}
		if attempt == f.cfg.MaxAttempts {
			break
		}

		wait := f.backoff(err, attempt)
		log.Warn("page request failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", f.cfg.MaxAttempts),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
		if err := f.sleep(ctx, wait); err != nil {
			return kalshi.TradesPage{}, err
		}
	}
	return kalshi.TradesPage{}, fmt.Errorf("giving up after %d attempts: %w", f.cfg.MaxAttempts, lastErr)
}

// pace waits on the shared rate limiter. Limiter failures are logged and
// the request proceeds unpaced; the venue's own 429s still apply.
func (f *Fetcher) pace(ctx context.Context, log *slog.Logger) {
	if f.limiter == nil {
		return
	}
	if err := f.limiter.Wait(ctx, f.cfg.RateLimitKey); err != nil && ctx.Err() == nil {
		log.Warn("rate limiter unavailable", slog.String("error", err.Error()))
	}
}

func (f *Fetcher) backoff(err error, attempt int) time.Duration {
	if kalshi.IsRateLimited(err) {
		wait := f.cfg.RateLimitDelay * time.Duration(attempt)
		var apiErr *kalshi.APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > wait {
			wait = apiErr.RetryAfter
		}
		return wait
	}
	return f.cfg.RetryDelay * time.Duration(attempt)
}

// retryable classifies a page error. Venue status codes decide for API
// errors; transport failures are always worth another attempt.
func retryable(err error) bool {
	if errors.Is(err, domain.ErrMalformedResponse) {
		return false
	}
	var apiErr *kalshi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
