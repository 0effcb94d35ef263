package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/kalshitracker/internal/blob/s3"
	"github.com/alanyoungcy/kalshitracker/internal/cache/redis"
	"github.com/alanyoungcy/kalshitracker/internal/config"
	"github.com/alanyoungcy/kalshitracker/internal/crypto"
	"github.com/alanyoungcy/kalshitracker/internal/domain"
	"github.com/alanyoungcy/kalshitracker/internal/notify"
	"github.com/alanyoungcy/kalshitracker/internal/pipeline"
	"github.com/alanyoungcy/kalshitracker/internal/platform/kalshi"
	"github.com/alanyoungcy/kalshitracker/internal/snapshot"
)

// Dependencies bundles everything the modes need. Optional collaborators
// (Mirror, Locks, Reports) are nil when their backend is not configured.
type Dependencies struct {
	Location *time.Location

	Store      *snapshot.Store
	Fetcher    *pipeline.Fetcher
	Dispatcher *pipeline.Dispatcher

	// Optional Redis-backed coordination.
	Locks   domain.LockManager
	Reports domain.ReportPublisher

	// Optional object storage mirror.
	Mirror *pipeline.Mirror

	Notifier *notify.Notifier
}

// needsVenue returns true for modes that talk to the trades API.
func needsVenue(mode string) bool {
	switch mode {
	case "sync", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return fail(fmt.Errorf("wire: timezone: %w", err))
	}
	deps := &Dependencies{Location: loc}

	// --- Snapshot store ---
	deps.Store, err = snapshot.NewStore(cfg.Sync.DataDir)
	if err != nil {
		return fail(fmt.Errorf("wire: snapshot store: %w", err))
	}

	// --- Redis (optional) ---
	var limiter domain.RateLimiter
	if cfg.RedisEnabled() {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  cfg.Redis.Namespace,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		limiter = redis.NewRateLimiter(redisClient, cfg.Redis.RequestsPerSecond, time.Second)
		deps.Locks = redis.NewLockManager(redisClient, logger)
		deps.Reports = redis.NewReportBus(redisClient, cfg.Redis.ReportStream, cfg.Redis.ReportChannel)
	}

	// --- S3 mirror (optional) ---
	if cfg.S3Enabled() {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		objects := s3blob.NewObjects(s3Client)
		deps.Mirror = pipeline.NewMirror(objects, objects, deps.Store, cfg.S3.Prefix, logger)
	}

	// --- Venue client, fetcher and dispatcher ---
	if needsVenue(strings.ToLower(cfg.Mode)) {
		client, err := kalshi.NewClient(kalshi.ClientConfig{
			BaseURL:  cfg.Kalshi.BaseURL,
			APIKeyID: cfg.Kalshi.ApiKey,
			Timeout:  cfg.Kalshi.RequestTimeout.Duration,
			ProxyURL: cfg.Kalshi.ProxyURL,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: kalshi client: %w", err))
		}
		if cfg.Kalshi.RsaPrivateKeyPath != "" || cfg.Kalshi.RsaPrivateKey != "" {
			pem, err := crypto.LoadKey(crypto.KeyConfig{
				InlinePEM: cfg.Kalshi.RsaPrivateKey,
				Path:      cfg.Kalshi.RsaPrivateKeyPath,
				Password:  cfg.Kalshi.RsaKeyPassword,
			})
			if err != nil {
				return fail(fmt.Errorf("wire: kalshi private key: %w", err))
			}
			if err := client.SetRSAPrivateKey(pem); err != nil {
				return fail(fmt.Errorf("wire: %w", err))
			}
		}

		deps.Fetcher = pipeline.NewFetcher(client, deps.Store, pipeline.FetcherConfig{
			PageLimit:      cfg.Kalshi.PageLimit,
			MaxAttempts:    cfg.Kalshi.MaxRetries,
			RetryDelay:     cfg.Kalshi.RetryDelay.Duration,
			RateLimitDelay: cfg.Kalshi.RateLimitDelay.Duration,
			PageDelay:      cfg.Kalshi.PageDelay.Duration,
		}, logger)
		if limiter != nil {
			deps.Fetcher.WithRateLimiter(limiter)
		}

		deps.Dispatcher = pipeline.NewDispatcher(deps.Fetcher, deps.Store,
			pipeline.Filter{Ticker: cfg.Kalshi.Ticker}, cfg.Sync.Overwrite, logger)
		if deps.Mirror != nil && cfg.S3.Push {
			deps.Dispatcher.WithPusher(deps.Mirror)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.LarkWebhookURL != "" {
		senders = append(senders, notify.NewLarkSender(cfg.Notify.LarkWebhookURL))
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
