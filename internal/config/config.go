// Package config defines the top-level configuration for the trade tracker
// and provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by KTRACK_* environment variables.
type Config struct {
	Kalshi    KalshiConfig    `toml:"kalshi"`
	Sync      SyncConfig      `toml:"sync"`
	Aggregate AggregateConfig `toml:"aggregate"`
	Log       LogConfig       `toml:"log"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Notify    NotifyConfig    `toml:"notify"`
	Server    ServerConfig    `toml:"server"`
	Mode      string          `toml:"mode"`
	// Schedule is an optional 5-field cron expression. Empty runs once.
	Schedule string `toml:"schedule"`
}

// KalshiConfig holds the trades endpoint, credentials and paging/retry knobs.
type KalshiConfig struct {
	BaseURL           string   `toml:"base_url"`
	ApiKey            string   `toml:"api_key"`
	RsaPrivateKeyPath string   `toml:"rsa_private_key_path"`
	RsaPrivateKey     string   `toml:"rsa_private_key"`
	RsaKeyPassword    string   `toml:"rsa_key_password"`
	RequestTimeout    duration `toml:"request_timeout"`
	PageLimit         int      `toml:"page_limit"`
	MaxRetries        int      `toml:"max_retries"`
	RetryDelay        duration `toml:"retry_delay"`
	RateLimitDelay    duration `toml:"rate_limit_delay"`
	PageDelay         duration `toml:"page_delay"`
	// Ticker optionally restricts every fetch to one market.
	Ticker string `toml:"ticker"`
	// ProxyURL routes venue traffic through an explicit proxy. Ambient
	// HTTP(S)_PROXY variables are never consulted.
	ProxyURL string `toml:"proxy_url"`
}

// SyncConfig controls which dates are fetched and how.
type SyncConfig struct {
	DataDir string `toml:"data_dir"`
	// StartDate is used when the store is empty and no start is given.
	StartDate string `toml:"start_date"`
	// EndDate defaults to yesterday in Timezone.
	EndDate      string `toml:"end_date"`
	Timezone     string `toml:"timezone"`
	MaxWorkers   int    `toml:"max_workers"`
	Overwrite    bool   `toml:"overwrite"`
	IncludeToday bool   `toml:"include_today"`
}

// AggregateConfig controls the aggregation outputs.
type AggregateConfig struct {
	OutputDir  string `toml:"output_dir"`
	WindowDays int    `toml:"window_days"`
	TopN       int    `toml:"top_n"`
}

// LogConfig controls the structured logger. File, when set, receives the
// same JSON stream as stdout through a rotating writer.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// RedisConfig holds Redis connection parameters. Redis is optional and
// enabled when Addr is set.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// Namespace prefixes every key the tracker writes.
	Namespace string `toml:"namespace"`

	RequestsPerSecond int      `toml:"requests_per_second"`
	LockKey           string   `toml:"lock_key"`
	LockTTL           duration `toml:"lock_ttl"`
	ReportStream      string   `toml:"report_stream"`
	ReportChannel     string   `toml:"report_channel"`
}

// S3Config holds S3-compatible object storage parameters. The mirror is
// optional and enabled when Bucket is set.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
	Hydrate        bool   `toml:"hydrate"`
	Push           bool   `toml:"push"`
	UploadRuns     bool   `toml:"upload_runs"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	LarkWebhookURL    string   `toml:"lark_webhook_url"`
	Events            []string `toml:"events"`
}

// ServerConfig controls the optional status API served alongside a
// scheduled run.
type ServerConfig struct {
	Addr   string `toml:"addr"`
	APIKey string `toml:"api_key"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Kalshi: KalshiConfig{
			BaseURL:        "https://api.elections.kalshi.com/trade-api/v2",
			RequestTimeout: duration{30 * time.Second},
			PageLimit:      500,
			MaxRetries:     8,
			RetryDelay:     duration{10 * time.Second},
			RateLimitDelay: duration{30 * time.Second},
			PageDelay:      duration{50 * time.Millisecond},
		},
		Sync: SyncConfig{
			DataDir:    "data/kalshi_trades",
			StartDate:  "2025-08-15",
			Timezone:   "America/New_York",
			MaxWorkers: 4,
		},
		Aggregate: AggregateConfig{
			OutputDir:  "analysis",
			WindowDays: 7,
			TopN:       10,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Redis: RedisConfig{
			PoolSize:          10,
			MaxRetries:        3,
			Namespace:         "ktrack",
			RequestsPerSecond: 10,
			LockKey:           "kalshi:sync",
			LockTTL:           duration{2 * time.Hour},
			ReportStream:      "kalshi:sync:reports",
			ReportChannel:     "kalshi:sync:events",
		},
		S3: S3Config{
			Region:         "us-east-1",
			ForcePathStyle: true,
			Prefix:         "kalshi_trades/",
			Hydrate:        true,
			Push:           true,
			UploadRuns:     true,
		},
		Notify: NotifyConfig{
			Events: []string{EventSyncComplete, EventSyncFailed, EventAggregateComplete, EventRunFailed},
		},
		Mode: "full",
	}
}

// Notification event names accepted in NotifyConfig.Events.
const (
	EventSyncComplete      = "sync_complete"
	EventSyncFailed        = "sync_failed"
	EventAggregateComplete = "aggregate_complete"
	// EventRunFailed fires when a run aborts before producing a report.
	EventRunFailed = "run_failed"
)

var validEvents = map[string]bool{
	EventSyncComplete:      true,
	EventSyncFailed:        true,
	EventAggregateComplete: true,
	EventRunFailed:         true,
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"sync":      true,
	"aggregate": true,
	"full":      true,
}

// validLogLevels enumerates the accepted values for LogConfig.Level.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// RedisEnabled reports whether a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}

// ServerEnabled reports whether the status API should be started.
func (c *Config) ServerEnabled() bool {
	return strings.TrimSpace(c.Server.Addr) != ""
}

// S3Enabled reports whether an object storage bucket is configured.
func (c *Config) S3Enabled() bool {
	return strings.TrimSpace(c.S3.Bucket) != ""
}

// Location resolves Sync.Timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Sync.Timezone)
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: sync, aggregate, full)", c.Mode))
	}
	if c.Schedule != "" && len(strings.Fields(c.Schedule)) != 5 {
		errs = append(errs, fmt.Sprintf("schedule %q must be a 5-field cron expression", c.Schedule))
	}

	// Log
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log: unknown level %q (valid: debug, info, warn, error)", c.Log.Level))
	}
	if c.Log.File != "" && c.Log.MaxSizeMB < 1 {
		errs = append(errs, "log: max_size_mb must be >= 1 when file is set")
	}

	// Kalshi
	if _, err := url.ParseRequestURI(c.Kalshi.BaseURL); err != nil {
		errs = append(errs, fmt.Sprintf("kalshi: base_url %q is not a valid URL", c.Kalshi.BaseURL))
	}
	if c.Kalshi.ProxyURL != "" {
		if _, err := url.ParseRequestURI(c.Kalshi.ProxyURL); err != nil {
			errs = append(errs, fmt.Sprintf("kalshi: proxy_url %q is not a valid URL", c.Kalshi.ProxyURL))
		}
	}
	if c.Kalshi.PageLimit < 1 || c.Kalshi.PageLimit > 1000 {
		errs = append(errs, fmt.Sprintf("kalshi: page_limit must be 1-1000, got %d", c.Kalshi.PageLimit))
	}
	if c.Kalshi.MaxRetries < 1 {
		errs = append(errs, "kalshi: max_retries must be >= 1")
	}
	if c.Kalshi.RequestTimeout.Duration <= 0 {
		errs = append(errs, "kalshi: request_timeout must be > 0")
	}
	if c.Kalshi.RetryDelay.Duration < 0 || c.Kalshi.RateLimitDelay.Duration < 0 || c.Kalshi.PageDelay.Duration < 0 {
		errs = append(errs, "kalshi: retry_delay, rate_limit_delay and page_delay must not be negative")
	}
	if (c.Kalshi.RsaPrivateKeyPath != "" || c.Kalshi.RsaPrivateKey != "") && c.Kalshi.ApiKey == "" {
		errs = append(errs, "kalshi: api_key is required when an rsa private key is set")
	}

	// Sync
	if c.Sync.DataDir == "" {
		errs = append(errs, "sync: data_dir must not be empty")
	}
	if c.Sync.MaxWorkers < 1 {
		errs = append(errs, "sync: max_workers must be >= 1")
	}
	if _, err := time.LoadLocation(c.Sync.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("sync: unknown timezone %q", c.Sync.Timezone))
	}
	start, startErr := parseOptionalDate(c.Sync.StartDate)
	if startErr != nil {
		errs = append(errs, fmt.Sprintf("sync: start_date: %v", startErr))
	}
	end, endErr := parseOptionalDate(c.Sync.EndDate)
	if endErr != nil {
		errs = append(errs, fmt.Sprintf("sync: end_date: %v", endErr))
	}
	if startErr == nil && endErr == nil && !start.IsZero() && !end.IsZero() && start.After(end) {
		errs = append(errs, "sync: start_date must not be after end_date")
	}

	// Aggregate
	if c.Aggregate.OutputDir == "" {
		errs = append(errs, "aggregate: output_dir must not be empty")
	}
	if c.Aggregate.WindowDays < 1 {
		errs = append(errs, "aggregate: window_days must be >= 1")
	}
	if c.Aggregate.TopN < 0 {
		errs = append(errs, "aggregate: top_n must be >= 0")
	}

	// Redis
	if c.RedisEnabled() {
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.RequestsPerSecond < 1 {
			errs = append(errs, "redis: requests_per_second must be >= 1")
		}
		if c.Redis.LockTTL.Duration <= 0 {
			errs = append(errs, "redis: lock_ttl must be > 0")
		}
	}

	// S3
	if c.S3Enabled() {
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
			errs = append(errs, "s3: access_key and secret_key must be set together")
		}
	}

	// Server
	if c.ServerEnabled() && c.Schedule == "" {
		errs = append(errs, "server: addr requires a schedule")
	}

	// Notify
	for _, e := range c.Notify.Events {
		if !validEvents[e] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q", e))
		}
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func parseOptionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}
