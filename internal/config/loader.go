package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies KTRACK_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return nil, fmt.Errorf("config: %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known KTRACK_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Kalshi ──
	setStr(&cfg.Kalshi.BaseURL, "KTRACK_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.ApiKey, "KTRACK_KALSHI_API_KEY")
	setStr(&cfg.Kalshi.RsaPrivateKeyPath, "KTRACK_KALSHI_RSA_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.RsaPrivateKey, "KTRACK_KALSHI_RSA_PRIVATE_KEY")
	setStr(&cfg.Kalshi.RsaKeyPassword, "KTRACK_KALSHI_RSA_KEY_PASSWORD")
	setDuration(&cfg.Kalshi.RequestTimeout, "KTRACK_KALSHI_REQUEST_TIMEOUT")
	setInt(&cfg.Kalshi.PageLimit, "KTRACK_KALSHI_PAGE_LIMIT")
	setInt(&cfg.Kalshi.MaxRetries, "KTRACK_KALSHI_MAX_RETRIES")
	setDuration(&cfg.Kalshi.RetryDelay, "KTRACK_KALSHI_RETRY_DELAY")
	setDuration(&cfg.Kalshi.RateLimitDelay, "KTRACK_KALSHI_RATE_LIMIT_DELAY")
	setDuration(&cfg.Kalshi.PageDelay, "KTRACK_KALSHI_PAGE_DELAY")
	setStr(&cfg.Kalshi.Ticker, "KTRACK_KALSHI_TICKER")
	setStr(&cfg.Kalshi.ProxyURL, "KTRACK_KALSHI_PROXY_URL")

	// ── Sync ──
	setStr(&cfg.Sync.DataDir, "KTRACK_SYNC_DATA_DIR")
	setStr(&cfg.Sync.StartDate, "KTRACK_SYNC_START_DATE")
	setStr(&cfg.Sync.EndDate, "KTRACK_SYNC_END_DATE")
	setStr(&cfg.Sync.Timezone, "KTRACK_SYNC_TIMEZONE")
	setInt(&cfg.Sync.MaxWorkers, "KTRACK_SYNC_MAX_WORKERS")
	setBool(&cfg.Sync.Overwrite, "KTRACK_SYNC_OVERWRITE")
	setBool(&cfg.Sync.IncludeToday, "KTRACK_SYNC_INCLUDE_TODAY")

	// ── Aggregate ──
	setStr(&cfg.Aggregate.OutputDir, "KTRACK_AGGREGATE_OUTPUT_DIR")
	setInt(&cfg.Aggregate.WindowDays, "KTRACK_AGGREGATE_WINDOW_DAYS")
	setInt(&cfg.Aggregate.TopN, "KTRACK_AGGREGATE_TOP_N")

	// ── Log ──
	setStr(&cfg.Log.Level, "KTRACK_LOG_LEVEL")
	setStr(&cfg.Log.File, "KTRACK_LOG_FILE")
	setInt(&cfg.Log.MaxSizeMB, "KTRACK_LOG_MAX_SIZE_MB")
	setInt(&cfg.Log.MaxBackups, "KTRACK_LOG_MAX_BACKUPS")
	setInt(&cfg.Log.MaxAgeDays, "KTRACK_LOG_MAX_AGE_DAYS")
	setBool(&cfg.Log.Compress, "KTRACK_LOG_COMPRESS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "KTRACK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "KTRACK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "KTRACK_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "KTRACK_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "KTRACK_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "KTRACK_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "KTRACK_REDIS_NAMESPACE")
	setInt(&cfg.Redis.RequestsPerSecond, "KTRACK_REDIS_REQUESTS_PER_SECOND")
	setStr(&cfg.Redis.LockKey, "KTRACK_REDIS_LOCK_KEY")
	setDuration(&cfg.Redis.LockTTL, "KTRACK_REDIS_LOCK_TTL")
	setStr(&cfg.Redis.ReportStream, "KTRACK_REDIS_REPORT_STREAM")
	setStr(&cfg.Redis.ReportChannel, "KTRACK_REDIS_REPORT_CHANNEL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "KTRACK_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "KTRACK_S3_REGION")
	setStr(&cfg.S3.Bucket, "KTRACK_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "KTRACK_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "KTRACK_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "KTRACK_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "KTRACK_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "KTRACK_S3_PREFIX")
	setBool(&cfg.S3.Hydrate, "KTRACK_S3_HYDRATE")
	setBool(&cfg.S3.Push, "KTRACK_S3_PUSH")
	setBool(&cfg.S3.UploadRuns, "KTRACK_S3_UPLOAD_RUNS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "KTRACK_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "KTRACK_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "KTRACK_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.LarkWebhookURL, "KTRACK_NOTIFY_LARK_WEBHOOK_URL")
	setStr(&cfg.Notify.LarkWebhookURL, "LARK_WEBHOOK_URL") // compatibility alias
	setStringSlice(&cfg.Notify.Events, "KTRACK_NOTIFY_EVENTS")

	// ── Server ──
	setStr(&cfg.Server.Addr, "KTRACK_SERVER_ADDR")
	setStr(&cfg.Server.APIKey, "KTRACK_SERVER_API_KEY")

	// ── Top-level ──
	setStr(&cfg.Mode, "KTRACK_MODE")
	setStr(&cfg.Schedule, "KTRACK_SCHEDULE")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
