// Command kalshitracker syncs daily Kalshi trade snapshots and computes the
// volume reports. It loads configuration, validates it, sets up signal
// handling, and runs the configured mode once or on a schedule.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/alanyoungcy/kalshitracker/internal/app"
	"github.com/alanyoungcy/kalshitracker/internal/config"
	"github.com/alanyoungcy/kalshitracker/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file (empty for defaults and env only)")
	mode := flag.String("mode", "", "override mode: sync, aggregate or full")
	start := flag.String("start", "", "first date to sync (YYYY-MM-DD)")
	end := flag.String("end", "", "last date to sync (YYYY-MM-DD)")
	encryptKey := flag.String("encrypt-key", "", "seal the PEM key at this path with kalshi.rsa_key_password and exit")
	flag.Parse()

	// Bootstrap logger until the configured level is known.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	path := *configPath
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !flagSet("config") {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	if *encryptKey != "" {
		out, err := sealKeyFile(*encryptKey, cfg.Kalshi.RsaKeyPassword)
		if err != nil {
			logger.Error("failed to encrypt key", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("encrypted key written", slog.String("path", out))
		return
	}

	logger, closeLog := newLogger(cfg.Log)
	defer closeLog()
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("kalshi tracker starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, logger).WithRange(app.RangeOverride{Start: *start, End: *end})
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
			return
		}
		logger.Error("application exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		application.Close()
		closeLog()
		os.Exit(1)
	}

	logger.Info("kalshi tracker stopped")
}

// newLogger builds the JSON logger. When a log file is configured the same
// stream is also written to a size-rotated file.
func newLogger(cfg config.LogConfig) (*slog.Logger, func()) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closeFn = func() { _ = rotator.Close() }
	}

	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})), closeFn
}

// sealKeyFile writes an encrypted copy of the PEM key at path next to it
// and returns the new file's path.
func sealKeyFile(path, password string) (string, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sealed, err := crypto.EncryptKey(pemBytes, password)
	if err != nil {
		return "", err
	}
	out := path + ".enc"
	if err := os.WriteFile(out, sealed, 0o600); err != nil {
		return "", err
	}
	return out, nil
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
