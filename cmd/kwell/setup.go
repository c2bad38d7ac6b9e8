package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/goodtune/kwell/internal/config"
	"github.com/goodtune/kwell/internal/lifecycle"
	"github.com/goodtune/kwell/internal/platform"
	"github.com/goodtune/kwell/internal/platform/host"
	"github.com/goodtune/kwell/internal/session"
	"github.com/goodtune/kwell/internal/storage"
	"github.com/goodtune/kwell/internal/storage/bolt"
	"github.com/goodtune/kwell/internal/storage/file"
	"github.com/goodtune/kwell/internal/storage/redis"
	"github.com/goodtune/kwell/internal/tracker"
)

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
	}

	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out, NoColor: cfg.File != ""}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(out).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// openLocalStorage opens the durable local cache named by cfg.
func openLocalStorage(cfg config.StorageConfig) (storage.KV, error) {
	switch cfg.Type {
	case "", "bolt":
		return bolt.Open(cfg.Path)
	case "file":
		// path names a directory of per-key files
		return file.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (must be bolt or file)", cfg.Type)
	}
}

// openRemote opens the remote record store, or returns nil when sync is
// disabled.
func openRemote(cfg config.RemoteConfig) (storage.RecordStore, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Type {
	case "", "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported remote type: %s (only 'redis' is supported)", cfg.Type)
	}
}

// usageCounter returns the host counter, or nil when disabled so the usage
// module reports itself unavailable.
func usageCounter(cfg config.TrackingConfig, clock quartz.Clock, logger zerolog.Logger) (platform.UsageCounter, platform.PermissionRequester) {
	if !cfg.HostCounter {
		return nil, nil
	}
	counter := host.New(clock, logger)
	return counter, counter
}

// engineFactory builds per-user engines sharing the daemon's storage.
func engineFactory(cfg *config.Config, kv storage.KV, remote storage.RecordStore, logger zerolog.Logger) tracker.Factory {
	clock := quartz.NewReal()
	counter, permissions := usageCounter(cfg.Tracking, clock, logger)

	return func(userID string, source lifecycle.Source) (*tracker.Engine, error) {
		return tracker.New(tracker.Config{
			UserID:           userID,
			StorageKey:       cfg.Storage.Key,
			PollInterval:     parseDuration(cfg.Tracking.PollInterval, tracker.DefaultPollInterval),
			SessionTick:      parseDuration(cfg.Tracking.SessionTick, session.DefaultTick),
			SyncInterval:     parseDuration(cfg.Remote.SyncInterval, tracker.DefaultSyncInterval),
			LookbackDays:     cfg.Tracking.LookbackDays,
			PushCacheSize:    cfg.Remote.PushCacheSize,
			AssumeForeground: cfg.Tracking.AssumeForeground,
		}, tracker.Deps{
			KV:          kv,
			Remote:      remote,
			Counter:     counter,
			Permissions: permissions,
			Lifecycle:   source,
			Clock:       clock,
		}, logger)
	}
}
