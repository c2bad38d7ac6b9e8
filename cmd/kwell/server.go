package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/goodtune/kwell/internal/api"
	"github.com/goodtune/kwell/internal/config"
	"github.com/goodtune/kwell/internal/metrics"
	"github.com/goodtune/kwell/internal/systemd"
	"github.com/goodtune/kwell/internal/tracker"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start kwell daemon",
	Long:  `Start the kwell daemon with the tracking API and metrics endpoints.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting kwell")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	kv, err := openLocalStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize local storage: %w", err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close local storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Msg("Local storage initialized")

	remote, err := openRemote(cfg.Remote)
	if err != nil {
		return fmt.Errorf("failed to initialize remote store: %w", err)
	}
	if remote != nil {
		defer func() {
			if err := remote.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close remote store")
			}
		}()
		logger.Info().
			Str("redis_host", cfg.Remote.Redis.Host).
			Int("redis_port", cfg.Remote.Redis.Port).
			Msg("Remote sync enabled")
	}

	manager := tracker.NewManager(engineFactory(cfg, kv, remote, logger), logger)

	if cfg.User.ID != "" {
		if _, err := manager.SignIn(context.Background(), cfg.User.ID); err != nil {
			return fmt.Errorf("failed to sign in %s: %w", cfg.User.ID, err)
		}
	}

	// API server
	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort)
	apiServer := api.NewServer(apiAddr, manager, logger)
	if sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	// Metrics server
	var metricsServer *metrics.Server
	if cfg.Server.MetricsPort > 0 || sdListeners.Metrics != nil {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
		metricsServer = metrics.NewServer(metricsAddr, logger)
		if sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	logger.Info().
		Str("api", apiAddr).
		Int("metrics_port", cfg.Server.MetricsPort).
		Strs("users", manager.Users()).
		Msg("kwell startup complete")

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if interval := systemd.WatchdogInterval(); interval > 0 {
		runWatchdog(ctx, quartz.NewReal(), interval)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			logger.Info().Msg("SIGHUP received, syncing all users")
			_ = systemd.NotifyReloading()
			manager.SyncAll(ctx)
			_ = systemd.NotifyReady()
			continue
		}
		logger.Info().Msg("Shutdown signal received, gracefully stopping...")
		break
	}

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}

	// Ends running sessions so their time is committed before storage closes
	if err := manager.Close(); err != nil {
		logger.Error().Err(err).Msg("Error signing users out")
	}

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping metrics server")
		}
	}

	logger.Info().Msg("kwell stopped")
	return nil
}

// runWatchdog pings the systemd watchdog every interval until ctx ends.
func runWatchdog(ctx context.Context, clock quartz.Clock, interval time.Duration) quartz.Waiter {
	return clock.TickerFunc(ctx, interval, func() error {
		if err := systemd.NotifyWatchdog(); err != nil {
			log.Warn().Err(err).Msg("Failed to send systemd watchdog notification")
		}
		return nil
	}, "systemd", "watchdog")
}
