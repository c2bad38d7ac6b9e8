package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/coder/quartz"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/goodtune/kwell/internal/config"
	"github.com/goodtune/kwell/internal/reconcile"
	"github.com/goodtune/kwell/internal/stats"
	"github.com/goodtune/kwell/internal/storage"
)

var (
	weeklyUser string
	weeklySync bool
)

var weeklyCmd = &cobra.Command{
	Use:   "weekly",
	Short: "Print the last seven days of usage",
	Long: `Print device, app and focus hours for the last seven days from the local
cache. The local cache is locked while the daemon runs; use the API instead.`,
	Example: `  kwell -c config.yaml weekly --user alice
  kwell weekly --user alice --sync`,
	RunE: runWeekly,
}

func init() {
	weeklyCmd.Flags().StringVar(&weeklyUser, "user", "", "User ID (defaults to user.id from config)")
	weeklyCmd.Flags().BoolVar(&weeklySync, "sync", false, "Pull the lookback window from the remote store first")
	rootCmd.AddCommand(weeklyCmd)
}

func runWeekly(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	userID := weeklyUser
	if userID == "" {
		userID = cfg.User.ID
	}
	if userID == "" {
		return fmt.Errorf("no user given: pass --user or set user.id")
	}

	// Quiet logger for command mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	kv, err := openLocalStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open local storage: %w", err)
	}
	defer kv.Close()

	ctx := context.Background()
	clock := quartz.NewReal()
	store := stats.NewStore(kv, storage.UserKey(cfg.Storage.Key, userID), clock, logger)
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("failed to load daily stats: %w", err)
	}

	if weeklySync {
		if err := pullWindow(ctx, cfg, store, userID, clock.Now(), logger); err != nil {
			return err
		}
	}

	printWeekly(userID, stats.Weekly(store, clock.Now()))
	return nil
}

func pullWindow(ctx context.Context, cfg *config.Config, store *stats.Store, userID string, today time.Time, logger zerolog.Logger) error {
	remote, err := openRemote(cfg.Remote)
	if err != nil {
		return fmt.Errorf("failed to open remote store: %w", err)
	}
	if remote == nil {
		return fmt.Errorf("remote sync is disabled in %s", configPath)
	}
	defer remote.Close()

	rec, err := reconcile.New(remote, store, reconcile.Config{
		UserID:        userID,
		PushCacheSize: cfg.Remote.PushCacheSize,
	}, logger)
	if err != nil {
		return err
	}

	res, err := rec.PullWindow(ctx, today, cfg.Tracking.LookbackDays)
	if err != nil {
		return fmt.Errorf("failed to pull from remote: %w", err)
	}
	color.New(color.FgCyan).Printf("Pulled %d day(s) from remote\n\n", len(res.Applied))
	return nil
}

func printWeekly(userID string, entries []stats.WeeklyEntry) {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.Faint)

	_, _ = cyan.Printf("Weekly usage for %s\n\n", userID)
	_, _ = bold.Printf("%-4s %-10s %8s %8s %8s\n", "Day", "Date", "Device", "App", "Focus")

	var device, app, focus float64
	for _, e := range entries {
		line := fmt.Sprintf("%-4s %-10s %8.1f %8.1f %8.1f", e.Day, e.Date, e.DeviceScreenTime, e.AppScreenTime, e.FocusTime)
		if e.DeviceScreenTime == 0 && e.AppScreenTime == 0 && e.FocusTime == 0 {
			_, _ = dim.Println(line)
		} else {
			fmt.Println(line)
		}
		device += e.DeviceScreenTime
		app += e.AppScreenTime
		focus += e.FocusTime
	}

	_, _ = bold.Printf("%-15s %8.1f %8.1f %8.1f\n", "Total (hours)", device, app, focus)
}
