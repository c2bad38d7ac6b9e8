package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/coder/quartz"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/goodtune/kwell/internal/config"
	"github.com/goodtune/kwell/internal/poller"
	"github.com/goodtune/kwell/internal/stats"
)

var checkUser string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the usage counter and remote store",
	Long: `Check what kwell would see at startup: the device usage reading and,
when remote sync is enabled, whether the remote store answers for a user.`,
	Example: `  kwell -c config.yaml check
  kwell check --user alice`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkUser, "user", "", "User ID for the remote read (defaults to user.id from config)")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Quiet logger for check mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cyan := color.New(color.FgCyan, color.Bold)
	fmt.Println()
	_, _ = cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	_, _ = cyan.Println("KWELL CHECK")
	_, _ = cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	clock := quartz.NewReal()
	failed := !checkCounter(ctx, cfg, clock, logger)

	userID := checkUser
	if userID == "" {
		userID = cfg.User.ID
	}
	if !checkRemote(ctx, cfg, userID, clock.Now()) {
		failed = true
	}
	fmt.Println()

	if failed {
		return errors.New("one or more checks failed")
	}
	return nil
}

func checkCounter(ctx context.Context, cfg *config.Config, clock quartz.Clock, logger zerolog.Logger) bool {
	_, _ = color.New(color.FgCyan).Print("Usage counter: ")

	counter, permissions := usageCounter(cfg.Tracking, clock, logger)
	p := poller.New(counter, logger)
	reading, err := p.Refresh(ctx)

	var pollErr *poller.Error
	switch {
	case err == nil:
		printOK("%.0f active seconds today (on %ds, off %ds)",
			reading.ActiveSeconds, poller.OnSeconds(reading), poller.OffSeconds(reading, clock.Now()))
	case counter == nil:
		printWarn("host counter disabled")
		return true
	case errors.As(err, &pollErr) && pollErr.Kind == poller.PermissionDenied:
		printFail("permission denied")
		if permissions != nil {
			granted, _ := permissions.RequestPermissions(ctx)
			fmt.Printf("               → permission request granted: %v\n", granted)
		}
		return false
	default:
		printFail("%v", err)
		return false
	}
	return true
}

func checkRemote(ctx context.Context, cfg *config.Config, userID string, now time.Time) bool {
	_, _ = color.New(color.FgCyan).Print("Remote store:  ")

	if !cfg.Remote.Enabled {
		printWarn("disabled")
		return true
	}

	remote, err := openRemote(cfg.Remote)
	if err != nil {
		printFail("%v", err)
		return false
	}
	defer remote.Close()

	if userID == "" {
		printOK("reachable at %s:%d", cfg.Remote.Redis.Host, cfg.Remote.Redis.Port)
		return true
	}

	dates := stats.LastNDates(now, cfg.Tracking.LookbackDays)
	records, err := remote.GetDaily(ctx, userID, dates)
	if err != nil {
		printFail("read for %s failed: %v", userID, err)
		return false
	}
	printOK("%d of the last %d day(s) stored for %s", len(records), len(dates), userID)
	return true
}

func printOK(format string, args ...any) {
	_, _ = color.New(color.FgGreen, color.Bold).Print("OK   ")
	fmt.Printf(format+"\n", args...)
}

func printWarn(format string, args ...any) {
	_, _ = color.New(color.FgYellow, color.Bold).Print("SKIP ")
	fmt.Printf(format+"\n", args...)
}

func printFail(format string, args ...any) {
	_, _ = color.New(color.FgRed, color.Bold).Print("FAIL ")
	fmt.Printf(format+"\n", args...)
}
