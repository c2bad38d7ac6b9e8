// Package host approximates the platform usage counter on a server or
// desktop host: the machine counts as active from boot, or from local
// midnight when it booted on an earlier day.
package host

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/host"

	"github.com/goodtune/kwell/internal/platform"
)

// Counter implements platform.UsageCounter and platform.PermissionRequester.
type Counter struct {
	clock    quartz.Clock
	bootTime func(ctx context.Context) (uint64, error)
	logger   zerolog.Logger
}

// New creates a host counter backed by gopsutil.
func New(clock quartz.Clock, logger zerolog.Logger) *Counter {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Counter{
		clock:    clock,
		bootTime: host.BootTimeWithContext,
		logger:   logger.With().Str("component", "host-counter").Logger(),
	}
}

// TodayActiveSeconds returns the seconds since boot or local midnight,
// whichever is later.
func (c *Counter) TodayActiveSeconds(ctx context.Context) (float64, error) {
	boot, err := c.bootTime(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: boot time: %v", platform.ErrUnavailable, err)
	}
	if boot == 0 {
		return 0, platform.ErrUnavailable
	}

	now := c.clock.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	since := time.Unix(int64(boot), 0)
	if since.Before(midnight) {
		since = midnight
	}

	active := now.Sub(since).Seconds()
	if active < 0 {
		active = 0
	}

	c.logger.Debug().
		Time("boot_time", time.Unix(int64(boot), 0)).
		Float64("active_seconds", active).
		Msg("Read host activity")

	return active, nil
}

// RequestPermissions always succeeds; host uptime needs no grant.
func (c *Counter) RequestPermissions(ctx context.Context) (bool, error) {
	return true, nil
}
