package host

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/goodtune/kwell/internal/platform"
)

func newTestCounter(t *testing.T, now time.Time, boot time.Time, bootErr error) *Counter {
	t.Helper()
	mClock := quartz.NewMock(t)
	mClock.Set(now)
	c := New(mClock, zerolog.Nop())
	c.bootTime = func(context.Context) (uint64, error) {
		if bootErr != nil {
			return 0, bootErr
		}
		return uint64(boot.Unix()), nil
	}
	return c
}

func TestTodayActiveSeconds(t *testing.T) {
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.Local)

	tests := []struct {
		name string
		boot time.Time
		want float64
	}{
		{"booted today", time.Date(2025, 6, 10, 8, 30, 0, 0, time.Local), 1800},
		{"booted yesterday", time.Date(2025, 6, 9, 22, 0, 0, 0, time.Local), 9 * 3600},
		{"boot in the future", now.Add(time.Minute), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCounter(t, now, tt.boot, nil)
			got, err := c.TodayActiveSeconds(context.Background())
			if err != nil {
				t.Fatalf("TodayActiveSeconds() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("TodayActiveSeconds() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTodayActiveSeconds_BootTimeError(t *testing.T) {
	c := newTestCounter(t, time.Date(2025, 6, 10, 9, 0, 0, 0, time.Local), time.Time{}, errors.New("no /proc"))

	_, err := c.TodayActiveSeconds(context.Background())
	if !errors.Is(err, platform.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestRequestPermissions(t *testing.T) {
	c := New(nil, zerolog.Nop())
	granted, err := c.RequestPermissions(context.Background())
	if err != nil || !granted {
		t.Fatalf("RequestPermissions() = %v, %v", granted, err)
	}
}
