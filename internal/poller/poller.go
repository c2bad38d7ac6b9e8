// Package poller wraps the platform usage counter. A missing or failing
// counter degrades to an empty reading and never reaches callers as a panic.
package poller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/kwell/internal/metrics"
	"github.com/goodtune/kwell/internal/platform"
	"github.com/goodtune/kwell/internal/stats"
)

// Kind classifies a failed refresh.
type Kind int

const (
	// Failed is a transient counter error; the reading is skipped.
	Failed Kind = iota
	// PlatformUnavailable means the counter does not exist on this host.
	PlatformUnavailable
	// PermissionDenied means the user has not granted usage access.
	PermissionDenied
)

func (k Kind) String() string {
	switch k {
	case PlatformUnavailable:
		return "unavailable"
	case PermissionDenied:
		return "permission_denied"
	default:
		return "failed"
	}
}

// Error is returned by Refresh alongside an empty reading.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("usage refresh %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Reading is one sample of the device counter.
type Reading struct {
	ActiveSeconds float64
	HasData       bool
}

// Poller samples a platform.UsageCounter.
type Poller struct {
	counter platform.UsageCounter
	logger  zerolog.Logger

	mu        sync.Mutex
	available bool
	last      Reading
}

// New creates a poller. A nil counter marks the module unavailable.
func New(counter platform.UsageCounter, logger zerolog.Logger) *Poller {
	return &Poller{
		counter:   counter,
		logger:    logger.With().Str("component", "poller").Logger(),
		available: counter != nil,
	}
}

// Refresh queries the counter. On any failure it returns an empty reading
// and a *Error describing why.
func (p *Poller) Refresh(ctx context.Context) (Reading, error) {
	if p.counter == nil {
		metrics.DevicePolls.WithLabelValues(PlatformUnavailable.String()).Inc()
		return Reading{}, &Error{Kind: PlatformUnavailable, Err: platform.ErrUnavailable}
	}

	active, err := p.counter.TodayActiveSeconds(ctx)
	if err != nil {
		kind := Failed
		switch {
		case errors.Is(err, platform.ErrUnavailable):
			kind = PlatformUnavailable
		case errors.Is(err, platform.ErrPermissionDenied):
			kind = PermissionDenied
		}

		p.mu.Lock()
		if kind == PlatformUnavailable {
			p.available = false
		}
		p.last = Reading{}
		p.mu.Unlock()

		metrics.DevicePolls.WithLabelValues(kind.String()).Inc()
		p.logger.Debug().Err(err).Str("kind", kind.String()).Msg("Usage counter refresh failed")
		return Reading{}, &Error{Kind: kind, Err: err}
	}

	if active < 0 || math.IsNaN(active) {
		active = 0
	}
	reading := Reading{ActiveSeconds: active, HasData: true}

	p.mu.Lock()
	p.available = true
	p.last = reading
	p.mu.Unlock()

	metrics.DevicePolls.WithLabelValues("ok").Inc()
	metrics.DeviceScreenSeconds.Set(active)
	return reading, nil
}

// ModuleAvailable reports whether the platform counter exists.
func (p *Poller) ModuleAvailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

// Last returns the most recent reading.
func (p *Poller) Last() Reading {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// OnSeconds is the whole-second active time of r, or 0 without data.
func OnSeconds(r Reading) int64 {
	if !r.HasData {
		return 0
	}
	return int64(math.Floor(r.ActiveSeconds))
}

// OffSeconds is the time since local midnight the device was not in use.
// Without data it is 0 rather than a misleading full day.
func OffSeconds(r Reading, now time.Time) int64 {
	if !r.HasData {
		return 0
	}
	off := stats.SecondsSinceLocalMidnight(now) - OnSeconds(r)
	if off < 0 {
		return 0
	}
	return off
}
