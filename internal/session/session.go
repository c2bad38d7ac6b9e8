// Package session implements the Idle/Running state machine shared by app
// foreground sessions and focus sessions.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/goodtune/kwell/internal/metrics"
)

// DefaultTick is how often a running session recomputes its elapsed time.
const DefaultTick = 30 * time.Second

// Kind distinguishes the two tracker instances.
type Kind string

const (
	KindApp   Kind = "app"
	KindFocus Kind = "focus"
)

// Result describes a completed session. It is handed to the CommitFunc
// exactly once per session.
type Result struct {
	ID       string
	Kind     Kind
	Category string
	Start    time.Time
	End      time.Time
	Duration time.Duration
	Target   time.Duration
	// Auto is set when the session ended because it reached Target.
	Auto bool
}

// Snapshot is the live view of a running session.
type Snapshot struct {
	ID       string        `json:"id"`
	Kind     Kind          `json:"kind"`
	Category string        `json:"category"`
	Start    time.Time     `json:"startTime"`
	Elapsed  time.Duration `json:"elapsed"`
	Target   time.Duration `json:"target,omitempty"`
}

// CommitFunc receives completed sessions. It is called without any tracker
// lock held.
type CommitFunc func(Result)

// Config holds tracker configuration
type Config struct {
	Clock  quartz.Clock
	Tick   time.Duration
	Commit CommitFunc
}

// Tracker is one session state machine.
type Tracker struct {
	kind   Kind
	clock  quartz.Clock
	tick   time.Duration
	commit CommitFunc
	logger zerolog.Logger

	mu      sync.Mutex
	current *running
	wg      sync.WaitGroup
}

type running struct {
	id       string
	category string
	start    time.Time
	target   time.Duration
	elapsed  time.Duration
	cancel   context.CancelFunc
	deadline *quartz.Timer
}

// New creates an idle tracker.
func New(kind Kind, config Config, logger zerolog.Logger) *Tracker {
	if config.Clock == nil {
		config.Clock = quartz.NewReal()
	}
	if config.Tick <= 0 {
		config.Tick = DefaultTick
	}
	return &Tracker{
		kind:   kind,
		clock:  config.Clock,
		tick:   config.Tick,
		commit: config.Commit,
		logger: logger.With().Str("component", "session").Str("kind", string(kind)).Logger(),
	}
}

// Start moves Idle to Running. It returns false, changing nothing, when a
// session is already running. A positive target ends the session once it
// has run for exactly target. The tick stops when ctx is cancelled.
func (t *Tracker) Start(ctx context.Context, category string, target time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		return false
	}

	tickCtx, cancel := context.WithCancel(ctx)
	cur := &running{
		id:       uuid.NewString(),
		category: category,
		start:    t.clock.Now(),
		target:   target,
		cancel:   cancel,
	}
	t.current = cur

	if target > 0 {
		cur.deadline = t.clock.AfterFunc(target, func() {
			t.end(cur, true)
		}, "session", string(t.kind), "target")
	}

	waiter := t.clock.TickerFunc(tickCtx, t.tick, func() error {
		return t.onTick(cur)
	}, "session", string(t.kind))

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		_ = waiter.Wait()
	}()

	t.logger.Debug().
		Str("session_id", cur.id).
		Str("category", category).
		Dur("target", target).
		Msg("Session started")

	return true
}

func (t *Tracker) onTick(cur *running) error {
	t.mu.Lock()
	if t.current != cur {
		t.mu.Unlock()
		return nil
	}
	cur.elapsed = t.clock.Since(cur.start)
	reached := cur.target > 0 && cur.elapsed >= cur.target
	t.mu.Unlock()

	if reached {
		t.end(cur, true)
	}
	return nil
}

// End moves Running to Idle and commits the session. It returns false when
// no session is running.
func (t *Tracker) End() (Result, bool) {
	t.mu.Lock()
	cur := t.current
	t.mu.Unlock()

	if cur == nil {
		return Result{}, false
	}
	return t.end(cur, false)
}

func (t *Tracker) end(cur *running, auto bool) (Result, bool) {
	t.mu.Lock()
	if t.current != cur {
		t.mu.Unlock()
		return Result{}, false
	}
	t.current = nil
	cur.cancel()

	now := t.clock.Now()
	duration := now.Sub(cur.start)
	if duration < 0 {
		duration = 0
	}
	if auto && cur.target > 0 && duration > cur.target {
		duration = cur.target
		now = cur.start.Add(cur.target)
	}
	t.mu.Unlock()

	if cur.deadline != nil {
		cur.deadline.Stop()
	}

	result := Result{
		ID:       cur.id,
		Kind:     t.kind,
		Category: cur.category,
		Start:    cur.start,
		End:      now,
		Duration: duration,
		Target:   cur.target,
		Auto:     auto,
	}

	metrics.SessionsCompleted.WithLabelValues(string(t.kind)).Inc()
	metrics.SessionSeconds.WithLabelValues(string(t.kind)).Add(duration.Seconds())

	t.logger.Debug().
		Str("session_id", cur.id).
		Dur("duration", duration).
		Bool("auto", auto).
		Msg("Session ended")

	if t.commit != nil {
		t.commit(result)
	}
	return result, true
}

// Running reports whether a session is in progress.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current != nil
}

// Elapsed returns the elapsed time as of the last tick, or 0 when idle.
func (t *Tracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return 0
	}
	return t.current.elapsed
}

// Snapshot returns the running session, if any.
func (t *Tracker) Snapshot() (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return Snapshot{}, false
	}
	return Snapshot{
		ID:       t.current.id,
		Kind:     t.kind,
		Category: t.current.category,
		Start:    t.current.start,
		Elapsed:  t.current.elapsed,
		Target:   t.current.target,
	}, true
}

// Close ends any running session and waits for every tick to stop.
func (t *Tracker) Close() {
	t.End()
	t.wg.Wait()
}
