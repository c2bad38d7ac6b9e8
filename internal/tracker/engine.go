// Package tracker composes the poller, session trackers, daily stats store
// and reconciler into one per-user engine.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/goodtune/kwell/internal/lifecycle"
	"github.com/goodtune/kwell/internal/platform"
	"github.com/goodtune/kwell/internal/poller"
	"github.com/goodtune/kwell/internal/reconcile"
	"github.com/goodtune/kwell/internal/session"
	"github.com/goodtune/kwell/internal/stats"
	"github.com/goodtune/kwell/internal/storage"
)

const (
	// DefaultPollInterval is how often the device counter is sampled.
	DefaultPollInterval = 60 * time.Second

	// DefaultSyncInterval is how often a periodic sync cycle runs.
	DefaultSyncInterval = 5 * time.Minute
)

var (
	// ErrFocusActive is returned when a focus session is already running.
	ErrFocusActive = errors.New("focus session already active")

	// ErrNoFocus is returned when no focus session is running.
	ErrNoFocus = errors.New("no active focus session")

	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine closed")
)

// Config holds engine configuration
type Config struct {
	UserID           string
	StorageKey       string
	PollInterval     time.Duration
	SessionTick      time.Duration
	SyncInterval     time.Duration
	LookbackDays     int
	PushCacheSize    int
	AssumeForeground bool
}

// Deps are the external facilities an engine consumes. Only KV is
// required: a nil Counter marks the usage module unavailable, a nil
// Remote disables sync and a nil Lifecycle leaves transitions to
// HandleLifecycle callers.
type Deps struct {
	KV          storage.KV
	Remote      storage.RecordStore
	Counter     platform.UsageCounter
	Permissions platform.PermissionRequester
	Lifecycle   lifecycle.Source
	Clock       quartz.Clock
}

// Engine tracks one signed-in user.
type Engine struct {
	config      Config
	clock       quartz.Clock
	store       *stats.Store
	poller      *poller.Poller
	permissions platform.PermissionRequester
	reconciler  *reconcile.Reconciler
	source      lifecycle.Source
	app         *session.Tracker
	focus       *session.Tracker
	logger      zerolog.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	timers      sync.WaitGroup

	mu          sync.Mutex
	started     bool
	closed      bool
	foreground  bool
	lastSyncErr error
	lastSyncAt  time.Time
}

// New creates an engine. Call Start to load state and begin tracking.
func New(config Config, deps Deps, logger zerolog.Logger) (*Engine, error) {
	if config.UserID == "" {
		return nil, errors.New("user id is required")
	}
	if deps.KV == nil {
		return nil, errors.New("local storage is required")
	}
	if deps.Clock == nil {
		deps.Clock = quartz.NewReal()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.SessionTick <= 0 {
		config.SessionTick = session.DefaultTick
	}
	if config.LookbackDays <= 0 {
		config.LookbackDays = reconcile.DefaultLookbackDays
	}
	if config.StorageKey == "" {
		config.StorageKey = stats.DefaultKey
	}

	logger = logger.With().Str("user_id", config.UserID).Logger()
	key := storage.UserKey(config.StorageKey, config.UserID)

	e := &Engine{
		config:      config,
		clock:       deps.Clock,
		store:       stats.NewStore(deps.KV, key, deps.Clock, logger),
		poller:      poller.New(deps.Counter, logger),
		permissions: deps.Permissions,
		source:      deps.Lifecycle,
		logger:      logger.With().Str("component", "engine").Logger(),
	}

	if deps.Remote != nil {
		r, err := reconcile.New(deps.Remote, e.store, reconcile.Config{
			UserID:        config.UserID,
			PushCacheSize: config.PushCacheSize,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create reconciler: %w", err)
		}
		e.reconciler = r
	}

	e.app = session.New(session.KindApp, session.Config{
		Clock:  deps.Clock,
		Tick:   config.SessionTick,
		Commit: e.commitApp,
	}, logger)
	e.focus = session.New(session.KindFocus, session.Config{
		Clock:  deps.Clock,
		Tick:   config.SessionTick,
		Commit: e.commitFocus,
	}, logger)

	return e, nil
}

// Start restores persisted state, subscribes to lifecycle events and starts
// the poll and sync timers. Timers outlive ctx and stop on Close.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.ctx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))
	e.mu.Unlock()

	if err := e.store.Load(ctx); err != nil {
		// Start empty rather than refuse to track.
		e.logger.Warn().Err(err).Msg("Failed to load daily stats")
	}

	e.poll(e.ctx)

	e.startTimer("poll", e.config.PollInterval, func() error {
		e.poll(e.ctx)
		return nil
	})

	if e.reconciler != nil {
		interval := e.config.SyncInterval
		if interval <= 0 {
			interval = DefaultSyncInterval
		}
		e.startTimer("sync", interval, func() error {
			e.syncCycle(e.ctx)
			return nil
		})
	}

	if e.source != nil {
		unsubscribe := e.source.Subscribe(e.HandleLifecycle)
		e.mu.Lock()
		closed := e.closed
		if !closed {
			e.unsubscribe = unsubscribe
		}
		e.mu.Unlock()
		if closed {
			unsubscribe()
			return ErrClosed
		}
	}

	e.logger.Info().
		Bool("module_available", e.poller.ModuleAvailable()).
		Bool("sync", e.reconciler != nil).
		Msg("Tracking engine started")

	if e.config.AssumeForeground {
		e.HandleLifecycle(lifecycle.Foreground)
	}
	return nil
}

func (e *Engine) startTimer(name string, interval time.Duration, fn func() error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	waiter := e.clock.TickerFunc(e.ctx, interval, fn, "tracker", name)
	e.timers.Add(1)
	go func() {
		defer e.timers.Done()
		_ = waiter.Wait()
	}()
}

// HandleLifecycle applies an app lifecycle transition. Foreground starts the
// app session, refreshes the device counter and runs a sync cycle.
// Background and Inactive end the app session and any focus session.
func (e *Engine) HandleLifecycle(event lifecycle.Event) {
	e.mu.Lock()
	if e.closed || !e.started {
		e.mu.Unlock()
		return
	}
	ctx := e.ctx
	e.foreground = event == lifecycle.Foreground
	e.mu.Unlock()

	e.logger.Debug().Str("event", event.String()).Msg("Lifecycle transition")

	switch event {
	case lifecycle.Foreground:
		e.app.Start(ctx, "", 0)
		e.poll(ctx)
		e.syncCycle(ctx)
	case lifecycle.Background, lifecycle.Inactive:
		e.app.End()
		if _, ended := e.focus.End(); ended {
			e.logger.Info().Str("event", event.String()).Msg("Focus session ended by app suspension")
		}
	}
}

func (e *Engine) poll(ctx context.Context) {
	reading, err := e.poller.Refresh(ctx)
	if err != nil {
		var perr *poller.Error
		if errors.As(err, &perr) && perr.Kind != poller.Failed {
			e.logger.Debug().Err(err).Msg("Device usage unavailable")
		} else {
			e.logger.Warn().Err(err).Msg("Device usage refresh failed")
		}
		return
	}

	device := poller.OnSeconds(reading)
	today := stats.DateKey(e.clock.Now())
	if _, err := e.store.Update(ctx, today, stats.Delta{DeviceSeconds: &device}); err != nil {
		e.logger.Warn().Err(err).Msg("Device usage kept in memory only")
	}
}

// syncCycle pulls the lookback window then pushes today's record.
func (e *Engine) syncCycle(ctx context.Context) {
	if e.reconciler == nil {
		return
	}

	now := e.clock.Now()
	var syncErr error

	if _, err := e.reconciler.PullWindow(ctx, now, e.config.LookbackDays); err != nil {
		syncErr = err
	}
	if stat, ok := e.store.Get(stats.DateKey(now)); ok {
		if err := e.reconciler.Push(ctx, stat); err != nil && syncErr == nil {
			syncErr = err
		}
	}

	e.recordSync(now, syncErr)
}

func (e *Engine) push(ctx context.Context, stat stats.DailyStat) {
	if e.reconciler == nil {
		return
	}
	e.recordSync(e.clock.Now(), e.reconciler.Push(ctx, stat))
}

func (e *Engine) recordSync(at time.Time, err error) {
	if err != nil {
		e.logger.Warn().Err(err).Msg("Sync failed, will retry on next cycle")
	}
	e.mu.Lock()
	e.lastSyncErr = err
	e.lastSyncAt = at
	e.mu.Unlock()
}

// commitApp records a finished app session against the day it started.
func (e *Engine) commitApp(res session.Result) {
	ctx := e.commitContext()
	stat, err := e.store.Update(ctx, stats.DateKey(res.Start), stats.Delta{
		AppSeconds: int64(res.Duration / time.Second),
		AppSession: true,
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("App session kept in memory only")
	}
	e.push(ctx, stat)
}

func (e *Engine) commitFocus(res session.Result) {
	ctx := e.commitContext()
	end := res.End
	stat, err := e.store.Update(ctx, stats.DateKey(res.Start), stats.Delta{
		FocusSeconds: int64(res.Duration / time.Second),
		FocusSession: &stats.FocusSession{
			ID:              res.ID,
			StartTime:       res.Start,
			EndTime:         &end,
			DurationMinutes: res.Duration.Minutes(),
			Category:        res.Category,
		},
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("Focus session kept in memory only")
	}

	e.logger.Info().
		Str("session_id", res.ID).
		Str("category", res.Category).
		Dur("duration", res.Duration).
		Bool("auto", res.Auto).
		Msg("Focus session completed")

	e.push(ctx, stat)
}

func (e *Engine) commitContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

// StartFocusSession begins a focus session. A positive target ends it
// automatically once reached.
func (e *Engine) StartFocusSession(category string, target time.Duration) (session.Snapshot, error) {
	e.mu.Lock()
	if e.closed || !e.started {
		e.mu.Unlock()
		return session.Snapshot{}, ErrClosed
	}
	ctx := e.ctx
	e.mu.Unlock()

	if !e.focus.Start(ctx, category, target) {
		return session.Snapshot{}, ErrFocusActive
	}
	snap, _ := e.focus.Snapshot()

	e.logger.Info().
		Str("session_id", snap.ID).
		Str("category", category).
		Dur("target", target).
		Msg("Focus session started")

	return snap, nil
}

// EndFocusSession ends the running focus session and commits it.
func (e *Engine) EndFocusSession() (session.Result, error) {
	res, ok := e.focus.End()
	if !ok {
		return session.Result{}, ErrNoFocus
	}
	return res, nil
}

// RequestPermissions asks the platform for usage access and refreshes the
// device counter once granted.
func (e *Engine) RequestPermissions(ctx context.Context) (bool, error) {
	if e.permissions == nil {
		return false, platform.ErrUnavailable
	}
	granted, err := e.permissions.RequestPermissions(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to request permissions: %w", err)
	}
	if !granted {
		return false, platform.ErrPermissionDenied
	}
	e.poll(ctx)
	return true, nil
}

// ModuleAvailable reports whether the platform usage counter exists.
func (e *Engine) ModuleAvailable() bool {
	return e.poller.ModuleAvailable()
}

// UserID returns the user this engine tracks.
func (e *Engine) UserID() string {
	return e.config.UserID
}

// Sync runs a sync cycle immediately.
func (e *Engine) Sync(ctx context.Context) {
	e.syncCycle(ctx)
}

// Close ends running sessions, committing them, then stops every timer and
// waits for them to exit.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	started := e.started
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}

	e.focus.Close()
	e.app.Close()

	if started {
		e.cancel()
		e.timers.Wait()
	}

	e.logger.Info().Msg("Tracking engine stopped")
	return nil
}
