package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/goodtune/kwell/internal/lifecycle"
	"github.com/goodtune/kwell/internal/metrics"
)

// ErrNotSignedIn is returned for a user without a running engine.
var ErrNotSignedIn = errors.New("user not signed in")

// Factory builds an engine for a user, subscribed to source.
type Factory func(userID string, source lifecycle.Source) (*Engine, error)

// Manager ties engine lifetimes to sign-in and sign-out. Each user gets an
// engine and a lifecycle bus of their own.
type Manager struct {
	factory Factory
	logger  zerolog.Logger

	signins singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	engine *Engine
	bus    *lifecycle.Bus
}

// NewManager creates a manager with no signed-in users.
func NewManager(factory Factory, logger zerolog.Logger) *Manager {
	return &Manager{
		factory: factory,
		logger:  logger.With().Str("component", "session-manager").Logger(),
		entries: make(map[string]*entry),
	}
}

// SignIn starts an engine for userID, or returns the running one. The
// engine is built and started outside the manager lock so a slow remote
// store only delays this user; concurrent sign-ins for one user share a
// single start.
func (m *Manager) SignIn(ctx context.Context, userID string) (*Engine, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	if engine, ok := m.Engine(userID); ok {
		return engine, nil
	}

	v, err, _ := m.signins.Do(userID, func() (interface{}, error) {
		if engine, ok := m.Engine(userID); ok {
			return engine, nil
		}

		bus := lifecycle.NewBus()
		engine, err := m.factory(userID, bus)
		if err != nil {
			return nil, fmt.Errorf("failed to create engine: %w", err)
		}
		if err := engine.Start(ctx); err != nil {
			_ = engine.Close()
			return nil, fmt.Errorf("failed to start engine: %w", err)
		}

		m.mu.Lock()
		m.entries[userID] = &entry{engine: engine, bus: bus}
		m.mu.Unlock()

		metrics.ActiveEngines.Inc()
		m.logger.Info().Str("user_id", userID).Msg("User signed in")
		return engine, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Engine), nil
}

// SignOut stops and discards the user's engine.
func (m *Manager) SignOut(userID string) error {
	m.mu.Lock()
	ent, ok := m.entries[userID]
	if ok {
		delete(m.entries, userID)
	}
	m.mu.Unlock()

	if !ok {
		return ErrNotSignedIn
	}

	metrics.ActiveEngines.Dec()
	m.logger.Info().Str("user_id", userID).Msg("User signed out")
	return ent.engine.Close()
}

// Engine returns the running engine for userID.
func (m *Manager) Engine(userID string) (*Engine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ent, ok := m.entries[userID]
	if !ok {
		return nil, false
	}
	return ent.engine, true
}

// Only returns the engine when exactly one user is signed in.
func (m *Manager) Only() (*Engine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) != 1 {
		return nil, false
	}
	for _, ent := range m.entries {
		return ent.engine, true
	}
	return nil, false
}

// Publish delivers a lifecycle event to the user's engine.
func (m *Manager) Publish(userID string, event lifecycle.Event) error {
	m.mu.Lock()
	ent, ok := m.entries[userID]
	m.mu.Unlock()
	if !ok {
		return ErrNotSignedIn
	}
	ent.bus.Publish(event)
	return nil
}

// Users returns the signed-in user ids in order.
func (m *Manager) Users() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]string, 0, len(m.entries))
	for id := range m.entries {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

// SyncAll runs a sync cycle for every signed-in user.
func (m *Manager) SyncAll(ctx context.Context) {
	m.mu.Lock()
	engines := make([]*Engine, 0, len(m.entries))
	for _, ent := range m.entries {
		engines = append(engines, ent.engine)
	}
	m.mu.Unlock()

	for _, engine := range engines {
		engine.Sync(ctx)
	}
}

// Close signs every user out.
func (m *Manager) Close() error {
	var errs []error
	for _, userID := range m.Users() {
		if err := m.SignOut(userID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
