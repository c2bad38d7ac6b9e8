// Package memory provides an in-process storage.KV, used by tests and by
// callers that want tracking without durable state.
package memory

import (
	"context"
	"sync"

	"github.com/goodtune/kwell/internal/storage"
)

// Store is a map-backed storage.KV. The zero value is not usable; call New.
type Store struct {
	mu        sync.Mutex
	values    map[string][]byte
	writes    int
	failWrite error
	failRead  error
}

// New returns an empty store.
func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

// Get returns a copy of the value under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failRead != nil {
		return nil, s.failRead
	}
	value, ok := s.values[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

// Set stores a copy of value under key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrite != nil {
		return s.failWrite
	}
	s.values[key] = append([]byte(nil), value...)
	s.writes++
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Writes reports how many successful Set calls were made.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// FailWrites makes subsequent Set calls return err; nil restores them.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrite = err
}

// FailReads makes subsequent Get calls return err; nil restores them.
func (s *Store) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRead = err
}
