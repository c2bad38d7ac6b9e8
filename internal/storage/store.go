package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// ErrCorruptRecord marks a stored record that could not be decoded.
var ErrCorruptRecord = errors.New("storage: corrupt record")

// KV is durable local key/value storage. The tracker keeps its whole
// daily-stats map under a single key and rewrites it on every mutation.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// RecordStore is the remote per-user, per-day record store.
type RecordStore interface {
	// PutDaily stores a record unless the remote copy has a newer
	// LastUpdated. It reports whether the record was written.
	PutDaily(ctx context.Context, userID string, record DailyRecord) (bool, error)
	// GetDaily returns the records that exist for the given dates.
	// Missing dates are omitted rather than reported as errors. Records
	// that cannot be decoded are skipped and reported through an error
	// wrapping ErrCorruptRecord, returned alongside the readable ones.
	GetDaily(ctx context.Context, userID string, dates []string) ([]DailyRecord, error)
	Close() error
}
