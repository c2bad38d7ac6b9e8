// Package reconcile pushes local daily records to the remote store and pulls
// remote records back, merging last-write-wins by lastUpdated.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/goodtune/kwell/internal/metrics"
	"github.com/goodtune/kwell/internal/stats"
	"github.com/goodtune/kwell/internal/storage"
)

// DefaultLookbackDays is the pull window when none is configured.
const DefaultLookbackDays = 7

// DefaultPushCacheSize bounds the push dedupe cache.
const DefaultPushCacheSize = 64

// SyncError reports a failed remote operation. Sync is best-effort: callers
// log it and carry on.
type SyncError struct {
	Op   string
	Date string
	Err  error
}

func (e *SyncError) Error() string {
	if e.Date != "" {
		return fmt.Sprintf("sync %s %s: %v", e.Op, e.Date, e.Err)
	}
	return fmt.Sprintf("sync %s: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Config holds reconciler configuration
type Config struct {
	UserID        string
	PushCacheSize int
}

// Reconciler syncs one user's daily stats with a storage.RecordStore.
type Reconciler struct {
	remote storage.RecordStore
	store  *stats.Store
	userID string
	logger zerolog.Logger

	// pushed remembers the lastUpdated last known to match the remote copy
	pushed *lru.Cache[string, int64]
	pulls  singleflight.Group
}

// New creates a reconciler for config.UserID.
func New(remote storage.RecordStore, store *stats.Store, config Config, logger zerolog.Logger) (*Reconciler, error) {
	if remote == nil {
		return nil, errors.New("remote record store is required")
	}
	if config.UserID == "" {
		return nil, errors.New("user id is required")
	}
	if config.PushCacheSize <= 0 {
		config.PushCacheSize = DefaultPushCacheSize
	}

	pushed, err := lru.New[string, int64](config.PushCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create push cache: %w", err)
	}

	return &Reconciler{
		remote: remote,
		store:  store,
		userID: config.UserID,
		logger: logger.With().Str("component", "reconciler").Str("user_id", config.UserID).Logger(),
		pushed: pushed,
	}, nil
}

// Push writes stat to the remote store. App time is not part of the remote
// record. A stat whose lastUpdated already matches the remote copy is
// skipped.
func (r *Reconciler) Push(ctx context.Context, stat stats.DailyStat) error {
	if last, ok := r.pushed.Get(stat.Date); ok && last == stat.LastUpdated {
		metrics.SyncOperations.WithLabelValues("push", "skipped").Inc()
		return nil
	}

	written, err := r.remote.PutDaily(ctx, r.userID, stat.Record())
	if err != nil {
		metrics.SyncOperations.WithLabelValues("push", "error").Inc()
		return &SyncError{Op: "push", Date: stat.Date, Err: err}
	}

	if !written {
		// Remote already holds a newer copy; the next pull brings it in.
		metrics.SyncOperations.WithLabelValues("push", "stale").Inc()
		r.logger.Debug().Str("date", stat.Date).Msg("Remote record is newer, push ignored")
		return nil
	}

	r.pushed.Add(stat.Date, stat.LastUpdated)
	metrics.SyncOperations.WithLabelValues("push", "ok").Inc()
	r.logger.Debug().
		Str("date", stat.Date).
		Int64("last_updated", stat.LastUpdated).
		Msg("Pushed daily record")
	return nil
}

// Pull fetches remote records for dates and merges them into the store.
// A *stats.PersistenceError means the merge stands in memory only.
func (r *Reconciler) Pull(ctx context.Context, dates []string) (stats.MergeResult, error) {
	records, err := r.remote.GetDaily(ctx, r.userID, dates)
	if err != nil && !errors.Is(err, storage.ErrCorruptRecord) {
		metrics.SyncOperations.WithLabelValues("pull", "error").Inc()
		return stats.MergeResult{}, &SyncError{Op: "pull", Err: err}
	}

	// Unreadable days are skipped; the readable ones still merge.
	var skipped error
	outcome := "ok"
	if err != nil {
		skipped = &SyncError{Op: "pull", Err: err}
		outcome = "partial"
		r.logger.Warn().Err(err).Msg("Skipping unreadable remote records")
	}

	result, err := r.store.Merge(ctx, records)

	applied := make(map[string]bool, len(result.Applied))
	for _, date := range result.Applied {
		applied[date] = true
	}
	for _, record := range records {
		if applied[record.Date] {
			r.pushed.Add(record.Date, record.LastUpdated)
		}
	}

	metrics.SyncOperations.WithLabelValues("pull", outcome).Inc()
	r.logger.Debug().
		Int("requested", len(dates)).
		Int("received", len(records)).
		Int("applied", len(result.Applied)).
		Msg("Pulled daily records")

	if err != nil {
		return result, err
	}
	return result, skipped
}

// PullWindow pulls the days-long window ending at today. Concurrent calls
// for the same window share one remote round trip.
func (r *Reconciler) PullWindow(ctx context.Context, today time.Time, days int) (stats.MergeResult, error) {
	if days <= 0 {
		days = DefaultLookbackDays
	}
	dates := stats.LastNDates(today, days)

	v, err, _ := r.pulls.Do(strings.Join(dates, ","), func() (interface{}, error) {
		return r.Pull(ctx, dates)
	})
	result, _ := v.(stats.MergeResult)
	return result, err
}
