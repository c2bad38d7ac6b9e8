package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/coder/quartz"
	"github.com/goodtune/kwell/internal/metrics"
	"github.com/goodtune/kwell/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultKey is the local storage key holding the serialized map.
const DefaultKey = "dailyStats"

// PersistenceError reports a failed read or write of local storage. The
// in-memory state stays authoritative when it is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store owns the date -> DailyStat map. Every mutation goes through Update or
// Merge, is applied under one lock and written through to local storage
// before the call returns.
type Store struct {
	kv     storage.KV
	key    string
	clock  quartz.Clock
	logger zerolog.Logger

	mu   sync.Mutex
	days map[string]*DailyStat
}

// NewStore creates an empty store. Call Load to restore persisted state.
func NewStore(kv storage.KV, key string, clock quartz.Clock, logger zerolog.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Store{
		kv:     kv,
		key:    key,
		clock:  clock,
		logger: logger.With().Str("component", "daily-stats").Logger(),
		days:   make(map[string]*DailyStat),
	}
}

// Load replaces the in-memory map with the persisted one. A missing key is
// a fresh install and not an error.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Debug().Str("key", s.key).Msg("No persisted daily stats, starting empty")
		return nil
	}
	if err != nil {
		metrics.PersistenceErrors.WithLabelValues("load").Inc()
		return &PersistenceError{Op: "load", Err: err}
	}

	days := make(map[string]*DailyStat)
	if err := json.Unmarshal(data, &days); err != nil {
		metrics.PersistenceErrors.WithLabelValues("load").Inc()
		return &PersistenceError{Op: "load", Err: fmt.Errorf("decode daily stats: %w", err)}
	}

	for date, stat := range days {
		if stat == nil {
			delete(days, date)
			continue
		}
		stat.Date = date
		stat.DeviceScreenTimeSeconds = clampDevice(stat.DeviceScreenTimeSeconds)
	}

	s.mu.Lock()
	s.days = days
	s.mu.Unlock()

	s.logger.Info().Int("days", len(days)).Msg("Loaded daily stats")
	return nil
}

// Update applies a mutation intent to date and returns a copy of the result.
// A *PersistenceError means the mutation was applied in memory only.
func (s *Store) Update(ctx context.Context, date string, delta Delta) (DailyStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stat := s.lookupOrCreate(date)

	if delta.DeviceSeconds != nil {
		stat.DeviceScreenTimeSeconds = clampDevice(*delta.DeviceSeconds)
		metrics.StoreUpdates.WithLabelValues("device").Inc()
	}
	if delta.AppSeconds > 0 {
		stat.AppScreenTimeSeconds += delta.AppSeconds
	}
	if delta.AppSeconds > 0 || delta.AppSession {
		stat.SessionCount++
		metrics.StoreUpdates.WithLabelValues("app").Inc()
	}
	if delta.FocusSeconds > 0 {
		stat.FocusTimeSeconds += delta.FocusSeconds
	}
	if delta.FocusSession != nil {
		stat.FocusSessions = append(stat.FocusSessions, *delta.FocusSession)
	}
	if delta.FocusSeconds > 0 || delta.FocusSession != nil {
		metrics.StoreUpdates.WithLabelValues("focus").Inc()
	}

	stat.LastUpdated = s.clock.Now().UnixMilli()

	result := stat.clone()
	if err := s.persistLocked(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// MergeResult lists the dates a merge changed.
type MergeResult struct {
	Applied []string
	Skipped []string
}

// Merge folds remote records into the map by last-write-wins on LastUpdated.
// A remote record replaces the device, focus and session-count fields only
// when it is strictly newer; ties keep the local record. App time has no
// remote origin and is never overwritten.
func (s *Store) Merge(ctx context.Context, records []storage.DailyRecord) (MergeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result MergeResult
	for _, remote := range records {
		if remote.Date == "" {
			continue
		}
		local, exists := s.days[remote.Date]
		if exists && remote.LastUpdated <= local.LastUpdated {
			result.Skipped = append(result.Skipped, remote.Date)
			continue
		}
		if !exists {
			local = &DailyStat{Date: remote.Date}
			s.days[remote.Date] = local
		}

		local.DeviceScreenTimeSeconds = clampDevice(hoursToSeconds(remote.ScreenTimeHours))
		local.FocusTimeSeconds = hoursToSeconds(remote.FocusTimeHours)
		local.SessionCount = remote.Sessions
		local.FocusSessions = focusSessionsFromRecords(remote.FocusSessions)
		local.LastUpdated = remote.LastUpdated

		result.Applied = append(result.Applied, remote.Date)
	}

	if len(result.Applied) == 0 {
		return result, nil
	}

	s.logger.Debug().
		Strs("applied", result.Applied).
		Strs("skipped", result.Skipped).
		Msg("Merged remote daily records")

	return result, s.persistLocked(ctx)
}

// Get returns a copy of the stat for date.
func (s *Store) Get(date string) (DailyStat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stat, ok := s.days[date]
	if !ok {
		return DailyStat{Date: date}, false
	}
	return stat.clone(), true
}

// Snapshot returns a copy of every known day.
func (s *Store) Snapshot() map[string]DailyStat {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]DailyStat, len(s.days))
	for date, stat := range s.days {
		out[date] = stat.clone()
	}
	return out
}

// Dates returns the known dates in ascending order.
func (s *Store) Dates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	dates := make([]string, 0, len(s.days))
	for date := range s.days {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}

// Flush rewrites local storage from memory, resynchronising it after an
// earlier persistence failure.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx)
}

func (s *Store) lookupOrCreate(date string) *DailyStat {
	stat, ok := s.days[date]
	if !ok {
		stat = &DailyStat{Date: date}
		s.days[date] = stat
	}
	return stat
}

// persistLocked must be called with s.mu held so storage observes writes in
// mutation order.
func (s *Store) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(s.days)
	if err != nil {
		metrics.PersistenceErrors.WithLabelValues("encode").Inc()
		return &PersistenceError{Op: "encode", Err: err}
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		metrics.PersistenceErrors.WithLabelValues("write").Inc()
		s.logger.Warn().Err(err).Str("key", s.key).Msg("Failed to persist daily stats, keeping in-memory state")
		return &PersistenceError{Op: "write", Err: err}
	}
	return nil
}

func hoursToSeconds(hours float64) int64 {
	if hours <= 0 {
		return 0
	}
	return int64(math.Round(hours * 3600))
}

func focusSessionsFromRecords(records []storage.FocusSessionRecord) []FocusSession {
	if len(records) == 0 {
		return nil
	}
	out := make([]FocusSession, len(records))
	for i, r := range records {
		out[i] = FocusSession{
			ID:              r.ID,
			StartTime:       r.StartTime,
			EndTime:         r.EndTime,
			DurationMinutes: r.DurationMinutes,
			Category:        r.Category,
			IsActive:        r.IsActive,
		}
	}
	return out
}

// Record converts a stat to the remote shape. App time is not part of it.
func (d DailyStat) Record() storage.DailyRecord {
	record := storage.DailyRecord{
		Date:            d.Date,
		ScreenTimeHours: Hours(d.DeviceScreenTimeSeconds),
		FocusTimeHours:  Hours(d.FocusTimeSeconds),
		Sessions:        d.SessionCount,
		LastUpdated:     d.LastUpdated,
	}
	if len(d.FocusSessions) > 0 {
		record.FocusSessions = make([]storage.FocusSessionRecord, len(d.FocusSessions))
		for i, fs := range d.FocusSessions {
			record.FocusSessions[i] = storage.FocusSessionRecord{
				ID:              fs.ID,
				StartTime:       fs.StartTime,
				EndTime:         fs.EndTime,
				DurationMinutes: fs.DurationMinutes,
				Category:        fs.Category,
				IsActive:        fs.IsActive,
			}
		}
	}
	return record
}
