package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/goodtune/kwell/internal/config"
	"github.com/goodtune/kwell/internal/reconcile"
	"github.com/goodtune/kwell/internal/stats"
	"github.com/goodtune/kwell/internal/storage"
	"github.com/goodtune/kwell/internal/storage/memory"
	"github.com/goodtune/kwell/internal/storage/redis"
)

var testStart = time.Date(2025, 6, 10, 10, 0, 0, 0, time.Local)

func int64p(v int64) *int64 { return &v }

func openRemote(t *testing.T) *redis.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	remote, err := redis.Open(config.RedisConfig{
		Host:         mr.Addr(),
		PoolSize:     4,
		DialTimeout:  "1s",
		ReadTimeout:  "1s",
		WriteTimeout: "1s",
		KeyPrefix:    "kwell-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = remote.Close() })
	return remote
}

func newStore(t *testing.T, at time.Time) (*stats.Store, *quartz.Mock) {
	t.Helper()
	mClock := quartz.NewMock(t)
	mClock.Set(at)
	return stats.NewStore(memory.New(), "", mClock, zerolog.Nop()), mClock
}

func newReconciler(t *testing.T, remote storage.RecordStore, store *stats.Store) *reconcile.Reconciler {
	t.Helper()
	r, err := reconcile.New(remote, store, reconcile.Config{UserID: "alice"}, zerolog.Nop())
	require.NoError(t, err)
	return r
}

// countingStore records calls made to the wrapped store.
type countingStore struct {
	storage.RecordStore
	mu      sync.Mutex
	puts    int
	gets    [][]string
	failPut error
	failGet error
}

func (c *countingStore) PutDaily(ctx context.Context, userID string, record storage.DailyRecord) (bool, error) {
	c.mu.Lock()
	c.puts++
	err := c.failPut
	c.mu.Unlock()
	if err != nil {
		return false, err
	}
	return c.RecordStore.PutDaily(ctx, userID, record)
}

func (c *countingStore) GetDaily(ctx context.Context, userID string, dates []string) ([]storage.DailyRecord, error) {
	c.mu.Lock()
	c.gets = append(c.gets, dates)
	err := c.failGet
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.RecordStore.GetDaily(ctx, userID, dates)
}

func TestPushPull_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	remote := openRemote(t)

	local, _ := newStore(t, testStart)
	stat, err := local.Update(ctx, "2025-06-10", stats.Delta{
		DeviceSeconds: int64p(5430),
		AppSeconds:    1200,
		FocusSeconds:  900,
		FocusSession:  &stats.FocusSession{ID: "f1", StartTime: testStart, DurationMinutes: 15, Category: "reading"},
	})
	require.NoError(t, err)
	require.NoError(t, newReconciler(t, remote, local).Push(ctx, stat))

	// a second device with an empty cache
	other, _ := newStore(t, testStart.Add(-time.Hour))
	result, err := newReconciler(t, remote, other).Pull(ctx, []string{"2025-06-10", "2025-06-09"})
	require.NoError(t, err)
	require.Equal(t, []string{"2025-06-10"}, result.Applied)

	got, ok := other.Get("2025-06-10")
	require.True(t, ok)
	require.InDelta(t, stat.DeviceScreenTimeSeconds, got.DeviceScreenTimeSeconds, 360)
	require.InDelta(t, stat.FocusTimeSeconds, got.FocusTimeSeconds, 360)
	require.Equal(t, stat.SessionCount, got.SessionCount)
	require.Equal(t, stat.LastUpdated, got.LastUpdated)
	require.Len(t, got.FocusSessions, 1)
	require.Equal(t, "reading", got.FocusSessions[0].Category)
	// app time stays on the device that produced it
	require.Zero(t, got.AppScreenTimeSeconds)
}

func TestPull_NewerRemoteOverwritesYesterday(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	remote := openRemote(t)

	local, _ := newStore(t, testStart)
	cached, err := local.Update(ctx, "2025-06-09", stats.Delta{DeviceSeconds: int64p(1800), AppSeconds: 600, FocusSeconds: 60})
	require.NoError(t, err)

	_, err = remote.PutDaily(ctx, "alice", storage.DailyRecord{
		Date:            "2025-06-09",
		ScreenTimeHours: 4.2,
		FocusTimeHours:  0.5,
		Sessions:        9,
		LastUpdated:     cached.LastUpdated + 60_000,
	})
	require.NoError(t, err)

	result, err := newReconciler(t, remote, local).PullWindow(ctx, testStart, 7)
	require.NoError(t, err)
	require.Equal(t, []string{"2025-06-09"}, result.Applied)

	got, _ := local.Get("2025-06-09")
	require.EqualValues(t, 15120, got.DeviceScreenTimeSeconds)
	require.EqualValues(t, 1800, got.FocusTimeSeconds)
	require.EqualValues(t, 9, got.SessionCount)
	require.EqualValues(t, 600, got.AppScreenTimeSeconds)
}

func TestPush_SkipsUnchanged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	remote := &countingStore{RecordStore: openRemote(t)}

	local, mClock := newStore(t, testStart)
	r := newReconciler(t, remote, local)

	stat, err := local.Update(ctx, "2025-06-10", stats.Delta{AppSeconds: 10})
	require.NoError(t, err)
	require.NoError(t, r.Push(ctx, stat))
	require.NoError(t, r.Push(ctx, stat))
	require.Equal(t, 1, remote.puts)

	mClock.Advance(time.Second)
	stat, err = local.Update(ctx, "2025-06-10", stats.Delta{AppSeconds: 10})
	require.NoError(t, err)
	require.NoError(t, r.Push(ctx, stat))
	require.Equal(t, 2, remote.puts)
}

func TestPush_StaleIsNotAnError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	remote := &countingStore{RecordStore: openRemote(t)}

	local, _ := newStore(t, testStart)
	stat, err := local.Update(ctx, "2025-06-10", stats.Delta{AppSeconds: 10})
	require.NoError(t, err)

	_, err = remote.RecordStore.PutDaily(ctx, "alice", storage.DailyRecord{Date: "2025-06-10", LastUpdated: stat.LastUpdated + 1})
	require.NoError(t, err)

	r := newReconciler(t, remote, local)
	require.NoError(t, r.Push(ctx, stat))
	// not cached, so a retry reaches the remote again
	require.NoError(t, r.Push(ctx, stat))
	require.Equal(t, 2, remote.puts)
}

func TestSyncErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	boom := errors.New("connection refused")
	remote := &countingStore{RecordStore: openRemote(t), failPut: boom, failGet: boom}

	local, _ := newStore(t, testStart)
	stat, err := local.Update(ctx, "2025-06-10", stats.Delta{AppSeconds: 10})
	require.NoError(t, err)

	r := newReconciler(t, remote, local)

	var serr *reconcile.SyncError
	err = r.Push(ctx, stat)
	require.ErrorAs(t, err, &serr)
	require.Equal(t, "push", serr.Op)
	require.Equal(t, "2025-06-10", serr.Date)
	require.ErrorIs(t, err, boom)

	_, err = r.PullWindow(ctx, testStart, 3)
	require.ErrorAs(t, err, &serr)
	require.Equal(t, "pull", serr.Op)

	// local state is untouched by the failures
	got, _ := local.Get("2025-06-10")
	require.EqualValues(t, 10, got.AppScreenTimeSeconds)
}

// partialStore returns one readable record and reports another as corrupt.
type partialStore struct {
	storage.RecordStore
	good storage.DailyRecord
	bad  string
}

func (p *partialStore) GetDaily(ctx context.Context, userID string, dates []string) ([]storage.DailyRecord, error) {
	return []storage.DailyRecord{p.good}, fmt.Errorf("record %s: %w", p.bad, storage.ErrCorruptRecord)
}

func TestPull_CorruptRecordDoesNotBlockOthers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	local, _ := newStore(t, testStart)
	remote := &partialStore{
		RecordStore: openRemote(t),
		good: storage.DailyRecord{
			Date:            "2025-06-09",
			ScreenTimeHours: 2,
			Sessions:        3,
			LastUpdated:     testStart.UnixMilli(),
		},
		bad: "2025-06-10",
	}

	result, err := newReconciler(t, remote, local).Pull(ctx, []string{"2025-06-09", "2025-06-10"})

	var serr *reconcile.SyncError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, "pull", serr.Op)
	require.ErrorIs(t, err, storage.ErrCorruptRecord)
	require.Equal(t, []string{"2025-06-09"}, result.Applied)

	got, ok := local.Get("2025-06-09")
	require.True(t, ok)
	require.EqualValues(t, 7200, got.DeviceScreenTimeSeconds)
	require.EqualValues(t, 3, got.SessionCount)
}

func TestPullWindow_RequestsLookbackDates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	remote := &countingStore{RecordStore: openRemote(t)}
	local, _ := newStore(t, testStart)

	_, err := newReconciler(t, remote, local).PullWindow(ctx, testStart, 0)
	require.NoError(t, err)

	require.Len(t, remote.gets, 1)
	require.Equal(t, stats.LastNDates(testStart, reconcile.DefaultLookbackDays), remote.gets[0])
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	local, _ := newStore(t, testStart)

	_, err := reconcile.New(nil, local, reconcile.Config{UserID: "alice"}, zerolog.Nop())
	require.Error(t, err)

	_, err = reconcile.New(openRemote(t), local, reconcile.Config{}, zerolog.Nop())
	require.Error(t, err)
}
