package poller_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/goodtune/kwell/internal/platform"
	"github.com/goodtune/kwell/internal/poller"
)

func counter(v float64, err error) platform.CounterFunc {
	return func(context.Context) (float64, error) { return v, err }
}

func TestRefresh_Reading(t *testing.T) {
	t.Parallel()
	p := poller.New(counter(3600.7, nil), zerolog.Nop())

	r, err := p.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, r.HasData)
	require.Equal(t, 3600.7, r.ActiveSeconds)
	require.True(t, p.ModuleAvailable())
	require.Equal(t, r, p.Last())
	require.EqualValues(t, 3600, poller.OnSeconds(r))
}

func TestOffSeconds(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 10, 10, 0, 0, 0, time.Local)

	require.EqualValues(t, 32400, poller.OffSeconds(poller.Reading{ActiveSeconds: 3600, HasData: true}, now))
	require.EqualValues(t, 0, poller.OffSeconds(poller.Reading{ActiveSeconds: 3600}, now))
	// counter ahead of the wall clock
	require.EqualValues(t, 0, poller.OffSeconds(poller.Reading{ActiveSeconds: 40000, HasData: true}, now))
}

func TestRefresh_ModuleAbsent(t *testing.T) {
	t.Parallel()
	p := poller.New(nil, zerolog.Nop())
	require.False(t, p.ModuleAvailable())

	var r poller.Reading
	require.NotPanics(t, func() {
		var err error
		r, err = p.Refresh(context.Background())

		var perr *poller.Error
		require.ErrorAs(t, err, &perr)
		require.Equal(t, poller.PlatformUnavailable, perr.Kind)
		require.ErrorIs(t, err, platform.ErrUnavailable)
	})

	require.False(t, r.HasData)
	require.Zero(t, poller.OnSeconds(r))
	require.Zero(t, poller.OffSeconds(r, time.Now()))
	require.False(t, p.ModuleAvailable())
}

func TestRefresh_ErrorKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		err           error
		wantKind      poller.Kind
		wantAvailable bool
	}{
		{"unavailable", platform.ErrUnavailable, poller.PlatformUnavailable, false},
		{"wrapped unavailable", errors.Join(errors.New("dlopen"), platform.ErrUnavailable), poller.PlatformUnavailable, false},
		{"permission denied", platform.ErrPermissionDenied, poller.PermissionDenied, true},
		{"transient", errors.New("timeout"), poller.Failed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := poller.New(counter(0, tt.err), zerolog.Nop())

			r, err := p.Refresh(context.Background())
			var perr *poller.Error
			require.ErrorAs(t, err, &perr)
			require.Equal(t, tt.wantKind, perr.Kind)
			require.False(t, r.HasData)
			require.Equal(t, tt.wantAvailable, p.ModuleAvailable())
		})
	}
}

func TestRefresh_RecoversAfterUnavailable(t *testing.T) {
	t.Parallel()
	fail := true
	p := poller.New(platform.CounterFunc(func(context.Context) (float64, error) {
		if fail {
			return 0, platform.ErrUnavailable
		}
		return 120, nil
	}), zerolog.Nop())

	_, err := p.Refresh(context.Background())
	require.Error(t, err)
	require.False(t, p.ModuleAvailable())

	fail = false
	r, err := p.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, r.HasData)
	require.True(t, p.ModuleAvailable())
}
