package lifecycle_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goodtune/kwell/internal/lifecycle"
)

func TestBus_DeliversInOrder(t *testing.T) {
	bus := lifecycle.NewBus()

	var got []string
	bus.Subscribe(func(e lifecycle.Event) { got = append(got, "a:"+e.String()) })
	bus.Subscribe(func(e lifecycle.Event) { got = append(got, "b:"+e.String()) })

	bus.Publish(lifecycle.Foreground)
	bus.Publish(lifecycle.Inactive)

	require.Equal(t, []string{
		"a:foreground", "b:foreground",
		"a:inactive", "b:inactive",
	}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := lifecycle.NewBus()

	var count int
	unsubscribe := bus.Subscribe(func(lifecycle.Event) { count++ })
	keep := 0
	bus.Subscribe(func(lifecycle.Event) { keep++ })

	bus.Publish(lifecycle.Background)
	unsubscribe()
	unsubscribe()
	bus.Publish(lifecycle.Background)

	require.Equal(t, 1, count)
	require.Equal(t, 2, keep)
	require.Equal(t, 1, bus.Len())
}

func TestBus_UnsubscribeFromCallback(t *testing.T) {
	bus := lifecycle.NewBus()

	var unsubscribe func()
	calls := 0
	unsubscribe = bus.Subscribe(func(lifecycle.Event) {
		calls++
		unsubscribe()
	})

	bus.Publish(lifecycle.Foreground)
	bus.Publish(lifecycle.Foreground)
	require.Equal(t, 1, calls)
	require.Zero(t, bus.Len())
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		in      string
		want    lifecycle.Event
		wantErr bool
	}{
		{"foreground", lifecycle.Foreground, false},
		{"Active", lifecycle.Foreground, false},
		{" background ", lifecycle.Background, false},
		{"inactive", lifecycle.Inactive, false},
		{"suspended", 0, true},
	}

	for _, tt := range tests {
		got, err := lifecycle.ParseEvent(tt.in)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got)
	}
}
