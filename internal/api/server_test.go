package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/goodtune/kwell/internal/api"
	"github.com/goodtune/kwell/internal/lifecycle"
	"github.com/goodtune/kwell/internal/platform"
	"github.com/goodtune/kwell/internal/storage/memory"
	"github.com/goodtune/kwell/internal/tracker"
)

var testStart = time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)

type fixture struct {
	handler http.Handler
	manager *tracker.Manager
	clock   *quartz.Mock
}

func newFixture(t *testing.T, permissions platform.PermissionRequester) *fixture {
	t.Helper()
	mClock := quartz.NewMock(t)
	mClock.Set(testStart)
	kv := memory.New()

	counter := platform.CounterFunc(func(context.Context) (float64, error) { return 3600, nil })
	manager := tracker.NewManager(func(userID string, source lifecycle.Source) (*tracker.Engine, error) {
		return tracker.New(tracker.Config{UserID: userID}, tracker.Deps{
			KV:          kv,
			Counter:     counter,
			Permissions: permissions,
			Lifecycle:   source,
			Clock:       mClock,
		}, zerolog.Nop())
	}, zerolog.Nop())
	t.Cleanup(func() { _ = manager.Close() })

	srv := api.NewServer("127.0.0.1:0", manager, zerolog.Nop())
	return &fixture{handler: srv.Handler(), manager: manager, clock: mClock}
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestRequiresSignIn(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/v1/today", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, http.StatusUnauthorized, decode[api.ErrorResponse](t, rec).Code)

	rec = f.do(t, http.MethodPost, "/v1/session", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodDelete, "/v1/session", "", api.UserHeader, "nobody")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionTodayWeekly(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/v1/session", `{"userId":"alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/today", "")
	require.Equal(t, http.StatusOK, rec.Code)
	today := decode[tracker.TodayView](t, rec)
	require.Equal(t, "2025-06-10", today.Date)
	require.EqualValues(t, 3600, today.OnSeconds)
	require.EqualValues(t, 32400, today.OffSeconds)
	require.True(t, today.ModuleAvailable)

	rec = f.do(t, http.MethodGet, "/v1/weekly?user=alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	weekly := decode[api.WeeklyResponse](t, rec)
	require.Len(t, weekly.Days, 7)
	require.Equal(t, "2025-06-10", weekly.Days[6].Date)
	require.Equal(t, 1.0, weekly.Days[6].DeviceScreenTime)

	rec = f.do(t, http.MethodDelete, "/v1/session", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, f.manager.Users())
}

func TestFocusFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	_, err := f.manager.SignIn(context.Background(), "alice")
	require.NoError(t, err)

	rec := f.do(t, http.MethodDelete, "/v1/focus", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/focus", `{"category":"reading"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/focus", `{"category":"again"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/focus", `{"category":"x","targetMinutes":-1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	f.clock.Advance(30 * time.Second).MustWait(context.Background())

	rec = f.do(t, http.MethodDelete, "/v1/focus", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[api.FocusResponse](t, rec)
	require.Equal(t, "reading", res.Category)
	require.Equal(t, 0.5, res.DurationMinutes)
}

func TestLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	_, err := f.manager.SignIn(context.Background(), "alice")
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/v1/lifecycle", `{"state":"sleeping"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/lifecycle", `{"state":"foreground"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decode[tracker.TodayView](t, rec).Foreground)

	rec = f.do(t, http.MethodPost, "/v1/lifecycle", `{"state":"background"}`, api.UserHeader, "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	today := decode[tracker.TodayView](t, rec)
	require.False(t, today.Foreground)
	require.EqualValues(t, 1, today.SessionCount)
}

func TestPermissions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		permissions platform.PermissionRequester
		want        int
	}{
		{"granted", platform.PermissionFunc(func(context.Context) (bool, error) { return true, nil }), http.StatusOK},
		{"denied", platform.PermissionFunc(func(context.Context) (bool, error) { return false, nil }), http.StatusForbidden},
		{"unsupported", nil, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, tt.permissions)
			_, err := f.manager.SignIn(context.Background(), "alice")
			require.NoError(t, err)

			rec := f.do(t, http.MethodPost, "/v1/permissions", "")
			require.Equal(t, tt.want, rec.Code)
		})
	}
}
