package tracker

import (
	"time"

	"github.com/goodtune/kwell/internal/poller"
	"github.com/goodtune/kwell/internal/session"
	"github.com/goodtune/kwell/internal/stats"
)

// TodayView is the live view of the current day. App and focus totals
// include the elapsed time of sessions still running. When the latest
// device refresh failed, device, on and off seconds all describe the last
// stored reading and DeviceStale is set.
type TodayView struct {
	Date                    string               `json:"date"`
	DeviceScreenTimeSeconds int64                `json:"deviceScreenTimeSeconds"`
	AppScreenTimeSeconds    int64                `json:"appScreenTimeSeconds"`
	FocusTimeSeconds        int64                `json:"focusTimeSeconds"`
	SessionCount            int64                `json:"sessionCount"`
	OnSeconds               int64                `json:"onSeconds"`
	OffSeconds              int64                `json:"offSeconds"`
	DeviceStale             bool                 `json:"deviceStale"`
	ModuleAvailable         bool                 `json:"moduleAvailable"`
	Foreground              bool                 `json:"foreground"`
	ActiveFocus             *session.Snapshot    `json:"activeFocus,omitempty"`
	FocusSessions           []stats.FocusSession `json:"focusSessions"`
	LastUpdated             int64                `json:"lastUpdated"`
	LastSyncAt              *time.Time           `json:"lastSyncAt,omitempty"`
	LastSyncError           string               `json:"lastSyncError,omitempty"`
}

// Today returns the live view for the engine clock's current date.
func (e *Engine) Today() TodayView {
	now := e.clock.Now()
	date := stats.DateKey(now)
	stat, _ := e.store.Get(date)
	reading := e.poller.Last()
	available := e.poller.ModuleAvailable()

	stale := false
	if !reading.HasData && available && stat.DeviceScreenTimeSeconds > 0 {
		reading = poller.Reading{ActiveSeconds: float64(stat.DeviceScreenTimeSeconds), HasData: true}
		stale = true
	}

	view := TodayView{
		Date:                    date,
		DeviceScreenTimeSeconds: stat.DeviceScreenTimeSeconds,
		AppScreenTimeSeconds:    stat.AppScreenTimeSeconds,
		FocusTimeSeconds:        stat.FocusTimeSeconds,
		SessionCount:            stat.SessionCount,
		OnSeconds:               poller.OnSeconds(reading),
		OffSeconds:              poller.OffSeconds(reading, now),
		DeviceStale:             stale,
		ModuleAvailable:         available,
		FocusSessions:           stat.FocusSessions,
		LastUpdated:             stat.LastUpdated,
	}
	if view.FocusSessions == nil {
		view.FocusSessions = []stats.FocusSession{}
	}

	if snap, ok := e.app.Snapshot(); ok && stats.DateKey(snap.Start) == date {
		view.AppScreenTimeSeconds += int64(snap.Elapsed / time.Second)
	}
	if snap, ok := e.focus.Snapshot(); ok {
		if stats.DateKey(snap.Start) == date {
			view.FocusTimeSeconds += int64(snap.Elapsed / time.Second)
		}
		view.ActiveFocus = &snap
	}

	e.mu.Lock()
	view.Foreground = e.foreground
	if !e.lastSyncAt.IsZero() {
		at := e.lastSyncAt
		view.LastSyncAt = &at
	}
	if e.lastSyncErr != nil {
		view.LastSyncError = e.lastSyncErr.Error()
	}
	e.mu.Unlock()

	return view
}

// Weekly returns the seven-day view ending today.
func (e *Engine) Weekly() []stats.WeeklyEntry {
	return stats.Weekly(e.store, e.clock.Now())
}

// Stat returns a copy of the stored record for date.
func (e *Engine) Stat(date string) (stats.DailyStat, bool) {
	return e.store.Get(date)
}
