package stats

import (
	"math"
	"time"
)

// DateLayout is the ISO calendar-date key used for DailyStat records.
const DateLayout = "2006-01-02"

// MaxDeviceSeconds is the length of a calendar day.
const MaxDeviceSeconds int64 = 24 * 60 * 60

// DailyStat is the per-day aggregate the store owns.
type DailyStat struct {
	Date                    string         `json:"date"`
	DeviceScreenTimeSeconds int64          `json:"deviceScreenTimeSeconds"`
	AppScreenTimeSeconds    int64          `json:"appScreenTimeSeconds"`
	FocusTimeSeconds        int64          `json:"focusTimeSeconds"`
	SessionCount            int64          `json:"sessionCount"`
	FocusSessions           []FocusSession `json:"focusSessions"`
	LastUpdated             int64          `json:"lastUpdated"`
}

// FocusSession is a user-initiated focus interval.
type FocusSession struct {
	ID              string     `json:"id"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	DurationMinutes float64    `json:"durationMinutes"`
	Category        string     `json:"category"`
	IsActive        bool       `json:"isActive"`
}

// Delta is a mutation intent submitted to the store.
type Delta struct {
	// DeviceSeconds replaces the device total when set.
	DeviceSeconds *int64
	// AppSeconds is added to the app total. A non-zero value, or
	// AppSession, counts one completed app session.
	AppSeconds int64
	AppSession bool
	// FocusSeconds is added to the focus total.
	FocusSeconds int64
	// FocusSession is appended when set.
	FocusSession *FocusSession
}

// clone returns a deep copy so callers never share the store's slices.
func (d DailyStat) clone() DailyStat {
	out := d
	if d.FocusSessions != nil {
		out.FocusSessions = make([]FocusSession, len(d.FocusSessions))
		for i, fs := range d.FocusSessions {
			out.FocusSessions[i] = fs
			if fs.EndTime != nil {
				end := *fs.EndTime
				out.FocusSessions[i].EndTime = &end
			}
		}
	}
	return out
}

// DateKey formats t as a local calendar-date key.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// SecondsSinceLocalMidnight uses the wall clock of t's location, so day
// boundaries follow the user's timezone rather than UTC.
func SecondsSinceLocalMidnight(t time.Time) int64 {
	return int64(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

// Hours converts seconds to hours rounded to one decimal place.
func Hours(seconds int64) float64 {
	return RoundHours(float64(seconds) / 3600)
}

// RoundHours rounds to one decimal place.
func RoundHours(hours float64) float64 {
	return math.Round(hours*10) / 10
}

// LastNDates returns n date keys ending at today, oldest first.
func LastNDates(today time.Time, n int) []string {
	dates := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		dates = append(dates, DateKey(today.AddDate(0, 0, -i)))
	}
	return dates
}

func clampDevice(seconds int64) int64 {
	if seconds < 0 {
		return 0
	}
	if seconds > MaxDeviceSeconds {
		return MaxDeviceSeconds
	}
	return seconds
}
