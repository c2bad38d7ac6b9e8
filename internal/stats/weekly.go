package stats

import "time"

// WeekLength is the number of days in the weekly view.
const WeekLength = 7

// WeeklyEntry is one day of the weekly view, in hours.
type WeeklyEntry struct {
	Day              string  `json:"day"`
	Date             string  `json:"date"`
	DeviceScreenTime float64 `json:"deviceScreenTime"`
	AppScreenTime    float64 `json:"appScreenTime"`
	FocusTime        float64 `json:"focusTime"`
}

// Reader is the read side of the store.
type Reader interface {
	Get(date string) (DailyStat, bool)
}

// Weekly returns exactly seven entries from today-6 to today. Missing days
// are zero. Hours are rounded here so stored values keep full precision.
func Weekly(src Reader, today time.Time) []WeeklyEntry {
	entries := make([]WeeklyEntry, 0, WeekLength)
	for i := WeekLength - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		date := DateKey(day)
		stat, _ := src.Get(date)
		entries = append(entries, WeeklyEntry{
			Day:              day.Format("Mon"),
			Date:             date,
			DeviceScreenTime: Hours(stat.DeviceScreenTimeSeconds),
			AppScreenTime:    Hours(stat.AppScreenTimeSeconds),
			FocusTime:        Hours(stat.FocusTimeSeconds),
		})
	}
	return entries
}
