package storage

import "time"

// DailyRecord is the remote shape of a day's statistics. Durations are hours
// rounded to one decimal place; LastUpdated is epoch milliseconds.
type DailyRecord struct {
	Date            string               `json:"date"`
	ScreenTimeHours float64              `json:"screenTimeHours"`
	FocusTimeHours  float64              `json:"focusTimeHours"`
	Sessions        int64                `json:"sessions"`
	FocusSessions   []FocusSessionRecord `json:"focusSessions"`
	LastUpdated     int64                `json:"lastUpdated"`
}

// FocusSessionRecord is a completed focus session as stored remotely.
type FocusSessionRecord struct {
	ID              string     `json:"id"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	DurationMinutes float64    `json:"durationMinutes"`
	Category        string     `json:"category"`
	IsActive        bool       `json:"isActive"`
}
