package redis

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/goodtune/kwell/internal/storage"
)

// parseDailyRecord converts a Redis hash to DailyRecord
func parseDailyRecord(data map[string]string) (*storage.DailyRecord, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	screenHours, err := strconv.ParseFloat(data["screen_time_hours"], 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse screen_time_hours: %w", err)
	}

	focusHours, err := strconv.ParseFloat(data["focus_time_hours"], 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse focus_time_hours: %w", err)
	}

	sessions, err := strconv.ParseInt(data["sessions"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sessions: %w", err)
	}

	lastUpdated, err := strconv.ParseInt(data["last_updated"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse last_updated: %w", err)
	}

	var focusSessions []storage.FocusSessionRecord
	if raw := data["focus_sessions"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &focusSessions); err != nil {
			return nil, fmt.Errorf("failed to parse focus_sessions: %w", err)
		}
	}

	return &storage.DailyRecord{
		Date:            data["date"],
		ScreenTimeHours: screenHours,
		FocusTimeHours:  focusHours,
		Sessions:        sessions,
		FocusSessions:   focusSessions,
		LastUpdated:     lastUpdated,
	}, nil
}

func formatHours(hours float64) string {
	return strconv.FormatFloat(hours, 'f', 1, 64)
}
