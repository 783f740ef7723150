package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// QuietHours suppresses notifications inside a daily window. Start is
// inclusive, End exclusive; windows may wrap midnight (22:00-08:00).
type QuietHours struct {
	Start string `json:"start"` // HH:MM
	End   string `json:"end"`   // HH:MM
}

func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// Contains reports whether t falls inside the quiet window.
func (q QuietHours) Contains(t time.Time) (bool, error) {
	start, err := parseClock(q.Start)
	if err != nil {
		return false, err
	}
	end, err := parseClock(q.End)
	if err != nil {
		return false, err
	}
	if start == end {
		return false, nil
	}
	minute := t.Hour()*60 + t.Minute()
	if start < end {
		return minute >= start && minute < end, nil
	}
	// wraps midnight
	return minute >= start || minute < end, nil
}

// Settings configures the dispatcher. Categories empty means all categories
// are enabled.
type Settings struct {
	WebhookURL  string          `json:"webhook_url"`
	MinSeverity Severity        `json:"min_severity"`
	Categories  map[string]bool `json:"categories,omitempty"`
	QuietHours  *QuietHours     `json:"quiet_hours,omitempty"`
	MinInterval time.Duration   `json:"min_interval"`
}

func (s Settings) categoryEnabled(category string) bool {
	if len(s.Categories) == 0 {
		return true
	}
	return s.Categories[category]
}
