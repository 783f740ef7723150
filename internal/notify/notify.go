// Package notify implements the outbound notification pipeline: platform
// detection from the webhook URL, category/quiet-hours/severity filtering,
// rate limiting, delivery and a bounded retry queue.
package notify

import (
	"fmt"
	"strings"
	"time"
)

// Severity orders notifications from informational to critical.
type Severity int

const (
	SeverityAll Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the lowercase name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityAll:
		return "all"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity maps a configuration string to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return SeverityAll, nil
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return SeverityAll, fmt.Errorf("unknown severity %q", s)
	}
}

// Notification is one outbound message before platform formatting.
type Notification struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Category  string    `json:"category,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Outcome reports what the dispatcher did with a notification.
type Outcome string

const (
	OutcomeSent     Outcome = "sent"
	OutcomeFiltered Outcome = "filtered"
	OutcomeQueued   Outcome = "queued"
	OutcomeRejected Outcome = "rejected"
)

// Stats are the dispatcher's monotonic counters. They only reset when the
// owning plugin is uninstalled.
type Stats struct {
	Sent     uint64 `json:"sent"`
	Failed   uint64 `json:"failed"`
	Filtered uint64 `json:"filtered"`
}
