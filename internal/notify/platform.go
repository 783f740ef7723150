package notify

import (
	"strings"
	"time"
)

// Platform identifies the chat service behind a webhook URL.
type Platform string

const (
	PlatformSlack   Platform = "slack"
	PlatformTeams   Platform = "teams"
	PlatformDiscord Platform = "discord"
	PlatformGeneric Platform = "generic"
)

// Ordered substring checks; the first match wins.
var platformMatchers = []struct {
	substr   string
	platform Platform
}{
	{"hooks.slack.com", PlatformSlack},
	{"webhook.office.com", PlatformTeams},
	{"outlook.office.com", PlatformTeams},
	{"discord.com/api/webhooks", PlatformDiscord},
}

// DetectPlatform inspects a webhook URL and returns the target platform.
// Unrecognized URLs fall through to the generic JSON payload.
func DetectPlatform(url string) Platform {
	for _, m := range platformMatchers {
		if strings.Contains(url, m.substr) {
			return m.platform
		}
	}
	return PlatformGeneric
}

func severityColor(s Severity) string {
	switch s {
	case SeverityCritical:
		return "#d32f2f"
	case SeverityHigh:
		return "#f57c00"
	case SeverityMedium:
		return "#fbc02d"
	default:
		return "#388e3c"
	}
}

// discord wants decimal color ints
func severityColorInt(s Severity) int {
	switch s {
	case SeverityCritical:
		return 0xd32f2f
	case SeverityHigh:
		return 0xf57c00
	case SeverityMedium:
		return 0xfbc02d
	default:
		return 0x388e3c
	}
}

// BuildPayload formats a notification for the detected platform.
func BuildPayload(platform Platform, n Notification) map[string]any {
	ts := n.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	switch platform {
	case PlatformSlack:
		return map[string]any{
			"attachments": []map[string]any{{
				"color":  severityColor(n.Severity),
				"title":  n.Title,
				"text":   n.Message,
				"footer": n.Category,
				"ts":     ts.Unix(),
			}},
		}
	case PlatformDiscord:
		return map[string]any{
			"embeds": []map[string]any{{
				"title":       n.Title,
				"description": n.Message,
				"color":       severityColorInt(n.Severity),
				"timestamp":   ts.Format(time.RFC3339),
			}},
		}
	case PlatformTeams:
		return map[string]any{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": strings.TrimPrefix(severityColor(n.Severity), "#"),
			"summary":    n.Title,
			"sections": []map[string]string{{
				"activityTitle": n.Title,
				"activityText":  n.Message,
			}},
		}
	default:
		return map[string]any{
			"title":     n.Title,
			"message":   n.Message,
			"severity":  n.Severity.String(),
			"category":  n.Category,
			"timestamp": ts.Format(time.RFC3339),
		}
	}
}
