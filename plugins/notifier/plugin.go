// Package notifier is the notification-sender plugin: it converts domain
// events into outbound notifications and exposes management routes over the
// dispatch pipeline (status, test send, retry queue).
package notifier

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/verifywise-ai/plugin-marketplace-sub002/internal/notify"
	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/domain"
	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/pluginapi"
)

// Plugin wraps a notify.Dispatcher behind the plugin contract.
type Plugin struct {
	dispatcher *notify.Dispatcher
}

// New constructs the notifier around an existing dispatcher so the host can
// inject clock, sleep and HTTP client in tests.
func New(dispatcher *notify.Dispatcher) *Plugin {
	if dispatcher == nil {
		dispatcher = notify.NewDispatcher(notify.Settings{})
	}
	return &Plugin{dispatcher: dispatcher}
}

func (p *Plugin) Manifest() pluginapi.Manifest {
	return pluginapi.Manifest{
		Name:        "notification-sender",
		Version:     "1.0.0",
		DisplayName: "Notification Sender",
		Description: "Send governance events to Slack, Teams, Discord or generic webhooks.",
		Author:      "VerifyWise",
		Permissions: []string{"events:subscribe", "network:outbound"},
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"webhook_url":          map[string]any{"type": "string"},
				"min_severity":         map[string]any{"type": "string", "enum": []string{"all", "low", "medium", "high", "critical"}},
				"categories":           map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"quiet_hours_start":    map[string]any{"type": "string"},
				"quiet_hours_end":      map[string]any{"type": "string"},
				"min_interval_seconds": map[string]any{"type": "number"},
			},
			"required": []string{"webhook_url"},
		},
	}
}

func (p *Plugin) Install(context.Context, pluginapi.Host) error { return nil }

// Uninstall resets counters and drops the retry queue; this is the only
// path that zeroes stats.
func (p *Plugin) Uninstall(context.Context, pluginapi.Host) error {
	p.dispatcher.ClearQueue()
	p.dispatcher.ResetStats()
	return nil
}

// ValidateConfig checks the payload without applying it.
func (p *Plugin) ValidateConfig(config map[string]any) error {
	_, err := settingsFromConfig(config)
	return err
}

func (p *Plugin) Configure(_ context.Context, _ pluginapi.Host, config map[string]any) error {
	settings, err := settingsFromConfig(config)
	if err != nil {
		return err
	}
	p.dispatcher.Configure(settings)
	return nil
}

func settingsFromConfig(config map[string]any) (notify.Settings, error) {
	var settings notify.Settings
	url, _ := config["webhook_url"].(string)
	if url == "" {
		return settings, fmt.Errorf("webhook_url is required")
	}
	settings.WebhookURL = url

	if raw, ok := config["min_severity"].(string); ok {
		severity, err := notify.ParseSeverity(raw)
		if err != nil {
			return settings, err
		}
		settings.MinSeverity = severity
	}
	if raw, ok := config["categories"].([]any); ok && len(raw) > 0 {
		settings.Categories = make(map[string]bool, len(raw))
		for _, item := range raw {
			name, ok := item.(string)
			if !ok || name == "" {
				return settings, fmt.Errorf("categories must be non-empty strings")
			}
			settings.Categories[name] = true
		}
	}
	start, _ := config["quiet_hours_start"].(string)
	end, _ := config["quiet_hours_end"].(string)
	if (start == "") != (end == "") {
		return settings, fmt.Errorf("quiet hours need both start and end")
	}
	if start != "" {
		quiet := notify.QuietHours{Start: start, End: end}
		if _, err := quiet.Contains(time.Now()); err != nil {
			return settings, err
		}
		settings.QuietHours = &quiet
	}
	if raw, ok := config["min_interval_seconds"].(float64); ok {
		if raw < 0 {
			return settings, fmt.Errorf("min_interval_seconds cannot be negative")
		}
		settings.MinInterval = time.Duration(raw * float64(time.Second))
	}
	return settings, nil
}

func (p *Plugin) Routes() map[pluginapi.RouteKey]pluginapi.Handler {
	return map[pluginapi.RouteKey]pluginapi.Handler{
		{Method: http.MethodGet, Path: "/status"}:       p.handleStatus,
		{Method: http.MethodPost, Path: "/test"}:        p.handleTest,
		{Method: http.MethodGet, Path: "/queue"}:        p.handleQueue,
		{Method: http.MethodPost, Path: "/queue/retry"}: p.handleQueueRetry,
		{Method: http.MethodDelete, Path: "/queue"}:     p.handleQueueClear,
	}
}

func (p *Plugin) handleStatus(context.Context, pluginapi.Request) pluginapi.Response {
	settings := p.dispatcher.Settings()
	return pluginapi.OK(map[string]any{
		"configured": settings.WebhookURL != "",
		"platform":   notify.DetectPlatform(settings.WebhookURL),
		"stats":      p.dispatcher.Stats(),
		"queued":     len(p.dispatcher.Queue()),
	})
}

// handleTest pushes a synthetic notification through the full pipeline.
func (p *Plugin) handleTest(ctx context.Context, req pluginapi.Request) pluginapi.Response {
	n := notify.Notification{
		Title:     "Test notification",
		Message:   "The notification pipeline is configured correctly.",
		Severity:  notify.SeverityLow,
		Category:  "test",
		Timestamp: time.Now().UTC(),
	}
	if title, ok := req.Body["title"].(string); ok && title != "" {
		n.Title = title
	}
	if message, ok := req.Body["message"].(string); ok && message != "" {
		n.Message = message
	}
	outcome, err := p.dispatcher.Dispatch(ctx, n)
	if err != nil {
		return pluginapi.Error(http.StatusBadRequest, err.Error())
	}
	return pluginapi.OK(map[string]any{"outcome": outcome})
}

func (p *Plugin) handleQueue(context.Context, pluginapi.Request) pluginapi.Response {
	return pluginapi.OK(map[string]any{"queue": p.dispatcher.Queue()})
}

func (p *Plugin) handleQueueRetry(ctx context.Context, _ pluginapi.Request) pluginapi.Response {
	attempted, delivered := p.dispatcher.RetryNow(ctx)
	return pluginapi.OK(map[string]any{"attempted": attempted, "delivered": delivered})
}

func (p *Plugin) handleQueueClear(context.Context, pluginapi.Request) pluginapi.Response {
	return pluginapi.OK(map[string]any{"cleared": p.dispatcher.ClearQueue()})
}

var eventSeverities = map[domain.EventKind]notify.Severity{
	domain.EventRiskCreated:        notify.SeverityHigh,
	domain.EventRiskUpdated:        notify.SeverityMedium,
	domain.EventRiskDeleted:        notify.SeverityLow,
	domain.EventControlUpdated:     notify.SeverityMedium,
	domain.EventFrameworkInstalled: notify.SeverityLow,
	domain.EventDatasetUploaded:    notify.SeverityLow,
}

func (p *Plugin) EventHandlers() map[domain.EventKind]pluginapi.EventHandler {
	handlers := make(map[domain.EventKind]pluginapi.EventHandler, len(eventSeverities))
	for kind := range eventSeverities {
		handlers[kind] = p.handleEvent
	}
	return handlers
}

func (p *Plugin) handleEvent(ctx context.Context, _ pluginapi.Host, event domain.Event) error {
	severity := eventSeverities[event.Kind]
	if raw, ok := event.Payload["severity"].(string); ok {
		switch domain.RiskLevel(raw) {
		case domain.RiskLevelCritical:
			severity = notify.SeverityCritical
		case domain.RiskLevelHigh:
			severity = notify.SeverityHigh
		case domain.RiskLevelMedium:
			severity = notify.SeverityMedium
		case domain.RiskLevelLow, domain.RiskLevelNegligible:
			severity = notify.SeverityLow
		}
	}
	n := notify.Notification{
		Title:     string(event.Kind),
		Message:   eventMessage(event),
		Severity:  severity,
		Category:  string(event.Kind),
		Timestamp: event.OccurredAt,
	}
	_, err := p.dispatcher.Dispatch(ctx, n)
	return err
}

func eventMessage(event domain.Event) string {
	if title, ok := event.Payload["title"].(string); ok && title != "" {
		return title
	}
	if name, ok := event.Payload["name"].(string); ok && name != "" {
		return name
	}
	return fmt.Sprintf("%s %s", event.Entity, event.EntityID)
}
