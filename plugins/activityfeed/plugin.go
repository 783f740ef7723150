// Package activityfeed keeps a bounded, most-recent-first feed of domain
// events for display in the workspace UI. The feed lives in plugin memory;
// uninstalling the plugin discards it.
package activityfeed

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/domain"
	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/pluginapi"
)

// DefaultMaxEntries bounds the feed when no cap is configured.
const DefaultMaxEntries = 100

var feedKinds = []domain.EventKind{
	domain.EventWorkspaceCreated,
	domain.EventFrameworkInstalled,
	domain.EventControlUpdated,
	domain.EventRiskCreated,
	domain.EventRiskUpdated,
	domain.EventRiskDeleted,
	domain.EventDatasetUploaded,
	domain.EventDatasetDeleted,
	domain.EventPluginInstalled,
	domain.EventPluginUninstalled,
}

// Plugin records domain events into a capped in-memory feed.
type Plugin struct {
	mu      sync.Mutex
	max     int
	records []domain.ActivityRecord
}

// New constructs the feed with the default cap.
func New() *Plugin {
	return &Plugin{max: DefaultMaxEntries}
}

func (p *Plugin) Manifest() pluginapi.Manifest {
	return pluginapi.Manifest{
		Name:        "activity-feed",
		Version:     "1.0.0",
		DisplayName: "Activity Feed",
		Description: "Show a rolling feed of recent workspace activity.",
		Author:      "VerifyWise",
		Permissions: []string{"events:subscribe"},
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"max_entries": map[string]any{"type": "integer", "minimum": 1, "maximum": 1000},
			},
		},
		UISlots: []pluginapi.UISlot{
			{Slot: "dashboard.panel", Asset: "dist/activity-feed.js"},
		},
	}
}

func (p *Plugin) Install(context.Context, pluginapi.Host) error { return nil }

// Uninstall discards the feed.
func (p *Plugin) Uninstall(context.Context, pluginapi.Host) error {
	p.mu.Lock()
	p.records = nil
	p.mu.Unlock()
	return nil
}

func (p *Plugin) ValidateConfig(config map[string]any) error {
	_, err := maxEntriesFromConfig(config)
	return err
}

// Configure applies a new cap. A smaller cap trims the oldest entries.
func (p *Plugin) Configure(_ context.Context, _ pluginapi.Host, config map[string]any) error {
	max, err := maxEntriesFromConfig(config)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.max = max
	if len(p.records) > max {
		p.records = append([]domain.ActivityRecord(nil), p.records[len(p.records)-max:]...)
	}
	p.mu.Unlock()
	return nil
}

func maxEntriesFromConfig(config map[string]any) (int, error) {
	raw, ok := config["max_entries"]
	if !ok {
		return DefaultMaxEntries, nil
	}
	f, ok := raw.(float64)
	if !ok || f != float64(int(f)) {
		return 0, fmt.Errorf("max_entries must be an integer")
	}
	max := int(f)
	if max < 1 || max > 1000 {
		return 0, fmt.Errorf("max_entries must be between 1 and 1000")
	}
	return max, nil
}

func (p *Plugin) Routes() map[pluginapi.RouteKey]pluginapi.Handler {
	return map[pluginapi.RouteKey]pluginapi.Handler{
		{Method: http.MethodGet, Path: "/activities"}: p.handleActivities,
	}
}

// handleActivities returns the feed newest first, optionally filtered by the
// workspace header and truncated by a limit query parameter.
func (p *Plugin) handleActivities(_ context.Context, req pluginapi.Request) pluginapi.Response {
	limit := 0
	if raw := req.Query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return pluginapi.Error(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	p.mu.Lock()
	stored := append([]domain.ActivityRecord(nil), p.records...)
	p.mu.Unlock()

	// stored is oldest first; serve newest first
	out := make([]domain.ActivityRecord, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		if req.WorkspaceID != "" && stored[i].WorkspaceID != req.WorkspaceID {
			continue
		}
		out = append(out, stored[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return pluginapi.OK(map[string]any{"activities": out})
}

func (p *Plugin) EventHandlers() map[domain.EventKind]pluginapi.EventHandler {
	handlers := make(map[domain.EventKind]pluginapi.EventHandler, len(feedKinds))
	for _, kind := range feedKinds {
		handlers[kind] = p.record
	}
	return handlers
}

func (p *Plugin) record(_ context.Context, _ pluginapi.Host, event domain.Event) error {
	rec := domain.ActivityRecord{
		Base:        domain.Base{ID: uuid.NewString(), CreatedAt: event.OccurredAt, UpdatedAt: event.OccurredAt},
		WorkspaceID: event.WorkspaceID,
		Kind:        event.Kind,
		Actor:       event.Actor,
		Entity:      event.Entity,
		EntityID:    event.EntityID,
		Message:     message(event),
		OccurredAt:  event.OccurredAt,
	}
	p.mu.Lock()
	p.records = append(p.records, rec)
	if len(p.records) > p.max {
		p.records = append([]domain.ActivityRecord(nil), p.records[len(p.records)-p.max:]...)
	}
	p.mu.Unlock()
	return nil
}

func message(event domain.Event) string {
	subject := event.EntityID
	if title, ok := event.Payload["title"].(string); ok && title != "" {
		subject = title
	} else if name, ok := event.Payload["name"].(string); ok && name != "" {
		subject = name
	}
	actor := event.Actor
	if actor == "" {
		actor = "system"
	}
	return fmt.Sprintf("%s: %s by %s", event.Kind, subject, actor)
}
