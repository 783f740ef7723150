package domain

import "time"

// EventKind names a domain event published by the host after a committed
// mutation. The set is closed: plugins may only subscribe to kinds listed
// here, and registration of an unknown kind is rejected.
type EventKind string

// Domain event kinds emitted by the host.
const (
	EventWorkspaceCreated   EventKind = "workspace.created"
	EventFrameworkInstalled EventKind = "framework.installed"
	EventControlUpdated     EventKind = "control.updated"
	EventRiskCreated        EventKind = "risk.created"
	EventRiskUpdated        EventKind = "risk.updated"
	EventRiskDeleted        EventKind = "risk.deleted"
	EventDatasetUploaded    EventKind = "dataset.uploaded"
	EventDatasetDeleted     EventKind = "dataset.deleted"
	EventPluginInstalled    EventKind = "plugin.installed"
	EventPluginUninstalled  EventKind = "plugin.uninstalled"
)

var knownEvents = map[EventKind]struct{}{
	EventWorkspaceCreated:   {},
	EventFrameworkInstalled: {},
	EventControlUpdated:     {},
	EventRiskCreated:        {},
	EventRiskUpdated:        {},
	EventRiskDeleted:        {},
	EventDatasetUploaded:    {},
	EventDatasetDeleted:     {},
	EventPluginInstalled:    {},
	EventPluginUninstalled:  {},
}

// Known reports whether k is a member of the closed event kind set.
func (k EventKind) Known() bool {
	_, ok := knownEvents[k]
	return ok
}

// Event is the payload delivered to subscribed plugin event handlers.
type Event struct {
	Kind        EventKind      `json:"kind"`
	WorkspaceID string         `json:"workspace_id"`
	Entity      EntityType     `json:"entity"`
	EntityID    string         `json:"entity_id"`
	Actor       string         `json:"actor"`
	Payload     map[string]any `json:"payload,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}
