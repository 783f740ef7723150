// Package pluginapi defines the public contract between the host runtime and
// plugins: manifest metadata, the lifecycle interface, route and event handler
// registration, and the capabilities the host grants an installed plugin.
package pluginapi

import (
	"context"
	"io"

	"github.com/rs/zerolog"
	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/domain"
)

// Version is the plugin API contract version advertised by the host.
const Version = "v1"

// Manifest describes a plugin's identity, required permissions, configuration
// schema, and declarative UI contributions.
type Manifest struct {
	Name         string         `json:"name"`
	Version      string         `json:"version"`
	DisplayName  string         `json:"display_name"`
	Description  string         `json:"description"`
	Author       string         `json:"author"`
	Permissions  []string       `json:"permissions"`
	ConfigSchema map[string]any `json:"config_schema,omitempty"`
	UISlots      []UISlot       `json:"ui_slots,omitempty"`
}

// UISlot binds a named host UI mount point to a bundle asset path. The host
// does not interpret assets; it only serves the binding to the frontend.
type UISlot struct {
	Slot  string `json:"slot"`
	Asset string `json:"asset"`
}

// RouteKey identifies one HTTP route contributed by a plugin. Path is relative
// to the plugin's mount prefix and may contain mux-style {variables}.
type RouteKey struct {
	Method string
	Path   string
}

// Handler processes one plugin HTTP request.
type Handler func(ctx context.Context, req Request) Response

// EventHandler processes one domain event delivered to a subscribed plugin.
type EventHandler func(ctx context.Context, host Host, event domain.Event) error

// Plugin is implemented by every installable plugin.
type Plugin interface {
	Manifest() Manifest
	// Install is called once when the plugin is added to a workspace. It may
	// seed records and register rules through the host.
	Install(ctx context.Context, host Host) error
	// Uninstall releases plugin-owned state. Counters and caches owned by the
	// plugin reset here.
	Uninstall(ctx context.Context, host Host) error
	// ValidateConfig checks a configuration payload against the manifest
	// schema without applying it.
	ValidateConfig(config map[string]any) error
	// Configure applies a validated configuration.
	Configure(ctx context.Context, host Host, config map[string]any) error
	Routes() map[RouteKey]Handler
	EventHandlers() map[domain.EventKind]EventHandler
}

// BlobStore is the subset of blob storage capability exposed to plugins.
type BlobStore interface {
	Put(ctx context.Context, key string, payload io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Host grants an installed plugin access to host capabilities.
type Host interface {
	Store() domain.PersistentStore
	Blobs() BlobStore
	// Publish delivers a domain event to all subscribed plugins. Unknown
	// kinds are rejected.
	Publish(ctx context.Context, event domain.Event) error
	RegisterRule(rule domain.Rule)
	Logger() zerolog.Logger
}
