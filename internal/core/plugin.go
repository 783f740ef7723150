package core

import (
	"time"

	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/pluginapi"
)

// PluginMetadata stores metadata describing an installed plugin.
type PluginMetadata struct {
	Name        string             `json:"name"`
	Version     string             `json:"version"`
	DisplayName string             `json:"display_name,omitempty"`
	Manifest    pluginapi.Manifest `json:"manifest"`
	InstalledAt time.Time          `json:"installed_at"`
}
