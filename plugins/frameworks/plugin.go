// Package frameworks bundles compliance framework templates (HIPAA, SOC 2,
// NIST CSF, ALTAI) and installs a chosen template into a workspace as a
// framework with its controls, in a single transaction.
package frameworks

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/domain"
	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/pluginapi"
)

//go:embed templates/*.json
var templateFS embed.FS

// Template is one bundled compliance framework manifest.
type Template struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Description string            `json:"description"`
	Controls    []TemplateControl `json:"controls"`
}

// TemplateControl is one control definition inside a template.
type TemplateControl struct {
	Code        string `json:"code"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Plugin serves the bundled templates.
type Plugin struct {
	host      pluginapi.Host
	templates map[string]Template
}

// New loads the embedded templates.
func New() (*Plugin, error) {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, err
	}
	templates := make(map[string]Template, len(entries))
	for _, entry := range entries {
		raw, err := templateFS.ReadFile("templates/" + entry.Name())
		if err != nil {
			return nil, err
		}
		var tpl Template
		if err := json.Unmarshal(raw, &tpl); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", entry.Name(), err)
		}
		if tpl.ID == "" || len(tpl.Controls) == 0 {
			return nil, fmt.Errorf("template %s missing id or controls", entry.Name())
		}
		templates[tpl.ID] = tpl
	}
	return &Plugin{templates: templates}, nil
}

// MustNew is New for wiring in main, panicking on a broken bundle.
func MustNew() *Plugin {
	p, err := New()
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Plugin) Manifest() pluginapi.Manifest {
	return pluginapi.Manifest{
		Name:        "compliance-frameworks",
		Version:     "1.0.0",
		DisplayName: "Compliance Frameworks",
		Description: "Install HIPAA, SOC 2, NIST CSF or ALTAI framework templates into a workspace.",
		Author:      "VerifyWise",
		Permissions: []string{"frameworks:write", "controls:write"},
		UISlots: []pluginapi.UISlot{
			{Slot: "workspace.sidebar", Asset: "dist/frameworks-panel.js"},
		},
	}
}

func (p *Plugin) Install(_ context.Context, host pluginapi.Host) error {
	p.host = host
	return nil
}

func (p *Plugin) Uninstall(context.Context, pluginapi.Host) error {
	return nil
}

func (p *Plugin) ValidateConfig(map[string]any) error { return nil }

func (p *Plugin) Configure(context.Context, pluginapi.Host, map[string]any) error { return nil }

func (p *Plugin) EventHandlers() map[domain.EventKind]pluginapi.EventHandler { return nil }

func (p *Plugin) Routes() map[pluginapi.RouteKey]pluginapi.Handler {
	return map[pluginapi.RouteKey]pluginapi.Handler{
		{Method: http.MethodGet, Path: "/templates"}:               p.handleListTemplates,
		{Method: http.MethodGet, Path: "/templates/{id}"}:          p.handleGetTemplate,
		{Method: http.MethodPost, Path: "/templates/{id}/install"}: p.handleInstallTemplate,
	}
}

func (p *Plugin) handleListTemplates(_ context.Context, _ pluginapi.Request) pluginapi.Response {
	out := make([]Template, 0, len(p.templates))
	for _, tpl := range p.templates {
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return pluginapi.OK(map[string]any{"templates": out})
}

func (p *Plugin) handleGetTemplate(_ context.Context, req pluginapi.Request) pluginapi.Response {
	tpl, ok := p.templates[req.Params["id"]]
	if !ok {
		return pluginapi.Error(http.StatusNotFound, "unknown template "+req.Params["id"])
	}
	return pluginapi.OK(tpl)
}

// handleInstallTemplate creates the framework and all its controls in one
// transaction; a failure on any control leaves nothing behind.
func (p *Plugin) handleInstallTemplate(ctx context.Context, req pluginapi.Request) pluginapi.Response {
	tpl, ok := p.templates[req.Params["id"]]
	if !ok {
		return pluginapi.Error(http.StatusNotFound, "unknown template "+req.Params["id"])
	}
	workspaceID := req.WorkspaceID
	if v, ok := req.Body["workspace_id"].(string); ok && v != "" {
		workspaceID = v
	}
	if workspaceID == "" {
		return pluginapi.Error(http.StatusBadRequest, "workspace_id is required")
	}

	var framework domain.Framework
	_, err := p.host.Store().RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		framework, err = tx.CreateFramework(domain.Framework{
			WorkspaceID: workspaceID,
			TemplateID:  tpl.ID,
			Name:        tpl.Name,
			Version:     tpl.Version,
			Description: strPtr(tpl.Description),
		})
		if err != nil {
			return err
		}
		for _, control := range tpl.Controls {
			if _, err := tx.CreateControl(domain.Control{
				FrameworkID: framework.ID,
				Code:        control.Code,
				Title:       control.Title,
				Description: strPtr(control.Description),
			}); err != nil {
				return fmt.Errorf("create control %s: %w", control.Code, err)
			}
		}
		return nil
	})
	if err != nil {
		return pluginapi.Error(http.StatusBadRequest, err.Error())
	}

	_ = p.host.Publish(ctx, domain.Event{
		Kind:        domain.EventFrameworkInstalled,
		WorkspaceID: workspaceID,
		Entity:      domain.EntityFramework,
		EntityID:    framework.ID,
		Actor:       req.UserID,
		Payload:     map[string]any{"template": tpl.ID, "controls": len(tpl.Controls)},
	})

	stored, ok := p.host.Store().GetFramework(framework.ID)
	if !ok {
		stored = framework
	}
	return pluginapi.Created(map[string]any{"framework": stored})
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
