// Package riskimport imports risks from an uploaded CSV spreadsheet. Rows
// are validated first and the whole file is committed in one transaction:
// any invalid row rejects the entire import.
package riskimport

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/domain"
	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/pluginapi"
)

var csvHeader = []string{"title", "description", "category", "likelihood", "impact", "owner", "mitigation"}

var riskLevels = map[string]domain.RiskLevel{
	"negligible": domain.RiskLevelNegligible,
	"low":        domain.RiskLevelLow,
	"medium":     domain.RiskLevelMedium,
	"high":       domain.RiskLevelHigh,
	"critical":   domain.RiskLevelCritical,
}

// Plugin implements the spreadsheet risk importer.
type Plugin struct {
	host pluginapi.Host
}

// New constructs the risk import plugin.
func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Manifest() pluginapi.Manifest {
	return pluginapi.Manifest{
		Name:        "risk-import",
		Version:     "1.0.0",
		DisplayName: "Risk Import",
		Description: "Bulk-import risks from a CSV spreadsheet.",
		Author:      "VerifyWise",
		Permissions: []string{"risks:write"},
		UISlots: []pluginapi.UISlot{
			{Slot: "risks.toolbar", Asset: "dist/risk-import-button.js"},
		},
	}
}

func (p *Plugin) Install(_ context.Context, host pluginapi.Host) error {
	p.host = host
	return nil
}

func (p *Plugin) Uninstall(context.Context, pluginapi.Host) error { return nil }

func (p *Plugin) ValidateConfig(map[string]any) error { return nil }

func (p *Plugin) Configure(context.Context, pluginapi.Host, map[string]any) error { return nil }

func (p *Plugin) EventHandlers() map[domain.EventKind]pluginapi.EventHandler { return nil }

func (p *Plugin) Routes() map[pluginapi.RouteKey]pluginapi.Handler {
	return map[pluginapi.RouteKey]pluginapi.Handler{
		{Method: http.MethodGet, Path: "/template"}: p.handleTemplate,
		{Method: http.MethodPost, Path: "/import"}:  p.handleImport,
	}
}

// handleTemplate returns the expected CSV header so users can download a
// starting sheet.
func (p *Plugin) handleTemplate(context.Context, pluginapi.Request) pluginapi.Response {
	return pluginapi.OK(map[string]any{
		"header":  csvHeader,
		"example": []string{"Model drift", "Accuracy degrades over time", "model", "medium", "high", "ml-team", "Scheduled re-evaluation"},
	})
}

type parsedRow struct {
	line int
	risk domain.Risk
}

func (p *Plugin) handleImport(ctx context.Context, req pluginapi.Request) pluginapi.Response {
	workspaceID := req.WorkspaceID
	if v, ok := req.Body["workspace_id"].(string); ok && v != "" {
		workspaceID = v
	}
	if workspaceID == "" {
		return pluginapi.Error(http.StatusBadRequest, "workspace_id is required")
	}

	var raw []byte
	switch {
	case req.File != nil:
		raw = req.File.Content
	case len(req.RawBody) > 0:
		raw = req.RawBody
	default:
		return pluginapi.Error(http.StatusBadRequest, "no CSV content provided")
	}

	rows, errs := parseCSV(raw, workspaceID)
	if len(errs) > 0 {
		return pluginapi.Response{Status: http.StatusBadRequest, Body: map[string]any{
			"error":  "validation failed",
			"errors": errs,
		}}
	}
	if len(rows) == 0 {
		return pluginapi.Error(http.StatusBadRequest, "no data rows in file")
	}

	created := make([]domain.Risk, 0, len(rows))
	_, err := p.host.Store().RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, row := range rows {
			risk, err := tx.CreateRisk(row.risk)
			if err != nil {
				return fmt.Errorf("row %d: %w", row.line, err)
			}
			created = append(created, risk)
		}
		return nil
	})
	if err != nil {
		return pluginapi.Error(http.StatusBadRequest, err.Error())
	}

	for _, risk := range created {
		_ = p.host.Publish(ctx, domain.Event{
			Kind:        domain.EventRiskCreated,
			WorkspaceID: workspaceID,
			Entity:      domain.EntityRisk,
			EntityID:    risk.ID,
			Actor:       req.UserID,
			Payload:     map[string]any{"title": risk.Title, "severity": string(risk.Severity)},
		})
	}
	return pluginapi.Created(map[string]any{"imported": len(created), "risks": created})
}

// parseCSV validates every row and reports all problems at once; a single
// bad row fails the whole file.
func parseCSV(raw []byte, workspaceID string) ([]parsedRow, []string) {
	reader := csv.NewReader(bytes.NewReader(raw))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, []string{"unreadable CSV: " + err.Error()}
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"title", "likelihood", "impact"} {
		if _, ok := cols[required]; !ok {
			return nil, []string{fmt.Sprintf("missing required column %q", required)}
		}
	}

	field := func(record []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var rows []parsedRow
	var errs []string
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			errs = append(errs, fmt.Sprintf("row %d: %v", line, err))
			continue
		}

		title := field(record, "title")
		if title == "" {
			errs = append(errs, fmt.Sprintf("row %d: title is required", line))
			continue
		}
		likelihood, ok := riskLevels[strings.ToLower(field(record, "likelihood"))]
		if !ok {
			errs = append(errs, fmt.Sprintf("row %d: invalid likelihood %q", line, field(record, "likelihood")))
			continue
		}
		impact, ok := riskLevels[strings.ToLower(field(record, "impact"))]
		if !ok {
			errs = append(errs, fmt.Sprintf("row %d: invalid impact %q", line, field(record, "impact")))
			continue
		}

		risk := domain.Risk{
			WorkspaceID: workspaceID,
			Title:       title,
			Category:    field(record, "category"),
			Likelihood:  likelihood,
			Impact:      impact,
		}
		if v := field(record, "description"); v != "" {
			risk.Description = &v
		}
		if v := field(record, "owner"); v != "" {
			risk.Owner = &v
		}
		if v := field(record, "mitigation"); v != "" {
			risk.Mitigation = &v
		}
		rows = append(rows, parsedRow{line: line, risk: risk})
	}
	return rows, errs
}
