// Package webhookreceiver exposes a signed inbound webhook endpoint that maps
// external security events onto workspace risks. Payloads are authenticated
// with an HMAC shared secret and optionally restricted by source IP.
package webhookreceiver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/verifywise-ai/plugin-marketplace-sub002/internal/webhook"
	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/domain"
	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/pluginapi"
)

// SecurityIssueEvent is the inbound event name this plugin maps to a risk.
const SecurityIssueEvent = "security.issue.created"

// Plugin wraps a webhook.Receiver behind the plugin contract.
type Plugin struct {
	host     pluginapi.Host
	receiver *webhook.Receiver
}

// New constructs the plugin with an unconfigured receiver. The shared secret
// arrives through Configure.
func New() *Plugin {
	return &Plugin{receiver: webhook.NewReceiver("")}
}

func (p *Plugin) Manifest() pluginapi.Manifest {
	return pluginapi.Manifest{
		Name:        "webhook-receiver",
		Version:     "1.0.0",
		DisplayName: "Webhook Receiver",
		Description: "Receive signed webhooks from external security tools and record them as risks.",
		Author:      "VerifyWise",
		Permissions: []string{"risks:write", "events:publish", "network:inbound"},
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"secret":      map[string]any{"type": "string"},
				"allowed_ips": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []string{"secret"},
		},
	}
}

func (p *Plugin) Install(_ context.Context, host pluginapi.Host) error {
	p.host = host
	p.receiver.Handle(SecurityIssueEvent, p.handleSecurityIssue)
	return nil
}

func (p *Plugin) Uninstall(context.Context, pluginapi.Host) error { return nil }

func (p *Plugin) ValidateConfig(config map[string]any) error {
	_, _, err := receiverConfig(config)
	return err
}

func (p *Plugin) Configure(_ context.Context, _ pluginapi.Host, config map[string]any) error {
	secret, allowlist, err := receiverConfig(config)
	if err != nil {
		return err
	}
	p.receiver.Configure(secret, allowlist)
	return nil
}

func receiverConfig(config map[string]any) (string, []string, error) {
	secret, _ := config["secret"].(string)
	if secret == "" {
		return "", nil, fmt.Errorf("secret is required")
	}
	raw, ok := config["allowed_ips"].([]any)
	if !ok {
		return secret, nil, nil
	}
	allowlist := make([]string, 0, len(raw))
	for _, item := range raw {
		ip, ok := item.(string)
		if !ok || ip == "" {
			return "", nil, fmt.Errorf("allowed_ips must be non-empty strings")
		}
		allowlist = append(allowlist, ip)
	}
	return secret, allowlist, nil
}

func (p *Plugin) EventHandlers() map[domain.EventKind]pluginapi.EventHandler { return nil }

func (p *Plugin) Routes() map[pluginapi.RouteKey]pluginapi.Handler {
	return map[pluginapi.RouteKey]pluginapi.Handler{
		{Method: http.MethodPost, Path: "/webhook"}:      p.handleWebhook,
		{Method: http.MethodGet, Path: "/failed"}:        p.handleFailed,
		{Method: http.MethodPost, Path: "/failed/retry"}: p.handleRetryFailed,
	}
}

// handleWebhook runs the delivery through the receiver. Processing failures
// still answer 200 so the sender does not retry-storm; the body carries the
// outcome.
func (p *Plugin) handleWebhook(ctx context.Context, req pluginapi.Request) pluginapi.Response {
	resp := p.receiver.Process(ctx, req.RemoteAddr, req.Header.Get(webhook.SignatureHeader), req.RawBody)
	return pluginapi.OK(resp)
}

func (p *Plugin) handleFailed(context.Context, pluginapi.Request) pluginapi.Response {
	return pluginapi.OK(map[string]any{"failed": p.receiver.Failed()})
}

func (p *Plugin) handleRetryFailed(ctx context.Context, req pluginapi.Request) pluginapi.Response {
	id, _ := req.Body["id"].(string)
	if id == "" {
		return pluginapi.Error(http.StatusBadRequest, "id is required")
	}
	return pluginapi.OK(p.receiver.RetryFailed(ctx, id))
}

// handleSecurityIssue records an external security finding as an open risk.
func (p *Plugin) handleSecurityIssue(ctx context.Context, event webhook.InboundEvent) (webhook.HandlerResult, error) {
	workspaceID, _ := event.Payload["workspace_id"].(string)
	if workspaceID == "" {
		return webhook.HandlerResult{}, fmt.Errorf("workspace_id is required")
	}
	title, _ := event.Payload["title"].(string)
	if title == "" {
		return webhook.HandlerResult{}, fmt.Errorf("title is required")
	}
	level := riskLevel(event.Payload["severity"])

	risk := domain.Risk{
		WorkspaceID: workspaceID,
		Title:       title,
		Category:    "security",
		Likelihood:  level,
		Impact:      level,
	}
	if v, ok := event.Payload["description"].(string); ok && v != "" {
		risk.Description = &v
	}
	if v, ok := event.Payload["source"].(string); ok && v != "" {
		risk.Source = &v
	}

	var created domain.Risk
	_, err := p.host.Store().RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateRisk(risk)
		return err
	})
	if err != nil {
		return webhook.HandlerResult{}, err
	}

	_ = p.host.Publish(ctx, domain.Event{
		Kind:        domain.EventRiskCreated,
		WorkspaceID: workspaceID,
		Entity:      domain.EntityRisk,
		EntityID:    created.ID,
		Payload: map[string]any{
			"title":    created.Title,
			"severity": string(created.Severity),
			"origin":   event.Name,
		},
	})
	return webhook.HandlerResult{Action: "created", EntityID: created.ID}, nil
}

func riskLevel(v any) domain.RiskLevel {
	s, _ := v.(string)
	switch level := domain.RiskLevel(s); level {
	case domain.RiskLevelNegligible, domain.RiskLevelLow, domain.RiskLevelMedium,
		domain.RiskLevelHigh, domain.RiskLevelCritical:
		return level
	default:
		return domain.RiskLevelMedium
	}
}
