package riskimport

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/verifywise-ai/plugin-marketplace-sub002/internal/core"
	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/domain"
	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/pluginapi"
)

const sampleCSV = `title,description,category,likelihood,impact,owner,mitigation
Model drift,Accuracy degrades,model,medium,high,ml-team,Re-evaluate monthly
Prompt injection,Untrusted input reaches the model,security,high,critical,sec-team,Input sanitization
`

func setup(t *testing.T) (*Plugin, *core.Service, domain.Workspace) {
	t.Helper()
	svc := core.NewInMemoryService(nil)
	plugin := New()
	if _, err := svc.InstallPlugin(context.Background(), plugin); err != nil {
		t.Fatalf("install: %v", err)
	}
	ws, _, err := svc.CreateWorkspace(context.Background(), domain.Workspace{Name: "governance"})
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	return plugin, svc, ws
}

func uploadReq(ws string, csvBody string) pluginapi.Request {
	return pluginapi.Request{
		WorkspaceID: ws,
		File: &pluginapi.UploadedFile{
			Filename:    "risks.csv",
			ContentType: "text/csv",
			Size:        int64(len(csvBody)),
			Content:     []byte(csvBody),
		},
	}
}

func TestImportCreatesAllRisks(t *testing.T) {
	plugin, svc, ws := setup(t)

	resp := plugin.handleImport(context.Background(), uploadReq(ws.ID, sampleCSV))
	if resp.Status != http.StatusCreated {
		t.Fatalf("expected 201, got %d %v", resp.Status, resp.Body)
	}
	risks := svc.Store().ListRisks()
	if len(risks) != 2 {
		t.Fatalf("expected 2 risks, got %d", len(risks))
	}
	bySeverity := map[domain.RiskLevel]int{}
	for _, r := range risks {
		bySeverity[r.Severity]++
		if r.Status != domain.RiskStatusOpen {
			t.Fatalf("expected open status, got %s", r.Status)
		}
	}
	// severity derives from the higher of likelihood and impact
	if bySeverity[domain.RiskLevelHigh] != 1 || bySeverity[domain.RiskLevelCritical] != 1 {
		t.Fatalf("unexpected severities %v", bySeverity)
	}
}

func TestImportAllRowsOrNone(t *testing.T) {
	plugin, svc, ws := setup(t)

	bad := `title,likelihood,impact
Good row,low,medium
,low,medium
Another good row,high,extreme
`
	resp := plugin.handleImport(context.Background(), uploadReq(ws.ID, bad))
	if resp.Status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Status)
	}
	body := resp.Body.(map[string]any)
	errs := body["errors"].([]string)
	if len(errs) != 2 {
		t.Fatalf("expected 2 row errors, got %v", errs)
	}
	if !strings.Contains(errs[0], "row 3") || !strings.Contains(errs[1], "row 4") {
		t.Fatalf("expected row numbers in errors, got %v", errs)
	}
	if len(svc.Store().ListRisks()) != 0 {
		t.Fatalf("expected nothing persisted")
	}
}

func TestImportRequiresColumnsAndWorkspace(t *testing.T) {
	plugin, _, ws := setup(t)

	resp := plugin.handleImport(context.Background(), uploadReq(ws.ID, "name,notes\nx,y\n"))
	if resp.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing columns, got %d", resp.Status)
	}

	resp = plugin.handleImport(context.Background(), uploadReq("", sampleCSV))
	if resp.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 without workspace, got %d", resp.Status)
	}

	resp = plugin.handleImport(context.Background(), pluginapi.Request{WorkspaceID: ws.ID})
	if resp.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 without content, got %d", resp.Status)
	}

	resp = plugin.handleImport(context.Background(), uploadReq(ws.ID, "title,likelihood,impact\n"))
	if resp.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty file, got %d", resp.Status)
	}
}

func TestImportAcceptsRawBody(t *testing.T) {
	plugin, svc, ws := setup(t)
	resp := plugin.handleImport(context.Background(), pluginapi.Request{
		WorkspaceID: ws.ID,
		RawBody:     []byte(sampleCSV),
	})
	if resp.Status != http.StatusCreated {
		t.Fatalf("expected 201, got %d %v", resp.Status, resp.Body)
	}
	if len(svc.Store().ListRisks()) != 2 {
		t.Fatalf("expected 2 risks")
	}
}

func TestTemplateRoute(t *testing.T) {
	plugin := New()
	resp := plugin.handleTemplate(context.Background(), pluginapi.Request{})
	if resp.Status != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	body := resp.Body.(map[string]any)
	header := body["header"].([]string)
	if len(header) != 7 || header[0] != "title" {
		t.Fatalf("unexpected header %v", header)
	}
}
