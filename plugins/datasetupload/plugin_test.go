package datasetupload

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/verifywise-ai/plugin-marketplace-sub002/internal/core"
	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/domain"
	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/pluginapi"
)

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

func uploadReq(ws string, body map[string]any) pluginapi.Request {
	content := []byte("col_a,col_b\n1,2\n")
	return pluginapi.Request{
		WorkspaceID: ws,
		UserID:      "analyst-1",
		Body:        body,
		File: &pluginapi.UploadedFile{
			Filename:    "training.csv",
			ContentType: "text/csv",
			Size:        int64(len(content)),
			Content:     content,
		},
	}
}

func TestUploadCommitsDatasetFileAndBlob(t *testing.T) {
	plugin, svc, ws := setup(t)

	resp := plugin.handleUpload(context.Background(), uploadReq(ws.ID, map[string]any{
		"name":        "training-set",
		"description": "Q1 training data",
		"tags":        "training, tabular",
	}))
	if resp.Status != http.StatusCreated {
		t.Fatalf("expected 201, got %d %v", resp.Status, resp.Body)
	}

	datasets := svc.Store().ListDatasets()
	if len(datasets) != 1 || datasets[0].Name != "training-set" {
		t.Fatalf("unexpected datasets %+v", datasets)
	}
	if len(datasets[0].Tags) != 2 || datasets[0].Tags[0] != "training" {
		t.Fatalf("unexpected tags %v", datasets[0].Tags)
	}
	files := svc.Store().ListDatasetFiles()
	if len(files) != 1 || files[0].Checksum == "" || files[0].UploadedBy != "analyst-1" {
		t.Fatalf("unexpected files %+v", files)
	}
	if len(datasets[0].FileIDs) != 1 {
		t.Fatalf("expected derived file id list")
	}

	rc, err := svc.Host().Blobs().Get(context.Background(), files[0].BlobKey)
	if err != nil {
		t.Fatalf("blob get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	content, err := io.ReadAll(rc)
	if err != nil || len(content) == 0 {
		t.Fatalf("expected stored blob content, err %v", err)
	}
}

func TestUploadRollsBackBlobOnStoreFailure(t *testing.T) {
	plugin, svc, _ := setup(t)

	// unknown workspace rejects the transaction after the blob was written
	resp := plugin.handleUpload(context.Background(), uploadReq("missing", map[string]any{"name": "x"}))
	if resp.Status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Status)
	}
	if len(svc.Store().ListDatasets()) != 0 || len(svc.Store().ListDatasetFiles()) != 0 {
		t.Fatalf("expected no rows persisted")
	}
	infos, err := svc.Blobs().List(context.Background(), "datasets/")
	if err != nil {
		t.Fatalf("list blobs: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("expected blob cleanup, found %v", infos)
	}
}

func TestUploadValidation(t *testing.T) {
	plugin, _, ws := setup(t)

	resp := plugin.handleUpload(context.Background(), pluginapi.Request{WorkspaceID: ws.ID})
	if resp.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 without file, got %d", resp.Status)
	}
	req := uploadReq("", nil)
	resp = plugin.handleUpload(context.Background(), req)
	if resp.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 without workspace, got %d", resp.Status)
	}
}

func TestGetListAndDeleteDataset(t *testing.T) {
	plugin, svc, ws := setup(t)
	resp := plugin.handleUpload(context.Background(), uploadReq(ws.ID, map[string]any{"name": "to-delete"}))
	if resp.Status != http.StatusCreated {
		t.Fatalf("upload: %v", resp.Body)
	}
	dataset := svc.Store().ListDatasets()[0]
	blobKey := svc.Store().ListDatasetFiles()[0].BlobKey

	resp = plugin.handleListDatasets(context.Background(), pluginapi.Request{WorkspaceID: ws.ID})
	if resp.Status != http.StatusOK {
		t.Fatalf("list: %d", resp.Status)
	}
	resp = plugin.handleGetDataset(context.Background(), pluginapi.Request{Params: map[string]string{"id": dataset.ID}})
	if resp.Status != http.StatusOK {
		t.Fatalf("get: %d", resp.Status)
	}
	body := resp.Body.(map[string]any)
	if files := body["files"].([]domain.DatasetFile); len(files) != 1 {
		t.Fatalf("expected 1 file, got %v", files)
	}

	resp = plugin.handleDeleteDataset(context.Background(), pluginapi.Request{Params: map[string]string{"id": dataset.ID}})
	if resp.Status != http.StatusOK {
		t.Fatalf("delete: %d %v", resp.Status, resp.Body)
	}
	if len(svc.Store().ListDatasets()) != 0 || len(svc.Store().ListDatasetFiles()) != 0 {
		t.Fatalf("expected rows removed")
	}
	if _, err := svc.Host().Blobs().Get(context.Background(), blobKey); err == nil {
		t.Fatalf("expected blob removed")
	}

	resp = plugin.handleDeleteDataset(context.Background(), pluginapi.Request{Params: map[string]string{"id": "missing"}})
	if resp.Status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Status)
	}
}
