// Package datasetupload handles bulk dataset uploads: the file goes to blob
// storage and the dataset and file rows are committed in one transaction.
// Any failure rolls the request back, including removal of the stored blob.
package datasetupload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/domain"
	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/pluginapi"
)

// Plugin implements the dataset upload surface.
type Plugin struct {
	host pluginapi.Host
}

// New constructs the dataset upload plugin.
func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Manifest() pluginapi.Manifest {
	return pluginapi.Manifest{
		Name:        "dataset-upload",
		Version:     "1.0.0",
		DisplayName: "Dataset Upload",
		Description: "Upload model training and evaluation datasets into workspace storage.",
		Author:      "VerifyWise",
		Permissions: []string{"datasets:write", "blobs:write"},
		UISlots: []pluginapi.UISlot{
			{Slot: "datasets.toolbar", Asset: "dist/dataset-upload-form.js"},
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
		{Method: http.MethodPost, Path: "/upload"}:          p.handleUpload,
		{Method: http.MethodGet, Path: "/datasets"}:         p.handleListDatasets,
		{Method: http.MethodGet, Path: "/datasets/{id}"}:    p.handleGetDataset,
		{Method: http.MethodDelete, Path: "/datasets/{id}"}: p.handleDeleteDataset,
	}
}

func (p *Plugin) handleUpload(ctx context.Context, req pluginapi.Request) pluginapi.Response {
	workspaceID := req.WorkspaceID
	if v, ok := req.Body["workspace_id"].(string); ok && v != "" {
		workspaceID = v
	}
	if workspaceID == "" {
		return pluginapi.Error(http.StatusBadRequest, "workspace_id is required")
	}
	if req.File == nil || len(req.File.Content) == 0 {
		return pluginapi.Error(http.StatusBadRequest, "file is required")
	}
	name, _ := req.Body["name"].(string)
	if name == "" {
		name = req.File.Filename
	}

	blobKey := fmt.Sprintf("datasets/%s/%s", uuid.NewString(), req.File.Filename)
	sum := sha256.Sum256(req.File.Content)
	checksum := hex.EncodeToString(sum[:])

	if err := p.host.Blobs().Put(ctx, blobKey, bytes.NewReader(req.File.Content), req.File.Size, req.File.ContentType); err != nil {
		return pluginapi.Error(http.StatusInternalServerError, "store file: "+err.Error())
	}

	var dataset domain.Dataset
	var file domain.DatasetFile
	_, err := p.host.Store().RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		dataset, err = tx.CreateDataset(domain.Dataset{
			WorkspaceID: workspaceID,
			Name:        name,
			Tags:        parseTags(req.Body["tags"]),
		})
		if err != nil {
			return err
		}
		if v, ok := req.Body["description"].(string); ok && v != "" {
			dataset, err = tx.UpdateDataset(dataset.ID, func(d *domain.Dataset) error {
				d.Description = &v
				return nil
			})
			if err != nil {
				return err
			}
		}
		file, err = tx.CreateDatasetFile(domain.DatasetFile{
			DatasetID:   dataset.ID,
			Filename:    req.File.Filename,
			ContentType: req.File.ContentType,
			Size:        req.File.Size,
			BlobKey:     blobKey,
			Checksum:    checksum,
			UploadedBy:  req.UserID,
		})
		return err
	})
	if err != nil {
		// roll the blob back so a failed request leaves no trace
		_ = p.host.Blobs().Delete(ctx, blobKey)
		return pluginapi.Error(http.StatusBadRequest, err.Error())
	}

	_ = p.host.Publish(ctx, domain.Event{
		Kind:        domain.EventDatasetUploaded,
		WorkspaceID: workspaceID,
		Entity:      domain.EntityDataset,
		EntityID:    dataset.ID,
		Actor:       req.UserID,
		Payload:     map[string]any{"name": dataset.Name, "filename": file.Filename, "size": file.Size},
	})
	return pluginapi.Created(map[string]any{"dataset": dataset, "file": file})
}

func (p *Plugin) handleListDatasets(_ context.Context, req pluginapi.Request) pluginapi.Response {
	datasets := p.host.Store().ListDatasets()
	if req.WorkspaceID != "" {
		filtered := datasets[:0]
		for _, d := range datasets {
			if d.WorkspaceID == req.WorkspaceID {
				filtered = append(filtered, d)
			}
		}
		datasets = filtered
	}
	return pluginapi.OK(map[string]any{"datasets": datasets})
}

func (p *Plugin) handleGetDataset(_ context.Context, req pluginapi.Request) pluginapi.Response {
	dataset, ok := p.host.Store().GetDataset(req.Params["id"])
	if !ok {
		return pluginapi.Error(http.StatusNotFound, "dataset not found")
	}
	var files []domain.DatasetFile
	for _, f := range p.host.Store().ListDatasetFiles() {
		if f.DatasetID == dataset.ID {
			files = append(files, f)
		}
	}
	return pluginapi.OK(map[string]any{"dataset": dataset, "files": files})
}

// handleDeleteDataset removes file rows, the dataset row and the stored
// blobs. Store rows go first so a blob cleanup failure cannot strand rows.
func (p *Plugin) handleDeleteDataset(ctx context.Context, req pluginapi.Request) pluginapi.Response {
	id := req.Params["id"]
	dataset, ok := p.host.Store().GetDataset(id)
	if !ok {
		return pluginapi.Error(http.StatusNotFound, "dataset not found")
	}
	var blobKeys []string
	for _, f := range p.host.Store().ListDatasetFiles() {
		if f.DatasetID == id {
			blobKeys = append(blobKeys, f.BlobKey)
		}
	}
	_, err := p.host.Store().RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, f := range tx.Snapshot().ListDatasetFiles() {
			if f.DatasetID != id {
				continue
			}
			if err := tx.DeleteDatasetFile(f.ID); err != nil {
				return err
			}
		}
		return tx.DeleteDataset(id)
	})
	if err != nil {
		return pluginapi.Error(http.StatusBadRequest, err.Error())
	}
	for _, key := range blobKeys {
		if err := p.host.Blobs().Delete(ctx, key); err != nil {
			logger := p.host.Logger()
			logger.Warn().Str("key", key).Err(err).Msg("orphan blob left behind")
		}
	}
	_ = p.host.Publish(ctx, domain.Event{
		Kind:        domain.EventDatasetDeleted,
		WorkspaceID: dataset.WorkspaceID,
		Entity:      domain.EntityDataset,
		EntityID:    dataset.ID,
		Actor:       req.UserID,
	})
	return pluginapi.OK(map[string]any{"deleted": id})
}

func parseTags(v any) []string {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if t := strings.TrimSpace(part); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
