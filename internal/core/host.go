package core

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/verifywise-ai/plugin-marketplace-sub002/internal/blob"
	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/domain"
	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/pluginapi"
)

// Host returns the capability surface granted to plugins.
func (s *Service) Host() pluginapi.Host {
	return pluginHost{svc: s}
}

type pluginHost struct {
	svc *Service
}

func (h pluginHost) Store() domain.PersistentStore {
	return h.svc.store
}

func (h pluginHost) Blobs() pluginapi.BlobStore {
	return hostBlobs{store: h.svc.blobs}
}

func (h pluginHost) Publish(ctx context.Context, event domain.Event) error {
	return h.svc.Publish(ctx, event)
}

func (h pluginHost) RegisterRule(rule domain.Rule) {
	h.svc.engine.Register(rule)
}

func (h pluginHost) Logger() zerolog.Logger {
	return h.svc.logger
}

// hostBlobs narrows the blob.Store surface to the plugin contract.
type hostBlobs struct {
	store blob.Store
}

func (b hostBlobs) Put(ctx context.Context, key string, payload io.Reader, size int64, contentType string) error {
	_, err := b.store.Put(ctx, key, payload, blob.PutOptions{ContentType: contentType})
	return err
}

func (b hostBlobs) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	_, rc, err := b.store.Get(ctx, key)
	return rc, err
}

func (b hostBlobs) Delete(ctx context.Context, key string) error {
	deleted, err := b.store.Delete(ctx, key)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: %s", blob.ErrNotFound, key)
	}
	return nil
}
