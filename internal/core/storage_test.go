package core

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/verifywise-ai/plugin-marketplace-sub002/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	store, err := OpenPersistentStore(StorageOptions{Driver: StorageMemory}, nil)
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateWorkspace(Workspace{Name: "governance"})
		return err
	}); err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestOpenPersistentStoreSQLiteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := OpenPersistentStore(StorageOptions{SQLitePath: path}, nil)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	ss, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected sqlite store for default driver, got %T", store)
	}
	defer func() { _ = ss.DB().Close() }()
	if ss.Path() != path {
		t.Fatalf("unexpected path %q", ss.Path())
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	if _, err := OpenPersistentStore(StorageOptions{Driver: "etcd"}, nil); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestStorageOptionsFromEnv(t *testing.T) {
	t.Setenv("VERIFYWISE_STORAGE_DRIVER", "postgres")
	t.Setenv("VERIFYWISE_POSTGRES_DSN", "postgres://localhost/verifywise")
	opts := StorageOptionsFromEnv()
	if opts.Driver != StoragePostgres || opts.PostgresDSN == "" {
		t.Fatalf("unexpected options %+v", opts)
	}
}
