package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	if store.Driver() != DriverMemory {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
	if _, err := store.Put(ctx, "k1", bytes.NewReader([]byte("abc")), PutOptions{ContentType: "text/plain"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "k1", bytes.NewReader([]byte("abc")), PutOptions{}); err == nil {
		t.Fatalf("expected duplicate rejection")
	}
	info, rc, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "abc" || info.ContentType != "text/plain" {
		t.Fatalf("unexpected blob %q %+v", data, info)
	}
	if _, err := store.Head(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	infos, err := store.List(ctx, "k")
	if err != nil || len(infos) != 1 {
		t.Fatalf("list: %v %d", err, len(infos))
	}
	if _, err := store.PresignURL(ctx, "k1", SignedURLOptions{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected unsupported presign, got %v", err)
	}
	existed, err := store.Delete(ctx, "k1")
	if err != nil || !existed {
		t.Fatalf("delete: %v %v", err, existed)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	if s, err := Open(ctx, Options{Driver: "memory"}); err != nil || s.Driver() != DriverMemory {
		t.Fatalf("memory open: %v", err)
	}
	if s, err := Open(ctx, Options{Driver: "fs", Dir: t.TempDir()}); err != nil || s.Driver() != DriverFilesystem {
		t.Fatalf("fs open: %v", err)
	}
	if _, err := Open(ctx, Options{Driver: "bogus"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
