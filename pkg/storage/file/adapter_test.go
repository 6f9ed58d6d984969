package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	skerrors "github.com/porthorian/sessionkit/pkg/errors"
)

func TestAdapterRoundTrip(t *testing.T) {
	adapter, err := NewAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("failed to build adapter: %v", err)
	}
	ctx := context.Background()

	if _, ok, err := adapter.GetItem(ctx, "auth-state"); err != nil || ok {
		t.Fatalf("expected absent item, ok=%v err=%v", ok, err)
	}

	if err := adapter.SetItem(ctx, "auth-state", "payload"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value, ok, err := adapter.GetItem(ctx, "auth-state")
	if err != nil || !ok || value != "payload" {
		t.Fatalf("unexpected read: value=%q ok=%v err=%v", value, ok, err)
	}

	if err := adapter.SetItem(ctx, "auth-state", "replaced"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	value, _, _ = adapter.GetItem(ctx, "auth-state")
	if value != "replaced" {
		t.Fatalf("expected replaced value, got %q", value)
	}

	if err := adapter.RemoveItem(ctx, "auth-state"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, ok, _ := adapter.GetItem(ctx, "auth-state"); ok {
		t.Fatal("expected item removed")
	}
	if err := adapter.RemoveItem(ctx, "auth-state"); err != nil {
		t.Fatalf("remove of absent item failed: %v", err)
	}
}

func TestAdapterRejectsInvalidNames(t *testing.T) {
	adapter, err := NewAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("failed to build adapter: %v", err)
	}
	ctx := context.Background()

	for _, name := range []string{"", "..", "a/b", `a\b`} {
		if err := adapter.SetItem(ctx, name, "x"); err == nil {
			t.Fatalf("expected invalid name %q to be rejected", name)
		}
	}
}

func TestAdapterReportsStorageUnavailable(t *testing.T) {
	dir := t.TempDir()
	adapter, err := NewAdapter(dir)
	if err != nil {
		t.Fatalf("failed to build adapter: %v", err)
	}
	ctx := context.Background()

	// A directory squatting on the item path makes every operation fail.
	if err := os.Mkdir(filepath.Join(dir, "auth-state.json"), 0o700); err != nil {
		t.Fatalf("failed to create blocking directory: %v", err)
	}

	if _, _, err := adapter.GetItem(ctx, "auth-state"); !skerrors.IsStorage(err) {
		t.Fatalf("expected storage_unavailable from get, got %v", err)
	}
	if err := adapter.SetItem(ctx, "auth-state", "payload"); !skerrors.IsStorage(err) {
		t.Fatalf("expected storage_unavailable from set, got %v", err)
	}
}

func TestAdapterRequiresDirectory(t *testing.T) {
	if _, err := NewAdapter(""); err == nil {
		t.Fatal("expected empty directory to be rejected")
	}
}
