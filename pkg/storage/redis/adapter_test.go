package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	skerrors "github.com/porthorian/sessionkit/pkg/errors"
)

func newTestAdapter(t *testing.T, namespace string) *Adapter {
	t.Helper()

	server := miniredis.RunT(t)
	adapter, err := NewAdapter(Config{
		Address:   server.Addr(),
		Namespace: namespace,
	})
	if err != nil {
		t.Fatalf("failed to build adapter: %v", err)
	}
	t.Cleanup(func() {
		if err := adapter.Close(); err != nil {
			t.Errorf("failed to close adapter: %v", err)
		}
	})
	return adapter
}

func TestAdapterRoundTrip(t *testing.T) {
	adapter := newTestAdapter(t, "")
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

	if err := adapter.RemoveItem(ctx, "auth-state"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, ok, _ := adapter.GetItem(ctx, "auth-state"); ok {
		t.Fatal("expected item removed")
	}
}

func TestAdapterNamespacesKeys(t *testing.T) {
	adapter := newTestAdapter(t, "sessionkit")
	ctx := context.Background()

	if err := adapter.SetItem(ctx, "auth-state", "payload"); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	if adapter.key("auth-state") != "sessionkit:auth-state" {
		t.Fatalf("unexpected key %q", adapter.key("auth-state"))
	}
	if _, ok, _ := adapter.GetItem(ctx, "auth-state"); !ok {
		t.Fatal("expected namespaced read to hit")
	}
}

func TestAdapterReportsStorageUnavailable(t *testing.T) {
	server := miniredis.RunT(t)
	adapter, err := NewAdapter(Config{Address: server.Addr()})
	if err != nil {
		t.Fatalf("failed to build adapter: %v", err)
	}
	t.Cleanup(func() { _ = adapter.Close() })

	server.Close()

	ctx := context.Background()
	if _, _, err := adapter.GetItem(ctx, "auth-state"); !skerrors.IsStorage(err) {
		t.Fatalf("expected storage_unavailable from get, got %v", err)
	}
	if err := adapter.SetItem(ctx, "auth-state", "payload"); !skerrors.IsStorage(err) {
		t.Fatalf("expected storage_unavailable from set, got %v", err)
	}
}

func TestAdapterRequiresAddress(t *testing.T) {
	if _, err := NewAdapter(Config{}); err == nil {
		t.Fatal("expected missing address to be rejected")
	}
}
