package postgres

import "testing"

func TestNewAdapterRequiresDB(t *testing.T) {
	if _, err := NewAdapter(nil); err == nil {
		t.Fatal("expected nil db to be rejected")
	}
}
