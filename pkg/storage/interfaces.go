package storage

import "context"

// ItemAuthState is the fixed key sanitized session snapshots are persisted
// under. Adapters persist whatever they are handed.
const ItemAuthState = "auth-state"

// StateStore is the durable key-value collaborator sanitized session
// snapshots are persisted to. Implementations must tolerate concurrent use.
// Failures are surfaced as errors; callers treat persistence as best-effort
// and never let a storage failure block an in-memory state transition.
type StateStore interface {
	// GetItem returns the stored value for name, reporting presence
	// explicitly so an empty string can be distinguished from absence.
	GetItem(ctx context.Context, name string) (string, bool, error)

	SetItem(ctx context.Context, name string, value string) error

	// RemoveItem deletes name. Removing an absent item is not an error.
	RemoveItem(ctx context.Context, name string) error
}
