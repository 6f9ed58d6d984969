package memory

import (
	"context"
	"sync"

	"github.com/porthorian/sessionkit/pkg/storage"
)

// Adapter keeps items in process memory. Useful as a default backend and in
// tests; contents do not survive a restart.
type Adapter struct {
	mu    sync.RWMutex
	items map[string]string
}

var _ storage.StateStore = (*Adapter)(nil)

func NewAdapter() *Adapter {
	return &Adapter{
		items: map[string]string{},
	}
}

func (a *Adapter) GetItem(ctx context.Context, name string) (string, bool, error) {
	a.mu.RLock()
	value, ok := a.items[name]
	a.mu.RUnlock()
	return value, ok, nil
}

func (a *Adapter) SetItem(ctx context.Context, name string, value string) error {
	a.mu.Lock()
	a.items[name] = value
	a.mu.Unlock()
	return nil
}

func (a *Adapter) RemoveItem(ctx context.Context, name string) error {
	a.mu.Lock()
	delete(a.items, name)
	a.mu.Unlock()
	return nil
}
