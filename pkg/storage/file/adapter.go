package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	skerrors "github.com/porthorian/sessionkit/pkg/errors"
	"github.com/porthorian/sessionkit/pkg/storage"
)

// Adapter persists each item as a file under a directory, one file per item
// name. The closest server-side analogue to the browser local storage the
// session snapshot was designed for.
type Adapter struct {
	mu  sync.Mutex
	dir string
}

var _ storage.StateStore = (*Adapter)(nil)

func NewAdapter(dir string) (*Adapter, error) {
	if dir == "" {
		return nil, errors.New("file storage: directory is required")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("file storage: failed to create directory %q: %w", dir, err)
	}

	return &Adapter{dir: dir}, nil
}

func (a *Adapter) GetItem(ctx context.Context, name string) (string, bool, error) {
	path, err := a.path(name)
	if err != nil {
		return "", false, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, skerrors.Wrap(skerrors.CodeStorageUnavailable, fmt.Sprintf("file storage: failed to read %q", name), err)
	}
	return string(data), true, nil
}

func (a *Adapter) SetItem(ctx context.Context, name string, value string) error {
	path, err := a.path(name)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Write-then-rename so a crash mid-write never leaves a torn item.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0o600); err != nil {
		return skerrors.Wrap(skerrors.CodeStorageUnavailable, fmt.Sprintf("file storage: failed to write %q", name), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return skerrors.Wrap(skerrors.CodeStorageUnavailable, fmt.Sprintf("file storage: failed to replace %q", name), err)
	}
	return nil
}

func (a *Adapter) RemoveItem(ctx context.Context, name string) error {
	path, err := a.path(name)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return skerrors.Wrap(skerrors.CodeStorageUnavailable, fmt.Sprintf("file storage: failed to remove %q", name), err)
	}
	return nil
}

func (a *Adapter) path(name string) (string, error) {
	if name == "" {
		return "", errors.New("file storage: item name is required")
	}
	if strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return "", fmt.Errorf("file storage: invalid item name %q", name)
	}
	return filepath.Join(a.dir, name+".json"), nil
}
