package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	skerrors "github.com/porthorian/sessionkit/pkg/errors"
	"github.com/porthorian/sessionkit/pkg/storage"
)

type Config struct {
	Address     string
	Username    string
	Password    string
	Database    int
	Namespace   string
	DialTimeout time.Duration
}

// Adapter persists items in redis under a namespaced key. Items carry no
// expiration; the session manager removes them explicitly on logout.
type Adapter struct {
	client    *redis.Client
	namespace string
}

var _ storage.StateStore = (*Adapter)(nil)

func NewAdapter(config Config) (*Adapter, error) {
	if config.Address == "" {
		return nil, errors.New("redis storage: address is required")
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        config.Address,
		Username:    config.Username,
		Password:    config.Password,
		DB:          config.Database,
		DialTimeout: config.DialTimeout,
	})

	return &Adapter{
		client:    client,
		namespace: config.Namespace,
	}, nil
}

func (a *Adapter) GetItem(ctx context.Context, name string) (string, bool, error) {
	value, err := a.client.Get(ctx, a.key(name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, skerrors.Wrap(skerrors.CodeStorageUnavailable, fmt.Sprintf("redis storage: failed to get item %q", name), err)
	}
	return value, true, nil
}

func (a *Adapter) SetItem(ctx context.Context, name string, value string) error {
	if err := a.client.Set(ctx, a.key(name), value, 0).Err(); err != nil {
		return skerrors.Wrap(skerrors.CodeStorageUnavailable, fmt.Sprintf("redis storage: failed to set item %q", name), err)
	}
	return nil
}

func (a *Adapter) RemoveItem(ctx context.Context, name string) error {
	if err := a.client.Del(ctx, a.key(name)).Err(); err != nil {
		return skerrors.Wrap(skerrors.CodeStorageUnavailable, fmt.Sprintf("redis storage: failed to remove item %q", name), err)
	}
	return nil
}

func (a *Adapter) Close() error {
	return a.client.Close()
}

func (a *Adapter) key(name string) string {
	if a.namespace == "" {
		return name
	}
	return a.namespace + ":" + name
}
