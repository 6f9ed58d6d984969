package sessionkit

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/porthorian/sessionkit/pkg/clock"
	"github.com/porthorian/sessionkit/pkg/scheduler"
	filestorage "github.com/porthorian/sessionkit/pkg/storage/file"
	memorystorage "github.com/porthorian/sessionkit/pkg/storage/memory"
	postgresstorage "github.com/porthorian/sessionkit/pkg/storage/postgres"
	redisstorage "github.com/porthorian/sessionkit/pkg/storage/redis"
)

type StorageBackend string

const (
	StorageBackendNone     StorageBackend = "none"
	StorageBackendMemory   StorageBackend = "memory"
	StorageBackendFile     StorageBackend = "file"
	StorageBackendPostgres StorageBackend = "postgres"
	StorageBackendRedis    StorageBackend = "redis"
)

type RuntimeConfig struct {
	Storage StorageConfig
}

type StorageConfig struct {
	Backend  StorageBackend
	File     FileStorageConfig
	Postgres PostgresConfig
	Redis    RedisStorageConfig
}

type FileStorageConfig struct {
	Directory string
}

type PostgresConfig struct {
	DriverName      string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	OpenDB          func(driverName string, dsn string) (*sql.DB, error)
}

type RedisStorageConfig struct {
	Address     string
	Username    string
	Password    string
	Database    int
	Namespace   string
	DialTimeout time.Duration
}

func (c Config) initialize(ctx context.Context) (func() error, Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	config := c
	config.Logger = resolveLogger(config.Logger)
	if config.Clock == nil {
		config.Clock = clock.System()
	}
	if config.Scheduler == nil {
		config.Scheduler = scheduler.System()
	}

	closeStorage, config, err := initializeStorage(ctx, config)
	if err != nil {
		return nil, Config{}, err
	}

	return closeStorage, config, nil
}

func initializeStorage(ctx context.Context, config Config) (func() error, Config, error) {
	if config.StateStore != nil {
		return noopCloser, config, nil
	}

	backend := config.Runtime.Storage.Backend
	if backend == "" {
		backend = StorageBackendNone
	}

	switch backend {
	case StorageBackendNone:
		return noopCloser, config, nil
	case StorageBackendMemory:
		config.StateStore = memorystorage.NewAdapter()
		config.Logger.V(1).Info("initialized memory storage backend")
		return noopCloser, config, nil
	case StorageBackendFile:
		return initializeFileStorage(config)
	case StorageBackendPostgres:
		return initializePostgres(ctx, config)
	case StorageBackendRedis:
		return initializeRedisStorage(config)
	default:
		return nil, Config{}, fmt.Errorf("sessionkit config: unsupported runtime.storage.backend %q", backend)
	}
}

func initializeFileStorage(config Config) (func() error, Config, error) {
	fileConfig := config.Runtime.Storage.File
	if fileConfig.Directory == "" {
		return nil, Config{}, fmt.Errorf("sessionkit config: runtime.storage.file.directory is required")
	}

	adapter, err := filestorage.NewAdapter(fileConfig.Directory)
	if err != nil {
		return nil, Config{}, fmt.Errorf("sessionkit config: failed to initialize file storage: %w", err)
	}

	config.StateStore = adapter
	config.Logger.V(1).Info("initialized file storage backend", "directory", fileConfig.Directory)
	return noopCloser, config, nil
}

func initializeRedisStorage(config Config) (func() error, Config, error) {
	redisConfig := config.Runtime.Storage.Redis
	if redisConfig.Address == "" {
		return nil, Config{}, fmt.Errorf("sessionkit config: runtime.storage.redis.address is required")
	}
	if redisConfig.DialTimeout <= 0 {
		redisConfig.DialTimeout = 5 * time.Second
	}

	adapter, err := redisstorage.NewAdapter(redisstorage.Config{
		Address:     redisConfig.Address,
		Username:    redisConfig.Username,
		Password:    redisConfig.Password,
		Database:    redisConfig.Database,
		Namespace:   redisConfig.Namespace,
		DialTimeout: redisConfig.DialTimeout,
	})
	if err != nil {
		return nil, Config{}, fmt.Errorf("sessionkit config: failed to initialize redis storage: %w", err)
	}

	config.StateStore = adapter
	config.Runtime.Storage.Redis = redisConfig
	config.Logger.V(1).Info("initialized redis storage backend", "address", redisConfig.Address, "database", redisConfig.Database, "namespace", redisConfig.Namespace)
	return adapter.Close, config, nil
}

func initializePostgres(ctx context.Context, config Config) (func() error, Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	pgConfig := config.Runtime.Storage.Postgres
	if pgConfig.DSN == "" {
		return nil, Config{}, fmt.Errorf("sessionkit config: runtime.storage.postgres.dsn is required")
	}

	if pgConfig.DriverName == "" {
		pgConfig.DriverName = "pgx"
	}
	if pgConfig.PingTimeout <= 0 {
		pgConfig.PingTimeout = 5 * time.Second
	}
	if pgConfig.OpenDB == nil {
		pgConfig.OpenDB = sql.Open
	}

	db, err := pgConfig.OpenDB(pgConfig.DriverName, pgConfig.DSN)
	if err != nil {
		return nil, Config{}, fmt.Errorf("sessionkit config: failed to open postgres database: %w", err)
	}

	if pgConfig.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pgConfig.MaxOpenConns)
	}
	if pgConfig.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pgConfig.MaxIdleConns)
	}
	if pgConfig.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pgConfig.ConnMaxLifetime)
	}
	if pgConfig.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pgConfig.ConnMaxIdleTime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pgConfig.PingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, Config{}, fmt.Errorf("sessionkit config: failed to ping postgres database: %w", err)
	}

	adapter, err := postgresstorage.NewAdapter(db)
	if err != nil {
		_ = db.Close()
		return nil, Config{}, fmt.Errorf("sessionkit config: failed to initialize postgres adapter: %w", err)
	}

	config.StateStore = adapter
	config.Runtime.Storage.Postgres = pgConfig
	config.Logger.V(1).Info("initialized postgres storage backend", "driver", pgConfig.DriverName, "max_open_conns", pgConfig.MaxOpenConns, "max_idle_conns", pgConfig.MaxIdleConns)
	return joinClosers(func() error { return db.Close() }, adapter.Close), config, nil
}

func joinClosers(closers ...func() error) func() error {
	return func() error {
		var errs []error

		for i := len(closers) - 1; i >= 0; i-- {
			if closers[i] == nil {
				continue
			}
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}

		return stderrors.Join(errs...)
	}
}

func noopCloser() error {
	return nil
}
