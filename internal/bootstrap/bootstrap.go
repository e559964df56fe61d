// internal/bootstrap/bootstrap.go
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/ammerola/stockroom/internal/adapters/db"
	"github.com/ammerola/stockroom/internal/adapters/events"
	redis_a "github.com/ammerola/stockroom/internal/adapters/redis_adapter"
	"github.com/ammerola/stockroom/internal/adapters/sqlite"
	"github.com/ammerola/stockroom/internal/adapters/storage"
	"github.com/ammerola/stockroom/internal/core/ports"
	"github.com/ammerola/stockroom/internal/core/services"
	"github.com/ammerola/stockroom/internal/pkg/config"
)

// Dependencies holds the adapters shared by the binaries.
type Dependencies struct {
	// Records is the store the inventory service writes through. It is the
	// cached store when the Redis cache is enabled.
	Records ports.RecordStore
	// BaseRecords always reads the underlying store directly.
	BaseRecords ports.RecordStore
	Assets      ports.AssetStore
	// LocalAssets is set when assets live on the local filesystem.
	LocalAssets *storage.LocalStorage
	Events      ports.EventPublisher
	Redis       *redis.Client

	closers []func()
}

// Close releases every connection opened by Open, most recent first.
func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

func (d *Dependencies) onClose(fn func()) {
	d.closers = append(d.closers, fn)
}

// Open connects every adapter selected by cfg. On error, anything already
// opened is closed.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (deps *Dependencies, err error) {
	deps = &Dependencies{}
	defer func() {
		if err != nil {
			deps.Close()
			deps = nil
		}
	}()

	records, err := openRecordStore(ctx, cfg, logger, deps)
	if err != nil {
		return nil, err
	}
	deps.BaseRecords = records
	deps.Records = records

	if cfg.Redis.CacheEnabled {
		client, err := NewRedisClient(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		deps.onClose(func() { client.Close() })
		deps.Redis = client

		cache := redis_a.NewCache(client, cfg.Redis.ListCacheTTL, logger)
		deps.Records = redis_a.NewCachedRecordStore(records, cache, cfg.Redis.ListCacheTTL, logger)
	}

	if err := openAssetStore(ctx, cfg, logger, deps); err != nil {
		return nil, err
	}

	if err := openPublisher(cfg, logger, deps); err != nil {
		return nil, err
	}

	logger.Info("dependencies initialized",
		slog.String("record_store", cfg.Database.Driver),
		slog.String("asset_store", cfg.Storage.Driver),
		slog.Bool("cache_enabled", cfg.Redis.CacheEnabled),
		slog.Bool("amqp_events", cfg.Events.AMQPURL != ""))

	return deps, nil
}

// NewInventoryService builds the service on deps using the configured
// tuning.
func NewInventoryService(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *services.InventoryService {
	return services.NewInventoryService(deps.Records, deps.Assets, deps.Events, ServiceOptions(cfg), logger)
}

// ServiceOptions maps configuration onto service options, keeping the
// defaults for unset values.
func ServiceOptions(cfg *config.Config) services.Options {
	opts := services.DefaultOptions()
	inv := cfg.Inventory

	if inv.MaxConflictRetries > 0 {
		opts.MaxConflictRetries = inv.MaxConflictRetries
	}
	if inv.RetryInitialInterval > 0 {
		opts.RetryInitialInterval = inv.RetryInitialInterval
	}
	if inv.OperationTimeout > 0 {
		opts.OperationTimeout = inv.OperationTimeout
	}
	if inv.AssetDeleteTimeout > 0 {
		opts.AssetDeleteTimeout = inv.AssetDeleteTimeout
	}
	if inv.AssetPrefix != "" {
		opts.AssetPrefix = inv.AssetPrefix
	}
	return opts
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	logger.Info("connecting to Redis", slog.String("address", cfg.GetRedisAddress()))

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddress(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		PoolTimeout:  cfg.Redis.PoolTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// AsynqRedisOpt returns the connection options for the task queue.
func AsynqRedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Asynq.RedisAddr,
		Password: cfg.Asynq.RedisPassword,
		DB:       cfg.Asynq.RedisDB,
	}
}

// DBConfig maps configuration onto the Postgres pool settings.
func DBConfig(cfg *config.Config) *db.Config {
	return &db.Config{
		Host:               cfg.Database.Host,
		Port:               cfg.Database.Port,
		User:               cfg.Database.User,
		Password:           cfg.Database.Password,
		Database:           cfg.Database.Name,
		SSLMode:            cfg.Database.SSLMode,
		MaxConnections:     cfg.Database.MaxConnections,
		MinConnections:     cfg.Database.MinConnections,
		MaxConnLifetime:    cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:    cfg.Database.MaxConnIdleTime,
		HealthCheckPeriod:  cfg.Database.HealthCheckPeriod,
		ConnectTimeout:     cfg.Database.ConnectTimeout,
		ConnectAttempts:    cfg.Database.ConnectAttempts,
		EnableQueryLogging: cfg.Database.EnableQueryLogging,
	}
}

func openRecordStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *Dependencies) (ports.RecordStore, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.Database.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite record store: %w", err)
		}
		deps.onClose(func() { store.Close() })
		return store, nil

	case config.DriverPostgres:
		logger.Info("connecting to database",
			slog.String("host", cfg.Database.Host),
			slog.String("database", cfg.Database.Name))

		database, err := db.NewDatabase(ctx, DBConfig(cfg), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		deps.onClose(database.Close)

		if cfg.Database.MigrateOnStart {
			logger.Info("running database migrations")
			err := db.RunMigrationsWithRetry(ctx, &db.MigrationConfig{
				DatabaseURL: cfg.GetDatabaseURL(),
				TableName:   "schema_migrations",
				SchemaName:  "public",
			}, logger, 3)
			if err != nil {
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		return db.NewRecordStore(database, logger), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
}

func openAssetStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *Dependencies) error {
	switch cfg.Storage.Driver {
	case config.StorageLocal:
		local, err := storage.NewLocalStorage(cfg.Storage.LocalPath, cfg.Storage.LocalBaseURL, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize local asset store: %w", err)
		}
		deps.Assets = local
		deps.LocalAssets = local
		return nil

	case config.StorageS3:
		s3, err := storage.NewS3Storage(ctx, &storage.S3Config{
			Region:          cfg.Storage.Region,
			Bucket:          cfg.Storage.Bucket,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Endpoint:        cfg.Storage.Endpoint,
			UsePathStyle:    cfg.Storage.UsePathStyle,
			PublicBaseURL:   cfg.Storage.PublicBaseURL,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize S3 asset store: %w", err)
		}
		deps.Assets = s3
		return nil
	}
	return fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
}

func openPublisher(cfg *config.Config, logger *slog.Logger, deps *Dependencies) error {
	publishers := events.Fanout{events.NewLogPublisher(logger)}

	if cfg.Events.AMQPURL != "" {
		amqpPub, err := events.DialAMQP(cfg.Events.AMQPURL, cfg.Events.Exchange, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize event publisher: %w", err)
		}
		deps.onClose(func() {
			if err := amqpPub.Close(); err != nil {
				logger.Warn("failed to close event publisher", slog.String("error", err.Error()))
			}
		})
		publishers = append(publishers, amqpPub)
	}

	deps.Events = publishers
	return nil
}
