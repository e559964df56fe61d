// test/helpers/test_helpers.go
package helpers

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v3"

	"github.com/ammerola/stockroom/internal/adapters/db"
	"github.com/ammerola/stockroom/internal/core/domain"
	"github.com/ammerola/stockroom/internal/pkg/config"
)

// TestDB represents a test database instance
type TestDB struct {
	PgxPool  *pgxpool.Pool
	Database *db.Database
	Resource *dockertest.Resource
	Pool     *dockertest.Pool
	Config   *db.Config
}

// TestRedis represents a test Redis instance
type TestRedis struct {
	Client *redis.Client
	Server *miniredis.Miniredis
}

// TestLogger returns a test logger
func TestLogger() *slog.Logger {
	if testing.Verbose() {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// SetupTestDB creates a PostgreSQL container for integration tests and
// applies the embedded migrations.
func SetupTestDB(t testing.TB) *TestDB {
	t.Helper()

	pool, err := dockertest.NewPool("")
	require.NoError(t, err, "Could not connect to Docker")

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=test",
			"POSTGRES_PASSWORD=test",
			"POSTGRES_DB=test_inventory",
			"listen_addresses = '*'",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err, "Could not start PostgreSQL container")

	t.Cleanup(func() {
		if err := pool.Purge(resource); err != nil {
			t.Logf("Could not purge resource: %s", err)
		}
	})

	dbConfig := &db.Config{
		Host:               "localhost",
		Port:               resource.GetPort("5432/tcp"),
		User:               "test",
		Password:           "test",
		Database:           "test_inventory",
		SSLMode:            "disable",
		MaxConnections:     10,
		MinConnections:     1,
		MaxConnLifetime:    time.Hour,
		MaxConnIdleTime:    time.Minute * 30,
		HealthCheckPeriod:  time.Minute,
		ConnectTimeout:     time.Second * 10,
		EnableQueryLogging: testing.Verbose(),
	}

	var database *db.Database
	err = pool.Retry(func() error {
		ctx := context.Background()
		var err error
		database, err = db.NewDatabase(ctx, dbConfig, TestLogger())
		if err != nil {
			return err
		}
		return database.Ping(ctx)
	})
	require.NoError(t, err, "Could not connect to PostgreSQL")
	t.Cleanup(database.Close)

	err = db.RunMigrationsWithRetry(context.Background(), &db.MigrationConfig{
		DatabaseURL: dbConfig.URL(),
		TableName:   "schema_migrations",
		SchemaName:  "public",
	}, TestLogger(), 3)
	require.NoError(t, err, "Could not run migrations")

	return &TestDB{
		PgxPool:  database.Pool(),
		Database: database,
		Resource: resource,
		Pool:     pool,
		Config:   dbConfig,
	}
}

// SetupTestRedis creates a miniredis-backed client for testing
func SetupTestRedis(t testing.TB) *TestRedis {
	t.Helper()

	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
	})

	return &TestRedis{
		Client: client,
		Server: mr,
	}
}

// SetupMockDB creates a mock database for unit testing
func SetupMockDB(t *testing.T) (sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err, "Failed to create mock DB")

	t.Cleanup(func() {
		db.Close()
	})

	return mock, db
}

// LoadTestConfig returns a configuration backed by SQLite and local
// storage, with every external dependency disabled.
func LoadTestConfig(t testing.TB) *config.Config {
	t.Helper()

	dir := t.TempDir()
	return &config.Config{
		App: config.AppConfig{
			Name:        "stockroom-test",
			Environment: "test",
			Version:     "test",
			LogLevel:    "debug",
			LogFormat:   "text",
		},
		Database: config.DatabaseConfig{
			Driver:     config.DriverSQLite,
			SQLitePath: filepath.Join(dir, "inventory.db"),
		},
		Storage: config.StorageConfig{
			Driver:       config.StorageLocal,
			LocalPath:    filepath.Join(dir, "assets"),
			LocalBaseURL: "http://localhost:8080/assets",
		},
		Inventory: config.InventoryConfig{
			MaxConflictRetries:   10,
			RetryInitialInterval: time.Millisecond,
			OperationTimeout:     10 * time.Second,
			AssetDeleteTimeout:   time.Second,
			AssetPrefix:          "images",
			MaxAssetSizeMB:       1,
			ImportMaxSizeMB:      1,
			UploadDir:            filepath.Join(dir, "uploads"),
			OrphanGracePeriod:    time.Hour,
			OrphanSweepSchedule:  "@every 1h",
			TempCleanupSchedule:  "@every 1h",
			TempFileMaxAge:       time.Hour,
		},
		Security: config.SecurityConfig{
			AllowedOrigins: []string{"*"},
		},
		Server: config.ServerConfig{
			Host:           "localhost",
			Port:           "8080",
			RequestTimeout: 10 * time.Second,
		},
	}
}

// CreateTestInventoryItem creates a test inventory item
func CreateTestInventoryItem(overrides ...func(*domain.InventoryItem)) *domain.InventoryItem {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	item := &domain.InventoryItem{
		ID:        "apple",
		Quantity:  1,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, override := range overrides {
		override(item)
	}

	return item
}

// CreateTestInventoryItems creates count items named item-001, item-002...
func CreateTestInventoryItems(count int) []*domain.InventoryItem {
	items := make([]*domain.InventoryItem, count)
	for i := 0; i < count; i++ {
		items[i] = CreateTestInventoryItem(func(item *domain.InventoryItem) {
			item.ID = fmt.Sprintf("item-%03d", i+1)
			item.Quantity = i%5 + 1
		})
	}
	return items
}

// AssertEventuallyWithTimeout asserts that a condition is met within a timeout
func AssertEventuallyWithTimeout(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Errorf("Condition not met within %v: %s", timeout, msg)
}

// TruncateAllTables truncates all tables in the test database
func TruncateAllTables(t testing.TB, db *pgxpool.Pool) {
	t.Helper()

	_, err := db.Exec(context.Background(), "TRUNCATE TABLE inventory_items")
	require.NoError(t, err, "Failed to truncate inventory_items")
}

// CreateTempFile writes content to name inside a per-test directory.
func CreateTempFile(t testing.TB, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o600), "Failed to write temp file")
	return path
}

// CreateTestWorkbook writes rows as text cells to a single-sheet workbook
// and returns its path.
func CreateTestWorkbook(t testing.TB, rows [][]string) string {
	t.Helper()

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Items")
	require.NoError(t, err)

	for _, values := range rows {
		row := sheet.AddRow()
		for _, v := range values {
			row.AddCell().SetString(v)
		}
	}

	path := filepath.Join(t.TempDir(), "import.xlsx")
	require.NoError(t, file.Save(path), "Failed to save workbook")
	return path
}
