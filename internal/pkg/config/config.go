// internal/pkg/config/config.go
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Storage drivers
const (
	StorageS3    = "s3"
	StorageLocal = "local"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Asynq     AsynqConfig
	Storage   StorageConfig
	Events    EventsConfig
	Inventory InventoryConfig
	Security  SecurityConfig
	Server    ServerConfig
	Secrets   SecretsConfig
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Name        string `required:"true"`
	Environment string // development, staging, production
	Version     string
	LogLevel    string
	LogFormat   string // json, text, pretty
	Debug       bool
}

// DatabaseConfig holds record store configuration. Driver selects between
// Postgres and an embedded SQLite file.
type DatabaseConfig struct {
	Driver             string `required:"true"`
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxConnections     int32
	MinConnections     int32
	MaxConnLifetime    time.Duration
	MaxConnIdleTime    time.Duration
	HealthCheckPeriod  time.Duration
	ConnectTimeout     time.Duration
	ConnectAttempts    int
	EnableQueryLogging bool
	MigrateOnStart     bool
	SQLitePath         string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string
	Port         string
	Password     string
	DB           int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
	PoolTimeout  time.Duration
	CacheEnabled bool
	ListCacheTTL time.Duration
}

// AsynqConfig holds Asynq configuration
type AsynqConfig struct {
	Enabled         bool
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	Concurrency     int
	Queues          map[string]int // queue name -> priority
	StrictPriority  bool
	RetryMax        int
	ShutdownTimeout time.Duration
}

// StorageConfig holds asset store configuration
type StorageConfig struct {
	Driver          string `required:"true"`
	Region          string
	Bucket          string
	Endpoint        string // For MinIO in development
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PublicBaseURL   string
	LocalPath       string
	LocalBaseURL    string
}

// EventsConfig holds event publishing configuration. An empty AMQPURL
// means events are only logged.
type EventsConfig struct {
	AMQPURL  string
	Exchange string
}

// InventoryConfig holds tuning for the inventory service and its
// background jobs.
type InventoryConfig struct {
	MaxConflictRetries   int
	RetryInitialInterval time.Duration
	OperationTimeout     time.Duration
	AssetDeleteTimeout   time.Duration
	AssetPrefix          string
	MaxAssetSizeMB       int
	ImportMaxSizeMB      int
	UploadDir            string
	OrphanGracePeriod    time.Duration
	OrphanSweepSchedule  string
	TempCleanupSchedule  string
	TempFileMaxAge       time.Duration
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	RateLimitRequests int
	RateLimitDuration time.Duration
	AllowedOrigins    []string
	SecureHeaders     bool
	RequestIDHeader   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string `required:"true"`
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	MaxHeaderBytes  int
	GracefulTimeout time.Duration
}

// SecretsConfig selects where credentials are overlaid from. An empty
// Name keeps the values read from the environment.
type SecretsConfig struct {
	Name   string
	Region string
}

// Load loads configuration from environment variables
func Load(logger *slog.Logger) (*Config, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Load .env file in development
	if env == "development" || env == "local" {
		if err := godotenv.Load(); err != nil {
			logger.Debug("no .env file found, using environment variables")
		} else {
			logger.Info(".env file loaded successfully")
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		viper.SetConfigFile(file)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
		logger.Info("config file loaded", slog.String("file", viper.ConfigFileUsed()))
	}

	cfg := build(env)

	if cfg.Secrets.Name != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		sm, err := NewAWSSecretsManager(ctx, cfg.Secrets.Region, cfg.Secrets.Name, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create secrets manager: %w", err)
		}
		if err := ApplySecrets(ctx, cfg, sm); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func build(env string) *Config {
	redisHost := getEnv("REDIS_HOST", "localhost")
	redisPort := getEnv("REDIS_PORT", "6379")
	serverPort := getEnv("SERVER_PORT", "8080")

	return &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "stockroom"),
			Environment: env,
			Version:     getEnv("APP_VERSION", "dev"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "json"),
			Debug:       getBoolEnv("APP_DEBUG", env == "development"),
		},
		Database: DatabaseConfig{
			Driver:             strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", "stockroom"),
			Password:           getEnv("DB_PASSWORD", "stockroom_dev"),
			Name:               getEnv("DB_NAME", "stockroom"),
			SSLMode:            getEnv("DB_SSL_MODE", "disable"),
			MaxConnections:     int32(getIntEnv("DB_MAX_CONNECTIONS", 25)),
			MinConnections:     int32(getIntEnv("DB_MIN_CONNECTIONS", 2)),
			MaxConnLifetime:    getDurationEnv("DB_CONNECTION_LIFETIME", time.Hour),
			MaxConnIdleTime:    getDurationEnv("DB_IDLE_TIME", 30*time.Minute),
			HealthCheckPeriod:  getDurationEnv("DB_HEALTH_CHECK_PERIOD", time.Minute),
			ConnectTimeout:     getDurationEnv("DB_CONNECT_TIMEOUT", 10*time.Second),
			ConnectAttempts:    getIntEnv("DB_CONNECT_ATTEMPTS", 5),
			EnableQueryLogging: getBoolEnv("DB_QUERY_LOGGING", false),
			MigrateOnStart:     getBoolEnv("DB_MIGRATE_ON_START", true),
			SQLitePath:         getEnv("SQLITE_PATH", "stockroom.db"),
		},
		Redis: RedisConfig{
			Host:         redisHost,
			Port:         redisPort,
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getIntEnv("REDIS_DB", 0),
			MaxRetries:   getIntEnv("REDIS_MAX_RETRIES", 3),
			DialTimeout:  getDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolSize:     getIntEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntEnv("REDIS_MIN_IDLE_CONNS", 2),
			PoolTimeout:  getDurationEnv("REDIS_POOL_TIMEOUT", 4*time.Second),
			CacheEnabled: getBoolEnv("REDIS_CACHE_ENABLED", true),
			ListCacheTTL: getDurationEnv("REDIS_LIST_CACHE_TTL", 30*time.Second),
		},
		Asynq: AsynqConfig{
			Enabled:         getBoolEnv("ASYNQ_ENABLED", true),
			RedisAddr:       fmt.Sprintf("%s:%s", redisHost, redisPort),
			RedisPassword:   getEnv("REDIS_PASSWORD", ""),
			RedisDB:         getIntEnv("ASYNQ_REDIS_DB", 0),
			Concurrency:     getIntEnv("ASYNQ_CONCURRENCY", 10),
			Queues:          parseQueues(getEnv("ASYNQ_QUEUES", "critical:6,default:3,low:1")),
			StrictPriority:  getBoolEnv("ASYNQ_STRICT_PRIORITY", false),
			RetryMax:        getIntEnv("ASYNQ_RETRY_MAX", 3),
			ShutdownTimeout: getDurationEnv("ASYNQ_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			Driver:          strings.ToLower(getEnv("STORAGE_DRIVER", StorageLocal)),
			Region:          getEnv("AWS_REGION", "us-east-1"),
			Bucket:          getEnv("AWS_S3_BUCKET", "stockroom-assets"),
			Endpoint:        getEnv("AWS_S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getBoolEnv("AWS_S3_PATH_STYLE", env == "development"),
			PublicBaseURL:   getEnv("AWS_S3_PUBLIC_BASE_URL", ""),
			LocalPath:       getEnv("STORAGE_LOCAL_PATH", "data/assets"),
			LocalBaseURL:    getEnv("STORAGE_LOCAL_BASE_URL", "http://localhost:"+serverPort+"/assets"),
		},
		Events: EventsConfig{
			AMQPURL:  getEnv("EVENTS_AMQP_URL", ""),
			Exchange: getEnv("EVENTS_EXCHANGE", "stockroom.inventory"),
		},
		Inventory: InventoryConfig{
			MaxConflictRetries:   getIntEnv("INVENTORY_MAX_CONFLICT_RETRIES", 5),
			RetryInitialInterval: getDurationEnv("INVENTORY_RETRY_INITIAL_INTERVAL", 10*time.Millisecond),
			OperationTimeout:     getDurationEnv("INVENTORY_OPERATION_TIMEOUT", 10*time.Second),
			AssetDeleteTimeout:   getDurationEnv("INVENTORY_ASSET_DELETE_TIMEOUT", 10*time.Second),
			AssetPrefix:          getEnv("INVENTORY_ASSET_PREFIX", "images"),
			MaxAssetSizeMB:       getIntEnv("INVENTORY_MAX_ASSET_SIZE_MB", 10),
			ImportMaxSizeMB:      getIntEnv("INVENTORY_IMPORT_MAX_SIZE_MB", 20),
			UploadDir:            getEnv("INVENTORY_UPLOAD_DIR", os.TempDir()),
			OrphanGracePeriod:    getDurationEnv("INVENTORY_ORPHAN_GRACE_PERIOD", 24*time.Hour),
			OrphanSweepSchedule:  getEnv("INVENTORY_ORPHAN_SWEEP_SCHEDULE", "@every 1h"),
			TempCleanupSchedule:  getEnv("INVENTORY_TEMP_CLEANUP_SCHEDULE", "@every 1h"),
			TempFileMaxAge:       getDurationEnv("INVENTORY_TEMP_FILE_MAX_AGE", 24*time.Hour),
		},
		Security: SecurityConfig{
			RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 100),
			RateLimitDuration: getDurationEnv("RATE_LIMIT_DURATION", time.Minute),
			AllowedOrigins:    getSliceEnv("ALLOWED_ORIGINS", []string{"*"}),
			SecureHeaders:     getBoolEnv("SECURE_HEADERS", env == "production"),
			RequestIDHeader:   getEnv("REQUEST_ID_HEADER", "X-Request-ID"),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            serverPort,
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout:  getDurationEnv("SERVER_REQUEST_TIMEOUT", 25*time.Second),
			MaxHeaderBytes:  getIntEnv("SERVER_MAX_HEADER_BYTES", 1<<20), // 1 MB
			GracefulTimeout: getDurationEnv("SERVER_GRACEFUL_TIMEOUT", 30*time.Second),
		},
		Secrets: SecretsConfig{
			Name:   getEnv("AWS_SECRETS_NAME", ""),
			Region: getEnv("AWS_REGION", "us-east-1"),
		},
	}
}

// Validate runs the basic checks, plus the production ones when the
// environment asks for them.
func (c *Config) Validate() error {
	validators := []Validator{&BasicValidator{}}
	if c.IsProduction() {
		validators = append(validators, &ProductionValidator{})
	}

	for _, v := range validators {
		if err := v.Validate(c); err != nil {
			return err
		}
	}
	return nil
}

// GetDatabaseURL returns the formatted database connection string
func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the formatted server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// GetRedisAddress returns host:port for the Redis server
func (c *Config) GetRedisAddress() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "local"
}

// Helper functions. Values come from viper, which reads the environment
// and, when CONFIG_FILE is set, the named file.

func getEnv(key, defaultValue string) string {
	if value := viper.GetString(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := viper.GetString(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := viper.GetString(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := viper.GetString(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := viper.GetString(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func parseQueues(queuesStr string) map[string]int {
	queues := make(map[string]int)
	pairs := strings.Split(queuesStr, ",")
	for _, pair := range pairs {
		parts := strings.Split(pair, ":")
		if len(parts) == 2 {
			name := strings.TrimSpace(parts[0])
			priority, err := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err == nil {
				queues[name] = priority
			}
		}
	}
	if len(queues) == 0 {
		queues["default"] = 1
	}
	return queues
}
