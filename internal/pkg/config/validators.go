// internal/pkg/config/validators.go
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	ErrMissingRequiredConfig = errors.New("missing required configuration")
	ErrInvalidConfig         = errors.New("invalid configuration")
)

// Validator checks one aspect of a loaded configuration.
type Validator interface {
	Validate(cfg *Config) error
}

// BasicValidator performs basic configuration validation
type BasicValidator struct{}

// Validate performs basic validation
func (v *BasicValidator) Validate(cfg *Config) error {
	if err := validateRequiredFields(cfg); err != nil {
		return err
	}

	switch cfg.Database.Driver {
	case DriverPostgres:
		if cfg.Database.Host == "" || cfg.Database.Name == "" {
			return fmt.Errorf("%w: database host and name", ErrMissingRequiredConfig)
		}
		if cfg.Database.MaxConnections < cfg.Database.MinConnections {
			return fmt.Errorf("%w: database max_connections must be >= min_connections", ErrInvalidConfig)
		}
	case DriverSQLite:
		if cfg.Database.SQLitePath == "" {
			return fmt.Errorf("%w: SQLITE_PATH", ErrMissingRequiredConfig)
		}
	default:
		return fmt.Errorf("%w: unknown DB_DRIVER %q", ErrInvalidConfig, cfg.Database.Driver)
	}

	switch cfg.Storage.Driver {
	case StorageS3:
		if cfg.Storage.Bucket == "" {
			return fmt.Errorf("%w: AWS_S3_BUCKET", ErrMissingRequiredConfig)
		}
	case StorageLocal:
		if cfg.Storage.LocalPath == "" || cfg.Storage.LocalBaseURL == "" {
			return fmt.Errorf("%w: local storage path and base URL", ErrMissingRequiredConfig)
		}
	default:
		return fmt.Errorf("%w: unknown STORAGE_DRIVER %q", ErrInvalidConfig, cfg.Storage.Driver)
	}

	if cfg.Redis.PoolSize <= 0 {
		return fmt.Errorf("%w: redis pool_size must be positive", ErrInvalidConfig)
	}

	if cfg.Security.RateLimitRequests <= 0 {
		return fmt.Errorf("%w: rate_limit_requests must be positive", ErrInvalidConfig)
	}

	inv := cfg.Inventory
	if inv.MaxConflictRetries < 0 {
		return fmt.Errorf("%w: max conflict retries cannot be negative", ErrInvalidConfig)
	}
	if inv.OperationTimeout <= 0 || inv.AssetDeleteTimeout <= 0 {
		return fmt.Errorf("%w: inventory timeouts must be positive", ErrInvalidConfig)
	}
	if inv.MaxAssetSizeMB <= 0 || inv.ImportMaxSizeMB <= 0 {
		return fmt.Errorf("%w: upload size limits must be positive", ErrInvalidConfig)
	}
	if strings.Trim(inv.AssetPrefix, "/") == "" {
		return fmt.Errorf("%w: asset prefix", ErrMissingRequiredConfig)
	}

	return nil
}

// ProductionValidator performs strict validation for production environments
type ProductionValidator struct{}

// Validate performs production-specific validation
func (v *ProductionValidator) Validate(cfg *Config) error {
	if strings.Contains(cfg.Database.Password, "MISSING_") {
		return fmt.Errorf("%w: database password", ErrMissingRequiredConfig)
	}

	if cfg.Database.Driver == DriverPostgres && cfg.Database.SSLMode == "disable" {
		return fmt.Errorf("database SSL must be enabled in production")
	}

	if cfg.Database.Driver == DriverSQLite {
		return fmt.Errorf("sqlite driver is not supported in production")
	}

	if !cfg.Security.SecureHeaders {
		return fmt.Errorf("secure headers must be enabled in production")
	}

	for _, origin := range cfg.Security.AllowedOrigins {
		if origin == "*" {
			return fmt.Errorf("wildcard origin (*) not allowed in production")
		}
	}
	if len(cfg.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("allowed origins must be configured in production")
	}

	return nil
}

// validateRequiredFields uses reflection to check required struct tags
func validateRequiredFields(cfg interface{}) error {
	v := reflect.ValueOf(cfg)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	return validateStruct(v, "")
}

func validateStruct(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		fieldName := fieldType.Name

		if prefix != "" {
			fieldName = prefix + "." + fieldName
		}

		if required := fieldType.Tag.Get("required"); required == "true" {
			if isZeroValue(field) {
				return fmt.Errorf("%w: %s", ErrMissingRequiredConfig, fieldName)
			}
		}

		if field.Kind() == reflect.Struct {
			if err := validateStruct(field, fieldName); err != nil {
				return err
			}
		}
	}

	return nil
}

func isZeroValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		return v.String() == "" || strings.HasPrefix(v.String(), "MISSING_")
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Slice, reflect.Map:
		return v.IsNil() || v.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return v.IsNil()
	default:
		return false
	}
}
