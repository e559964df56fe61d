// internal/pkg/config/secrets.go
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Secret keys overlaid onto the configuration by ApplySecrets.
const (
	SecretDBPassword        = "DB_PASSWORD"
	SecretRedisPassword     = "REDIS_PASSWORD"
	SecretAWSAccessKeyID    = "AWS_ACCESS_KEY_ID"
	SecretAWSSecretKey      = "AWS_SECRET_ACCESS_KEY"
	SecretEventsAMQPURL     = "EVENTS_AMQP_URL"
	defaultSecretsCacheTTL  = 5 * time.Minute
	secretValueVersionStage = "AWSCURRENT"
)

// SecretsManager supplies credentials by key.
type SecretsManager interface {
	GetSecret(ctx context.Context, key string) (string, error)
	GetSecrets(ctx context.Context, keys []string) (map[string]string, error)
	RefreshSecrets(ctx context.Context) error
}

// ApplySecrets overwrites credential fields with whatever sm returns.
// Keys the manager does not know keep their environment values.
func ApplySecrets(ctx context.Context, cfg *Config, sm SecretsManager) error {
	secrets, err := sm.GetSecrets(ctx, []string{
		SecretDBPassword,
		SecretRedisPassword,
		SecretAWSAccessKeyID,
		SecretAWSSecretKey,
		SecretEventsAMQPURL,
	})
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}

	if v, ok := secrets[SecretDBPassword]; ok {
		cfg.Database.Password = v
	}
	if v, ok := secrets[SecretRedisPassword]; ok {
		cfg.Redis.Password = v
		cfg.Asynq.RedisPassword = v
	}
	if v, ok := secrets[SecretAWSAccessKeyID]; ok {
		cfg.Storage.AccessKeyID = v
	}
	if v, ok := secrets[SecretAWSSecretKey]; ok {
		cfg.Storage.SecretAccessKey = v
	}
	if v, ok := secrets[SecretEventsAMQPURL]; ok {
		cfg.Events.AMQPURL = v
	}
	return nil
}

type secretValueGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManager reads a JSON object of key/value pairs from a single
// AWS Secrets Manager secret and caches it.
type AWSSecretsManager struct {
	client     secretValueGetter
	secretName string
	cache      map[string]string
	cacheMu    sync.RWMutex
	lastFetch  time.Time
	ttl        time.Duration
	logger     *slog.Logger
}

var _ SecretsManager = (*AWSSecretsManager)(nil)

// NewAWSSecretsManager creates a new AWS Secrets Manager client
func NewAWSSecretsManager(ctx context.Context, region, secretName string, logger *slog.Logger) (*AWSSecretsManager, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newAWSSecretsManager(secretsmanager.NewFromConfig(cfg), secretName, logger), nil
}

func newAWSSecretsManager(client secretValueGetter, secretName string, logger *slog.Logger) *AWSSecretsManager {
	return &AWSSecretsManager{
		client:     client,
		secretName: secretName,
		cache:      make(map[string]string),
		ttl:        defaultSecretsCacheTTL,
		logger:     logger.With(slog.String("component", "secrets")),
	}
}

// GetSecret retrieves a single secret
func (sm *AWSSecretsManager) GetSecret(ctx context.Context, key string) (string, error) {
	secrets, err := sm.GetSecrets(ctx, []string{key})
	if err != nil {
		return "", err
	}

	val, ok := secrets[key]
	if !ok {
		return "", fmt.Errorf("secret key %s not found", key)
	}

	return val, nil
}

// GetSecrets retrieves multiple secrets
func (sm *AWSSecretsManager) GetSecrets(ctx context.Context, keys []string) (map[string]string, error) {
	sm.cacheMu.RLock()
	if !sm.lastFetch.IsZero() && time.Since(sm.lastFetch) < sm.ttl {
		cached := pick(sm.cache, keys)
		sm.cacheMu.RUnlock()
		sm.logger.Debug("returning cached secrets")
		return cached, nil
	}
	sm.cacheMu.RUnlock()

	sm.logger.Info("fetching secrets from AWS Secrets Manager",
		slog.String("secret_name", sm.secretName))

	result, err := sm.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(sm.secretName),
		VersionStage: aws.String(secretValueVersionStage),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret value: %w", err)
	}
	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", sm.secretName)
	}

	var secretData map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &secretData); err != nil {
		return nil, fmt.Errorf("failed to parse secret JSON: %w", err)
	}

	sm.cacheMu.Lock()
	sm.cache = secretData
	sm.lastFetch = time.Now()
	sm.cacheMu.Unlock()

	filtered := pick(secretData, keys)
	for _, key := range keys {
		if _, ok := filtered[key]; !ok {
			sm.logger.Debug("secret key not present", slog.String("key", key))
		}
	}
	return filtered, nil
}

// RefreshSecrets drops the cache and fetches again.
func (sm *AWSSecretsManager) RefreshSecrets(ctx context.Context) error {
	sm.cacheMu.Lock()
	sm.cache = make(map[string]string)
	sm.lastFetch = time.Time{}
	sm.cacheMu.Unlock()

	_, err := sm.GetSecrets(ctx, []string{})
	return err
}

func pick(src map[string]string, keys []string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := src[key]; ok {
			out[key] = val
		}
	}
	return out
}

// EnvSecretsManager implements secrets management using environment variables
type EnvSecretsManager struct{}

var _ SecretsManager = (*EnvSecretsManager)(nil)

// NewEnvSecretsManager creates a new environment-based secrets manager
func NewEnvSecretsManager() *EnvSecretsManager {
	return &EnvSecretsManager{}
}

// GetSecret retrieves a secret from environment variables
func (em *EnvSecretsManager) GetSecret(ctx context.Context, key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("environment variable %s not set", key)
	}
	return val, nil
}

// GetSecrets retrieves multiple secrets from environment variables
func (em *EnvSecretsManager) GetSecrets(ctx context.Context, keys []string) (map[string]string, error) {
	secrets := make(map[string]string)
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			secrets[key] = val
		}
	}
	return secrets, nil
}

// RefreshSecrets is a no-op for environment variables
func (em *EnvSecretsManager) RefreshSecrets(ctx context.Context) error {
	return nil
}
