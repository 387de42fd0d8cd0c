// Package config loads every component's settings from the environment,
// following the same os.Getenv-with-fallback idiom the rest of this
// module's ops surface uses (the eventstore/projection/session/token/
// password-policy option sets of §6.5).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"iamcore/internal/auth"
	"iamcore/internal/projection"
	"iamcore/pkg/eventstore"
)

// Config bundles every component's configuration, loaded once at process
// startup.
type Config struct {
	DatabaseDSN string
	RedisAddr   string
	RedisDB     int

	InstanceID string
	WorkerID   uint16

	Eventstore     eventstore.Config
	ProjectionBase projection.Config

	SessionTTL time.Duration
	Token      TokenConfig
	Password   auth.PasswordPolicy

	HealthPort string
}

// TokenConfig mirrors session.TokenConfig without importing the secret
// bytes directly into an env-var struct the rest of the module reads.
type TokenConfig struct {
	Secret     string
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Load reads Config from the environment, applying the defaults named in
// §6.5 wherever a variable is unset.
func Load() (Config, error) {
	workerID, err := parseUint16(os.Getenv("IAMCORE_WORKER_ID"), 0)
	if err != nil {
		return Config{}, fmt.Errorf("config: IAMCORE_WORKER_ID: %w", err)
	}

	maxBatch, err := parseInt(os.Getenv("EVENTSTORE_MAX_PUSH_BATCH_SIZE"), 100)
	if err != nil {
		return Config{}, fmt.Errorf("config: EVENTSTORE_MAX_PUSH_BATCH_SIZE: %w", err)
	}
	pushTimeout, err := parseInt(os.Getenv("EVENTSTORE_PUSH_TIMEOUT_SECONDS"), 30)
	if err != nil {
		return Config{}, fmt.Errorf("config: EVENTSTORE_PUSH_TIMEOUT_SECONDS: %w", err)
	}

	projBatch, err := parseInt(os.Getenv("PROJECTION_BATCH_SIZE"), 100)
	if err != nil {
		return Config{}, fmt.Errorf("config: PROJECTION_BATCH_SIZE: %w", err)
	}
	projInterval, err := parseDuration(os.Getenv("PROJECTION_INTERVAL"), time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("config: PROJECTION_INTERVAL: %w", err)
	}
	projMaxRetries, err := parseInt(os.Getenv("PROJECTION_MAX_RETRIES"), 5)
	if err != nil {
		return Config{}, fmt.Errorf("config: PROJECTION_MAX_RETRIES: %w", err)
	}
	projRetryDelay, err := parseDuration(os.Getenv("PROJECTION_RETRY_DELAY"), time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("config: PROJECTION_RETRY_DELAY: %w", err)
	}

	sessionTTL, err := parseDuration(os.Getenv("SESSION_TTL"), 24*time.Hour)
	if err != nil {
		return Config{}, fmt.Errorf("config: SESSION_TTL: %w", err)
	}
	accessTTL, err := parseDuration(os.Getenv("TOKEN_ACCESS_TTL"), 15*time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("config: TOKEN_ACCESS_TTL: %w", err)
	}
	refreshTTL, err := parseDuration(os.Getenv("TOKEN_REFRESH_TTL"), 7*24*time.Hour)
	if err != nil {
		return Config{}, fmt.Errorf("config: TOKEN_REFRESH_TTL: %w", err)
	}

	minLength, err := parseInt(os.Getenv("PASSWORD_MIN_LENGTH"), auth.DefaultPasswordPolicy.MinLength)
	if err != nil {
		return Config{}, fmt.Errorf("config: PASSWORD_MIN_LENGTH: %w", err)
	}

	redisDB, err := parseInt(os.Getenv("REDIS_DB"), 0)
	if err != nil {
		return Config{}, fmt.Errorf("config: REDIS_DB: %w", err)
	}

	instanceID := getEnv("IAMCORE_INSTANCE_ID", "default")
	tokenSecret := os.Getenv("TOKEN_SECRET")
	if tokenSecret == "" {
		return Config{}, fmt.Errorf("config: TOKEN_SECRET must be set")
	}

	return Config{
		DatabaseDSN: buildDSN(),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:     redisDB,
		InstanceID:  instanceID,
		WorkerID:    workerID,
		Eventstore: eventstore.Config{
			InstanceID:         instanceID,
			MaxPushBatchSize:   maxBatch,
			PushTimeoutSeconds: pushTimeout,
		},
		ProjectionBase: projection.Config{
			BatchSize:     projBatch,
			Interval:      projInterval,
			MaxRetries:    projMaxRetries,
			RetryDelay:    projRetryDelay,
			EnableLocking: true,
			InstanceID:    instanceID,
		},
		SessionTTL: sessionTTL,
		Token: TokenConfig{
			Secret:     tokenSecret,
			Issuer:     getEnv("TOKEN_ISSUER", "iamcore"),
			Audience:   getEnv("TOKEN_AUDIENCE", "iamcore"),
			AccessTTL:  accessTTL,
			RefreshTTL: refreshTTL,
		},
		Password: auth.PasswordPolicy{
			MinLength:        minLength,
			RequireUppercase: getEnvBool("PASSWORD_REQUIRE_UPPERCASE", true),
			RequireLowercase: getEnvBool("PASSWORD_REQUIRE_LOWERCASE", true),
			RequireNumber:    getEnvBool("PASSWORD_REQUIRE_NUMBER", true),
			RequireSymbol:    getEnvBool("PASSWORD_REQUIRE_SYMBOL", false),
		},
		HealthPort: getEnv("HEALTH_PORT", "8080"),
	}, nil
}

func buildDSN() string {
	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "iamcore")
	password := getEnv("DB_PASSWORD", "iamcore")
	name := getEnv("DB_NAME", "iamcore")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func parseUint16(raw string, fallback uint16) (uint16, error) {
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	return time.ParseDuration(raw)
}
