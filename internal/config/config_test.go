package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaultsWhenUnset(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "test-secret")
	for _, key := range []string{
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME",
		"EVENTSTORE_MAX_PUSH_BATCH_SIZE", "PROJECTION_BATCH_SIZE", "SESSION_TTL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Eventstore.MaxPushBatchSize)
	assert.Equal(t, 100, cfg.ProjectionBase.BatchSize)
	assert.Equal(t, "default", cfg.InstanceID)
	assert.Contains(t, cfg.DatabaseDSN, "iamcore")
}

func TestLoad_RequiresTokenSecret(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RespectsOverrides(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "test-secret")
	t.Setenv("EVENTSTORE_MAX_PUSH_BATCH_SIZE", "250")
	t.Setenv("PASSWORD_MIN_LENGTH", "12")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Eventstore.MaxPushBatchSize)
	assert.Equal(t, 12, cfg.Password.MinLength)
}
