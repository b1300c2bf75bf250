package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJWTConfig_ExplicitSecret(t *testing.T) {
	cfg, err := NewJWTConfig("test-secret")
	require.NoError(t, err)
	assert.Equal(t, "test-secret", cfg.Secret)
	assert.Equal(t, 24*time.Hour, cfg.TTL)
}

func TestNewJWTConfig_SecretFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")
	cfg, err := NewJWTConfig("")
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Secret)
}

func TestNewJWTConfig_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := NewJWTConfig("")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "JWT secret is required")
}

func TestNewJWTConfig_ExpirationHours(t *testing.T) {
	t.Setenv("JWT_EXPIRATION_HOURS", "48")
	cfg, err := NewJWTConfig("secret")
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, cfg.TTL)
}

func TestNewJWTConfig_InvalidExpiration(t *testing.T) {
	t.Setenv("JWT_EXPIRATION_HOURS", "not-a-number")
	_, err := NewJWTConfig("secret")
	assert.Error(t, err)

	t.Setenv("JWT_EXPIRATION_HOURS", "0")
	_, err = NewJWTConfig("secret")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "at least 1")
}
