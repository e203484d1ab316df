package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.AuthSecret)
	assert.Error(t, cfg.ValidateAuth())
}

func TestLoadAppliesDefaults(t *testing.T) {
	unsetEnv(t, "PORT", "ACCESS_TOKEN_TTL", "LOGIN_MAX_ATTEMPTS", "LOGIN_LOCK_DURATION", "INVOICE_DUE_DAYS", "DEFAULT_TAX_RATE", "APP_ENV")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, 168*time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 5, cfg.LoginMaxAttempts)
	assert.Equal(t, 2*time.Hour, cfg.LoginLockDuration)
	assert.Equal(t, 30, cfg.InvoiceDueDays)
	assert.Equal(t, "19", cfg.DefaultTaxRate.String())
	assert.False(t, cfg.IsProduction())
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "Production")
	t.Setenv("PORT", "9090")
	t.Setenv("LOGIN_LOCK_DURATION", "15m")
	t.Setenv("AUTH_SECRET", "  "+strings.Repeat("k", 40)+"  ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, ":9090", cfg.Address())
	assert.Equal(t, 15*time.Minute, cfg.LoginLockDuration)
	assert.NoError(t, cfg.ValidateAuth())
}

func TestValidateAuthRejectsShortSecret(t *testing.T) {
	cfg := Config{AuthSecret: "short"}
	assert.ErrorContains(t, cfg.ValidateAuth(), "at least 32")
}

// unsetEnv removes keys for the duration of the test; an empty value would
// be parsed rather than defaulted.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}
