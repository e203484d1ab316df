package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazar/backend/internal/config"
	"bazar/backend/internal/store/memory"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func cleanEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DATABASE_URL", "REDIS_ADDR", "AUTH_SECRET", "SEED_ADMIN_PASSWORD", "APP_ENV", "ALLOWED_ORIGIN"} {
		t.Setenv(key, "")
	}
	t.Setenv("LOG_LEVEL", "error")
}

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_SECRET")
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	require.NoError(t, validateSecurityConfig(config.Config{AuthSecret: strongSecret, AllowedOrigin: "https://bazar.example"}))
}

func TestValidateSecurityConfigRejectsWildcardOriginInProduction(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, AppEnv: "production", AllowedOrigin: "*"})
	require.Error(t, err)
}

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "migrate", "seed", "sweep-overdue"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestServeRefusesWeakSecret(t *testing.T) {
	cleanEnv(t)
	t.Setenv("AUTH_SECRET", "too-short")

	root := newRootCmd()
	root.SetArgs([]string{"serve"})
	root.SetOut(&bytes.Buffer{})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid security configuration")
}

func TestOneShotCommandsRequireDatabase(t *testing.T) {
	cleanEnv(t)
	for _, name := range []string{"migrate", "seed", "sweep-overdue"} {
		root := newRootCmd()
		root.SetArgs([]string{name})
		root.SetOut(&bytes.Buffer{})
		err := root.Execute()
		require.ErrorIs(t, err, errDatabaseRequired, name)
	}
}

func TestOpenRepositoryFallsBackToMemory(t *testing.T) {
	a := &app{log: zerolog.Nop()}

	repo, closers, err := a.openRepository(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, closers)
	assert.IsType(t, &memory.Store{}, repo)

	dashboardCache, closeCache := a.openCache(context.Background())
	assert.Nil(t, dashboardCache)
	assert.Nil(t, closeCache)
}
