package config_test

import (
	"testing"
	"time"

	"github.com/agrisense/geogateway/internal/config"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "test-secret")

	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, "DEV", cfg.Env)
	require.True(t, cfg.IsDev())
	require.Equal(t, ":8080", cfg.Addr())
	require.Equal(t, time.Hour, cfg.Auth.AccessTokenExpiry)
	require.Equal(t, "memory", cfg.Tiles.StoreBackend)
}

func TestLoadMissingSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := config.Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownStoreBackend(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	t.Setenv("TILE_STORE_BACKEND", "redis")

	_, err := config.Load()
	require.Error(t, err)
}

func TestAddrAlreadyPrefixed(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	t.Setenv("PORT", ":9999")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Addr())
}
