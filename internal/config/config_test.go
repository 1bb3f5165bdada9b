package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LISTEN_ADDR", "PERSISTENCE_DRIVER", "POSTGRES_DSN", "ALLOWED_ORIGINS",
		"HISTORY_MAX", "SAVE_INTERVAL", "OUTBOUND_QUEUE_SIZE", "RATE_LIMIT_PER_SEC",
		"LOAD_TIMEOUT", "SAVE_TIMEOUT", "DEBUG",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_DefaultsWhenNoEnvSet(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "memory", cfg.PersistenceDriver)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, 100, cfg.HistoryMax)
}

func TestLoad_OverlaysFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("HISTORY_MAX", "50")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 50, cfg.HistoryMax)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoad_RejectsUnknownPersistenceDriver(t *testing.T) {
	clearEnv(t)
	t.Setenv("PERSISTENCE_DRIVER", "sqlite")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RequiresPostgresDSNWhenDriverIsPostgres(t *testing.T) {
	clearEnv(t)
	t.Setenv("PERSISTENCE_DRIVER", "postgres")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsNonPositiveHistoryMax(t *testing.T) {
	clearEnv(t)
	t.Setenv("HISTORY_MAX", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsMalformedIntOverlay(t *testing.T) {
	clearEnv(t)
	t.Setenv("HISTORY_MAX", "not-a-number")

	_, err := Load()
	assert.Error(t, err)
}
