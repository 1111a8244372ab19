package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CREDENTIAL_SECRET", "0123456789abcdef")
	t.Setenv("IDEMPOTENCY_TTL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, "local", cfg.NotifyMode)
	assert.Equal(t, 4, cfg.NotifyWorkers)
	assert.Equal(t, 12*time.Hour, cfg.ScannerSessionTTL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CREDENTIAL_SECRET", "0123456789abcdef")
	t.Setenv("NOTIFY_WORKERS", "9")
	t.Setenv("CATALOG_CACHE_TTL", "2m")
	t.Setenv("LEDGER_BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.NotifyWorkers)
	assert.Equal(t, 2*time.Minute, cfg.CatalogCacheTTL)
	assert.Equal(t, "memory", cfg.LedgerBackend)
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("CREDENTIAL_SECRET", "short")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("CREDENTIAL_SECRET", "0123456789abcdef")
	t.Setenv("LEDGER_BACKEND", "sqlite")
	_, err := Load()
	require.Error(t, err)
}
