package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ylol-app/ylol/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("YLOL_CONFIG", "")
	t.Setenv("YLOL_MODE", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.ModeLocal, cfg.Mode)
	assert.Equal(t, "memory", cfg.StorageBackend)
	assert.True(t, cfg.UseMockLLM)
	assert.Equal(t, 5, cfg.ContextWindow)
	assert.Equal(t, 800*time.Millisecond, cfg.Delivery.BaseDelayMin)
	assert.Equal(t, 1500*time.Millisecond, cfg.Delivery.BaseDelayMax)
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ylol.yaml")
	content := `
storage_backend: sqlite
sqlite_path: /tmp/test.db
context_window: 8
default_mode: challenging
delivery:
  base_delay_min: 100ms
  base_delay_max: 200ms
  settle: 10ms
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("YLOL_CONFIG", path)
	t.Setenv("YLOL_CONTEXT_WINDOW", "3")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.StorageBackend)
	assert.Equal(t, "/tmp/test.db", cfg.SQLitePath)
	assert.Equal(t, 3, cfg.ContextWindow)
	assert.Equal(t, "challenging", cfg.DefaultMode)
	assert.Equal(t, 100*time.Millisecond, cfg.Delivery.BaseDelayMin)
	assert.Equal(t, 10*time.Millisecond, cfg.Delivery.Settle)
	assert.Equal(t, 5*time.Millisecond, cfg.Delivery.PerChar)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	cfg.Mode = config.ModeGCP
	cfg.StorageBackend = "firestore"
	cfg.ContextWindow = 0
	cfg.MediaBackend = "gcs"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YLOL_GCP_PROJECT must be set")
	assert.Contains(t, err.Error(), "context window")
	assert.Contains(t, err.Error(), "YLOL_MEDIA_BUCKET")
}

func TestValidateDeliveryRange(t *testing.T) {
	cfg := config.Default()
	cfg.Delivery.BaseDelayMin = time.Second
	cfg.Delivery.BaseDelayMax = time.Millisecond

	require.ErrorContains(t, cfg.Validate(), "base delay range")
}
