package transact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.True(t, cfg.Coordinator.Enabled)
	assert.Equal(t, DefaultTimeout, cfg.Coordinator.Timeout.Duration)
	assert.Equal(t, DefaultRetention, cfg.Coordinator.Retention.Duration)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestConfigLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transact.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[coordinator]
enabled = true
timeout = "45s"
retention = "5m"
max_retries = 2

[log]
level = "debug"
file = "transact.log"
max_size_mb = 10

[store]
base_url = "https://example.test/api/now/table"
username = "svc_account"
password = "hunter2"
`), 0644))

	cfg := NewConfig()
	require.NoError(t, cfg.Load(path))

	assert.Equal(t, 45*time.Second, cfg.Coordinator.Timeout.Duration)
	assert.Equal(t, 5*time.Minute, cfg.Coordinator.Retention.Duration)
	assert.Equal(t, 2, cfg.Coordinator.MaxRetries)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "transact.log", cfg.Log.File)
	assert.Equal(t, "https://example.test/api/now/table", cfg.Store.BaseURL)

	store, err := cfg.BuildStore()
	require.NoError(t, err)
	assert.IsType(t, &TableStore{}, store)
}

func TestConfigLoadErrors(t *testing.T) {
	cfg := NewConfig()
	assert.Error(t, cfg.Load(filepath.Join(t.TempDir(), "nonexistent.toml")))

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[coordinator\ntimeout ="), 0644))
	assert.Error(t, cfg.Load(bad))

	invalidDuration := filepath.Join(t.TempDir(), "dur.toml")
	require.NoError(t, os.WriteFile(invalidDuration, []byte("[coordinator]\ntimeout = \"soon\"\n"), 0644))
	assert.Error(t, cfg.Load(invalidDuration))
}

func TestConfigBuildCoordinator(t *testing.T) {
	cfg := NewConfig()
	cfg.Coordinator.Timeout = Duration{90 * time.Second}
	cfg.Coordinator.MaxRetries = 1
	cfg.Coordinator.Enabled = false

	logger, err := cfg.BuildLogger()
	require.NoError(t, err)
	co := cfg.BuildCoordinator(logger)

	assert.False(t, co.Enabled())
	co.SetEnabled(true)

	tx, err := co.Begin(NewMemoryRecordStore(), nil)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, tx.Options().Timeout)
	assert.Equal(t, 1, tx.Options().MaxRetries)
}

func TestConfigBuildStoreFileFallback(t *testing.T) {
	cfg := NewConfig()
	cfg.Store.DataDir = filepath.Join(t.TempDir(), "data")

	store, err := cfg.BuildStore()
	require.NoError(t, err)
	assert.IsType(t, &FileRecordStore{}, store)
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	_, err := NewLogger(LogConfig{Level: "loud"})
	assert.Error(t, err)

	logger, err := NewLogger(LogConfig{})
	require.NoError(t, err)
	logger.Info("logger smoke test")
}
