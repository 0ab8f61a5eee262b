package transact

import (
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
)

// Duration wraps time.Duration so TOML values can be written as "30s", "5m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config holds file-based configuration for the coordinator, its logger,
// and the record store the surrounding process talks to.
type Config struct {
	Coordinator CoordinatorConfig `toml:"coordinator"`
	Log         LogFileConfig     `toml:"log"`
	Store       StoreConfig       `toml:"store"`
}

// CoordinatorConfig maps the [coordinator] table.
type CoordinatorConfig struct {
	Enabled    bool     `toml:"enabled"`
	Timeout    Duration `toml:"timeout"`     // default transaction timeout
	Retention  Duration `toml:"retention"`   // how long completed transactions stay in the registry
	MaxRetries int      `toml:"max_retries"` // extra attempts per failing store call
}

// LogFileConfig maps the [log] table.
type LogFileConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// StoreConfig maps the [store] table. With a base URL the process talks to a
// remote table API; without one, a local data directory is used.
type StoreConfig struct {
	BaseURL  string `toml:"base_url"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	DataDir  string `toml:"data_dir"`
}

// NewConfig returns a Config with default values.
func NewConfig() *Config {
	return &Config{
		Coordinator: CoordinatorConfig{
			Enabled:   true,
			Timeout:   Duration{DefaultTimeout},
			Retention: Duration{DefaultRetention},
		},
		Log: LogFileConfig{
			Level: "info",
		},
		Store: StoreConfig{
			DataDir: "./data",
		},
	}
}

// Load reads a TOML configuration file from the given path over the
// receiver's current values.
func (c *Config) Load(path string) error {
	_, err := toml.DecodeFile(path, c)
	return err
}

// BuildLogger constructs the logger described by the [log] table.
func (c *Config) BuildLogger() (*zap.Logger, error) {
	return NewLogger(LogConfig{
		Level:      c.Log.Level,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	})
}

// BuildCoordinator constructs a coordinator from the [coordinator] table.
func (c *Config) BuildCoordinator(logger *zap.Logger) *Coordinator {
	co := NewCoordinator(
		WithLogger(logger),
		WithRetention(c.Coordinator.Retention.Duration),
		WithDefaultTxOptions(TxOptions{
			Timeout:    c.Coordinator.Timeout.Duration,
			MaxRetries: c.Coordinator.MaxRetries,
		}),
	)
	co.SetEnabled(c.Coordinator.Enabled)
	return co
}

// BuildStore constructs the record store described by the [store] table: a
// TableStore when a base URL is configured, a FileRecordStore otherwise.
func (c *Config) BuildStore() (RecordStore, error) {
	if c.Store.BaseURL != "" {
		var opts []TableStoreOption
		if c.Store.Username != "" {
			opts = append(opts, WithBasicAuth(c.Store.Username, c.Store.Password))
		}
		return NewTableStore(c.Store.BaseURL, opts...), nil
	}
	return NewFileRecordStore(c.Store.DataDir)
}
