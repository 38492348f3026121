package config

import (
	"os"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
)

// Config carries the engine's tunables. Defaults are safe for tests; a
// deployment overrides them from a TOML file.
type Config struct {
	LogLevel string `toml:"log-level"`

	// Workers bounds the execution pool. Zero means
	// WorkerFactor * NumCPU; the effective pool for a batch is further
	// capped at the batch size.
	Workers      int `toml:"workers"`
	WorkerFactor int `toml:"worker-factor"`

	// TxnTimeout is the per-transaction wall-clock budget. A single
	// timeout aborts the whole batch.
	TxnTimeout Duration `toml:"txn-timeout"`

	// CommitRetries bounds durable log append attempts beyond the first.
	CommitRetries uint64 `toml:"commit-retries"`

	// LogPath is the directory for the disk-backed durable log. Empty
	// selects the in-memory log.
	LogPath string `toml:"log-path"`
}

// Duration wraps time.Duration so TOML files can say "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.WithStack(err)
	}
	d.Duration = parsed
	return nil
}

func NewDefaultConfig() *Config {
	return &Config{
		LogLevel:      getLogLevel(),
		Workers:       0,
		WorkerFactor:  2,
		TxnTimeout:    Duration{5 * time.Second},
		CommitRetries: 4,
	}
}

// LoadFromFile overlays TOML settings from path onto the defaults.
func LoadFromFile(path string) (*Config, error) {
	c := NewDefaultConfig()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.Workers < 0 {
		return errors.New("workers must not be negative")
	}
	if c.WorkerFactor <= 0 {
		return errors.New("worker-factor must be greater than 0")
	}
	if c.TxnTimeout.Duration <= 0 {
		return errors.New("txn-timeout must be greater than 0")
	}
	return nil
}

// PoolSize resolves the configured bound to a concrete worker count.
func (c *Config) PoolSize() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return c.WorkerFactor * runtime.NumCPU()
}

func getLogLevel() (logLevel string) {
	logLevel = "info"
	if l := os.Getenv("LOG_LEVEL"); len(l) != 0 {
		logLevel = l
	}
	return
}
