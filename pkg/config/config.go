// Package config handles scenegraph configuration from YAML files and
// environment variables.
//
// Settings start from DefaultConfig, are overlaid by an optional YAML file and
// finally by SCENEGRAPH_* environment variables, which always win.
//
// Example Usage:
//
//	cfg, err := config.LoadFromEnvOrFile("./scenegraph.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//	logger, _ := config.NewLogger(cfg.Logging)
//
// Environment Variables:
//   - SCENEGRAPH_DATA_DIR="./data"
//   - SCENEGRAPH_IN_MEMORY=true
//   - SCENEGRAPH_SYNC_WRITES=true
//   - SCENEGRAPH_PASSPHRASE=secret
//   - SCENEGRAPH_WARM_WORKERS=8
//   - SCENEGRAPH_WARM_TIMEOUT=30s
//   - SCENEGRAPH_POOL_ENABLED=true
//   - SCENEGRAPH_POOL_MAX_SIZE=4096
//   - SCENEGRAPH_LOG_LEVEL=debug
//   - SCENEGRAPH_LOG_FORMAT=json|console
//   - SCENEGRAPH_LOG_OUTPUT=stderr
//   - SCENEGRAPH_LOG_DEVELOPMENT=true
//   - SCENEGRAPH_METRICS_ENABLED=true
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/orneryd/scenegraph/pkg/pool"
)

// ErrInvalidConfig is returned by Validate and wrapped with the offending setting.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all scenegraph configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Pool    PoolConfig    `yaml:"pool"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StorageConfig selects and tunes the snapshot engine.
type StorageConfig struct {
	// DataDir is the BadgerDB directory. Ignored when InMemory is set.
	DataDir string `yaml:"data_dir"`
	// InMemory keeps snapshots in process memory only.
	InMemory bool `yaml:"in_memory"`
	// SyncWrites forces fsync on every save.
	SyncWrites bool `yaml:"sync_writes"`
	// Passphrase enables encryption at rest for the BadgerDB directory.
	Passphrase string `yaml:"passphrase"`
}

// CacheConfig tunes flattened cache warming.
type CacheConfig struct {
	// WarmWorkers bounds parallel cache fills; 0 means GOMAXPROCS.
	WarmWorkers int `yaml:"warm_workers"`
	// WarmTimeout bounds a whole warm pass; 0 disables the limit.
	WarmTimeout time.Duration `yaml:"warm_timeout"`
}

// PoolConfig mirrors pool.PoolConfig.
type PoolConfig struct {
	Enabled bool `yaml:"enabled"`
	MaxSize int  `yaml:"max_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level (debug, info, warn, error)
	Level string `yaml:"level"`
	// Format (json, console)
	Format string `yaml:"format"`
	// Output path (stdout, stderr, or file path)
	Output string `yaml:"output"`
	// Development makes DPanic panic and enables stack traces on warnings.
	Development bool `yaml:"development"`
}

// MetricsConfig controls the metrics report printed by the CLI.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir: "./data",
		},
		Cache: CacheConfig{
			WarmTimeout: 30 * time.Second,
		},
		Pool: PoolConfig{
			Enabled: true,
			MaxSize: 4096,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
	}
}

// LoadConfig loads configuration from a YAML file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv returns the defaults overridden by environment variables.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()
	cfg.ApplyEnv()
	return cfg
}

// LoadFromEnvOrFile loads path (if non-empty) and then applies environment
// overrides. Environment variables take precedence over file settings.
func LoadFromEnvOrFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadConfig(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides c with any SCENEGRAPH_* variables that are set.
func (c *Config) ApplyEnv() {
	c.Storage.DataDir = getEnv("SCENEGRAPH_DATA_DIR", c.Storage.DataDir)
	c.Storage.InMemory = getEnvBool("SCENEGRAPH_IN_MEMORY", c.Storage.InMemory)
	c.Storage.SyncWrites = getEnvBool("SCENEGRAPH_SYNC_WRITES", c.Storage.SyncWrites)
	c.Storage.Passphrase = getEnv("SCENEGRAPH_PASSPHRASE", c.Storage.Passphrase)

	c.Cache.WarmWorkers = getEnvInt("SCENEGRAPH_WARM_WORKERS", c.Cache.WarmWorkers)
	c.Cache.WarmTimeout = getEnvDuration("SCENEGRAPH_WARM_TIMEOUT", c.Cache.WarmTimeout)

	c.Pool.Enabled = getEnvBool("SCENEGRAPH_POOL_ENABLED", c.Pool.Enabled)
	c.Pool.MaxSize = getEnvInt("SCENEGRAPH_POOL_MAX_SIZE", c.Pool.MaxSize)

	c.Logging.Level = getEnv("SCENEGRAPH_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("SCENEGRAPH_LOG_FORMAT", c.Logging.Format)
	c.Logging.Output = getEnv("SCENEGRAPH_LOG_OUTPUT", c.Logging.Output)
	c.Logging.Development = getEnvBool("SCENEGRAPH_LOG_DEVELOPMENT", c.Logging.Development)

	c.Metrics.Enabled = getEnvBool("SCENEGRAPH_METRICS_ENABLED", c.Metrics.Enabled)
}

// Validate checks the configuration for invalid values.
//
// Returns nil if configuration is valid, or an error wrapping ErrInvalidConfig.
func (c *Config) Validate() error {
	if !c.Storage.InMemory && c.Storage.DataDir == "" {
		return fmt.Errorf("%w: data dir required unless storage is in memory", ErrInvalidConfig)
	}
	if c.Cache.WarmWorkers < 0 {
		return fmt.Errorf("%w: warm workers must not be negative: %d", ErrInvalidConfig, c.Cache.WarmWorkers)
	}
	if c.Cache.WarmTimeout < 0 {
		return fmt.Errorf("%w: warm timeout must not be negative: %s", ErrInvalidConfig, c.Cache.WarmTimeout)
	}
	if c.Pool.Enabled && c.Pool.MaxSize <= 0 {
		return fmt.Errorf("%w: pool max size must be positive: %d", ErrInvalidConfig, c.Pool.MaxSize)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: log format %q", ErrInvalidConfig, c.Logging.Format)
	}
	return nil
}

// String returns a short representation of the Config for logging.
func (c *Config) String() string {
	storage := c.Storage.DataDir
	if c.Storage.InMemory {
		storage = "memory"
	}
	return fmt.Sprintf(
		"Config{Storage: %s, WarmWorkers: %d, Pool: %v/%d, Log: %s/%s, Metrics: %v}",
		storage,
		c.Cache.WarmWorkers,
		c.Pool.Enabled, c.Pool.MaxSize,
		c.Logging.Level, c.Logging.Format,
		c.Metrics.Enabled,
	)
}

// ApplyPool installs the pool settings process-wide.
func (c *Config) ApplyPool() {
	pool.Configure(pool.PoolConfig{
		Enabled: c.Pool.Enabled,
		MaxSize: c.Pool.MaxSize,
	})
}

// NewLogger builds a zap logger from cfg.
func NewLogger(cfg LoggingConfig) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: log level %q", ErrInvalidConfig, cfg.Level)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if cfg.Format != "" {
		zc.Encoding = cfg.Format
	}
	if cfg.Output != "" {
		zc.OutputPaths = []string{cfg.Output}
	}
	zc.ErrorOutputPaths = []string{"stderr"}

	return zc.Build()
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// Try parsing as seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}
