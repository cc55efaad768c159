// Package config provides configuration management for the FakeS3 server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable override.
const EnvPrefix = "FAKES3"

// Config holds the server configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Address      string        `mapstructure:"address"`
	MaxBodySize  int64         `mapstructure:"max_body_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// StorageConfig holds storage backend settings.
type StorageConfig struct {
	DataDir        string `mapstructure:"data_dir"`
	MergeChunkSize int    `mapstructure:"merge_chunk_size"`
	ReadChunkSize  int    `mapstructure:"read_chunk_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	dataDir := "s3store"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, "s3store")
	}

	return &Config{
		Server: ServerConfig{
			Port:         10001,
			Address:      "0.0.0.0",
			MaxBodySize:  512 << 20,
			ReadTimeout:  600 * time.Second,
			WriteTimeout: 9000 * time.Second,
		},
		Storage: StorageConfig{
			DataDir:        dataDir,
			MergeChunkSize: 32 << 20,
			ReadChunkSize:  2 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must be positive: %d", c.Server.MaxBodySize))
	}
	if c.Storage.DataDir == "" {
		errs = append(errs, errors.New("storage.data_dir is required"))
	}
	if c.Storage.MergeChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("storage.merge_chunk_size must be positive: %d", c.Storage.MergeChunkSize))
	}
	if c.Storage.ReadChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("storage.read_chunk_size must be positive: %d", c.Storage.ReadChunkSize))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path must start with '/': %q", c.Metrics.Path))
	}
	return errors.Join(errs...)
}

// newViper returns a viper instance seeded with defaults and environment overrides.
func newViper(cfg *Config) *viper.Viper {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.address", cfg.Server.Address)
	v.SetDefault("server.max_body_size", cfg.Server.MaxBodySize)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("storage.data_dir", cfg.Storage.DataDir)
	v.SetDefault("storage.merge_chunk_size", cfg.Storage.MergeChunkSize)
	v.SetDefault("storage.read_chunk_size", cfg.Storage.ReadChunkSize)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.path", cfg.Metrics.Path)

	// Enable environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads configuration from environment variables and config file.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	v := newViper(cfg)

	// Read config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/fakes3")
	v.AddConfigPath("$HOME/.fakes3")

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file. Environment variables still win.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	v := newViper(cfg)
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
