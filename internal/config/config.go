// Package config loads host configuration from a YAML file with environment
// variable overrides. Environment variables take precedence over file values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is consulted when VERIFYWISE_CONFIG is unset.
const DefaultConfigPath = "/etc/verifywise/pluginhost.yml"

// Config holds all plugin host settings.
type Config struct {
	// HTTPHost and HTTPPort define the listen address of the plugin API.
	HTTPHost string `yaml:"http_host"`
	HTTPPort int    `yaml:"http_port"`

	// StorageDriver selects the persistence backend: memory, sqlite, postgres.
	StorageDriver string `yaml:"storage_driver"`
	// PostgresDSN is required when StorageDriver is postgres.
	PostgresDSN string `yaml:"postgres_dsn"`
	// SQLitePath is required when StorageDriver is sqlite.
	SQLitePath string `yaml:"sqlite_path"`

	// BlobDriver selects the upload backend: memory, fs, s3.
	BlobDriver string `yaml:"blob_driver"`
	BlobDir    string `yaml:"blob_dir"`
	BlobBucket string `yaml:"blob_bucket"`
	BlobPrefix string `yaml:"blob_prefix"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	// sources tracks where each value came from: default, file, environment.
	sources map[string]string
}

func newDefault() *Config {
	return &Config{
		HTTPHost:      "0.0.0.0",
		HTTPPort:      8085,
		StorageDriver: "memory",
		BlobDriver:    "memory",
		LogLevel:      "info",
		sources:       make(map[string]string),
	}
}

// Load reads configuration from the YAML file at VERIFYWISE_CONFIG (or the
// default path) when present, then applies environment overrides.
func Load() (*Config, error) {
	cfg := newDefault()

	path := os.Getenv("VERIFYWISE_CONFIG")
	if path == "" {
		path = DefaultConfigPath
	}
	if data, err := os.ReadFile(path); err == nil {
		var file Config
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		cfg.applyFileConfig(&file)
	}

	cfg.applyEnvConfig()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFileConfig(file *Config) {
	if file.HTTPHost != "" {
		c.HTTPHost = file.HTTPHost
		c.sources["http_host"] = "file"
	}
	if file.HTTPPort != 0 {
		c.HTTPPort = file.HTTPPort
		c.sources["http_port"] = "file"
	}
	if file.StorageDriver != "" {
		c.StorageDriver = file.StorageDriver
		c.sources["storage_driver"] = "file"
	}
	if file.PostgresDSN != "" {
		c.PostgresDSN = file.PostgresDSN
		c.sources["postgres_dsn"] = "file"
	}
	if file.SQLitePath != "" {
		c.SQLitePath = file.SQLitePath
		c.sources["sqlite_path"] = "file"
	}
	if file.BlobDriver != "" {
		c.BlobDriver = file.BlobDriver
		c.sources["blob_driver"] = "file"
	}
	if file.BlobDir != "" {
		c.BlobDir = file.BlobDir
		c.sources["blob_dir"] = "file"
	}
	if file.BlobBucket != "" {
		c.BlobBucket = file.BlobBucket
		c.sources["blob_bucket"] = "file"
	}
	if file.BlobPrefix != "" {
		c.BlobPrefix = file.BlobPrefix
		c.sources["blob_prefix"] = "file"
	}
	if file.LogLevel != "" {
		c.LogLevel = file.LogLevel
		c.sources["log_level"] = "file"
	}
	if file.LogFile != "" {
		c.LogFile = file.LogFile
		c.sources["log_file"] = "file"
	}
}

func (c *Config) applyEnvConfig() {
	if val := os.Getenv("VERIFYWISE_HTTP_HOST"); val != "" {
		c.HTTPHost = val
		c.sources["http_host"] = "environment"
	}
	if val := os.Getenv("VERIFYWISE_HTTP_PORT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.HTTPPort = i
			c.sources["http_port"] = "environment"
		}
	}
	if val := os.Getenv("VERIFYWISE_STORAGE_DRIVER"); val != "" {
		c.StorageDriver = val
		c.sources["storage_driver"] = "environment"
	}
	if val := os.Getenv("VERIFYWISE_POSTGRES_DSN"); val != "" {
		c.PostgresDSN = val
		c.sources["postgres_dsn"] = "environment"
	}
	if val := os.Getenv("VERIFYWISE_SQLITE_PATH"); val != "" {
		c.SQLitePath = val
		c.sources["sqlite_path"] = "environment"
	}
	if val := os.Getenv("VERIFYWISE_BLOB_DRIVER"); val != "" {
		c.BlobDriver = val
		c.sources["blob_driver"] = "environment"
	}
	if val := os.Getenv("VERIFYWISE_BLOB_DIR"); val != "" {
		c.BlobDir = val
		c.sources["blob_dir"] = "environment"
	}
	if val := os.Getenv("VERIFYWISE_BLOB_BUCKET"); val != "" {
		c.BlobBucket = val
		c.sources["blob_bucket"] = "environment"
	}
	if val := os.Getenv("VERIFYWISE_BLOB_PREFIX"); val != "" {
		c.BlobPrefix = val
		c.sources["blob_prefix"] = "environment"
	}
	if val := os.Getenv("VERIFYWISE_LOG_LEVEL"); val != "" {
		c.LogLevel = val
		c.sources["log_level"] = "environment"
	}
	if val := os.Getenv("VERIFYWISE_LOG_FILE"); val != "" {
		c.LogFile = val
		c.sources["log_file"] = "environment"
	}
}

// Source returns the source of a configuration attribute.
func (c *Config) Source(name string) string {
	if s, ok := c.sources[name]; ok {
		return s
	}
	return "default"
}

// ListenAddr returns the host:port pair for the HTTP listener.
func (c *Config) ListenAddr() string {
	return c.HTTPHost + ":" + strconv.Itoa(c.HTTPPort)
}

// Validate checks driver selections and their required companions.
func (c *Config) Validate() error {
	switch strings.ToLower(c.StorageDriver) {
	case "memory":
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("storage_driver sqlite requires sqlite_path")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("storage_driver postgres requires postgres_dsn")
		}
	default:
		return fmt.Errorf("unknown storage_driver %q", c.StorageDriver)
	}
	switch strings.ToLower(c.BlobDriver) {
	case "memory":
	case "fs":
		if c.BlobDir == "" {
			return fmt.Errorf("blob_driver fs requires blob_dir")
		}
	case "s3":
		if c.BlobBucket == "" {
			return fmt.Errorf("blob_driver s3 requires blob_bucket")
		}
	default:
		return fmt.Errorf("unknown blob_driver %q", c.BlobDriver)
	}
	return nil
}
