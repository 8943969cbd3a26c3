// Package config provides configuration management for the timereport CLI.
// It supports loading configuration from a YAML file, environment variables,
// and command-line flags.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultTimeout    = 2 * time.Minute
	DefaultPageSize   = 100
	DefaultConfigDir  = ".timereport"
	DefaultConfigFile = "config.yaml"
)

// Config holds the timereport CLI configuration.
type Config struct {
	// URL is the base URL of the Redmine instance, e.g. "https://projects.nbis.se".
	URL string `yaml:"url"`

	// APIKey is the Redmine API key. Prefer storing it in the system
	// keyring via `timereport auth login`; this field is a fallback for
	// environments without a keyring.
	APIKey string `yaml:"api_key,omitempty"`

	// Timeout is the per-request timeout for Redmine API calls.
	Timeout time.Duration `yaml:"-"`

	// PageSize is the pagination limit for Redmine list endpoints.
	PageSize int `yaml:"page_size,omitempty"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Timeout:  DefaultTimeout,
		PageSize: DefaultPageSize,
	}
}

// ConfigDir returns the configuration directory path.
// Uses $TIMEREPORT_CONFIG_DIR if set, otherwise ~/.timereport
func ConfigDir() (string, error) {
	if dir := os.Getenv("TIMEREPORT_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the CLI configuration from file and environment variables.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.timereport/config.yaml or $TIMEREPORT_CONFIG_DIR/config.yaml)
// 3. Environment variables (TIMEREPORT_URL, TIMEREPORT_API_KEY, ...)
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	// Temp struct so the timeout can be written as a duration string.
	type configFile struct {
		URL      string `yaml:"url"`
		APIKey   string `yaml:"api_key"`
		Timeout  string `yaml:"timeout"`
		PageSize int    `yaml:"page_size"`
		Debug    bool   `yaml:"debug"`
	}

	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	if file.URL != "" {
		cfg.URL = file.URL
	}
	if file.APIKey != "" {
		cfg.APIKey = file.APIKey
	}
	if file.Timeout != "" {
		d, err := time.ParseDuration(file.Timeout)
		if err != nil {
			return fmt.Errorf("parsing timeout %q: %w", file.Timeout, err)
		}
		cfg.Timeout = d
	}
	if file.PageSize > 0 {
		cfg.PageSize = file.PageSize
	}
	if file.Debug {
		cfg.Debug = true
	}

	return nil
}

// loadFromEnv overlays configuration from environment variables.
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("TIMEREPORT_URL"); v != "" {
		cfg.URL = v
	}
	if v := os.Getenv("TIMEREPORT_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("TIMEREPORT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
		}
	}
	if v := os.Getenv("TIMEREPORT_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PageSize = n
		}
	}
	if v := os.Getenv("TIMEREPORT_DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid Redmine URL %q", c.URL)
		}
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", c.PageSize)
	}
	return nil
}

// Save writes the configuration to the config file, creating the
// configuration directory if needed.
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	type configFile struct {
		URL      string `yaml:"url,omitempty"`
		APIKey   string `yaml:"api_key,omitempty"`
		Timeout  string `yaml:"timeout,omitempty"`
		PageSize int    `yaml:"page_size,omitempty"`
		Debug    bool   `yaml:"debug,omitempty"`
	}

	file := configFile{
		URL:      c.URL,
		APIKey:   c.APIKey,
		PageSize: c.PageSize,
		Debug:    c.Debug,
	}
	if c.Timeout != DefaultTimeout {
		file.Timeout = c.Timeout.String()
	}

	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFile)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
