// ABOUTME: Sync configuration and credential management
// ABOUTME: Handles YAML config at XDG paths, environment variable overrides, and defaults
package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const (
	// AppName names the XDG config and data directories.
	AppName = "plansync"

	defaultImportHours    = 8
	defaultRequestTimeout = 30 * time.Second
)

// Config stores Graph credentials and engine settings.
type Config struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret,omitempty"`
	GraphBaseURL string `yaml:"graph_base_url,omitempty"`

	// AppBaseURL prefixes deep links written into task notes.
	AppBaseURL string `yaml:"app_base_url,omitempty"`

	// FallbackRole names the role whose default rate prices imported tasks
	// when the assignee has neither a rate nor a role.
	FallbackRole string `yaml:"fallback_role,omitempty"`

	AutoCreatePeople   bool          `yaml:"auto_create_people"`
	DefaultImportHours float64       `yaml:"default_import_hours,omitempty"`
	RequestTimeout     time.Duration `yaml:"request_timeout,omitempty"`
	DatabasePath       string        `yaml:"database_path,omitempty"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		GraphBaseURL:       defaultGraphBaseURL,
		DefaultImportHours: defaultImportHours,
		RequestTimeout:     defaultRequestTimeout,
		DatabasePath:       DefaultDatabasePath(),
	}
}

// ConfigDir returns XDG-compliant directory for configuration.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ConfigPath returns XDG-compliant path of the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultDatabasePath returns XDG-compliant path of the sqlite database.
func DefaultDatabasePath() string {
	return filepath.Join(xdg.DataHome, AppName, AppName+".db")
}

// LoadConfig loads configuration from the XDG config directory.
// Returns defaults if the file is not found.
// Environment variables override file values:
// - PLANSYNC_TENANT_ID
// - PLANSYNC_CLIENT_ID
// - PLANSYNC_CLIENT_SECRET
// - PLANSYNC_GRAPH_BASE_URL
// - PLANSYNC_APP_BASE_URL
// - PLANSYNC_FALLBACK_ROLE
// - PLANSYNC_AUTO_CREATE_PEOPLE
// - PLANSYNC_DEFAULT_HOURS.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.applyDefaults()

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PLANSYNC_TENANT_ID"); v != "" {
		cfg.TenantID = v
	}
	if v := os.Getenv("PLANSYNC_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := os.Getenv("PLANSYNC_CLIENT_SECRET"); v != "" {
		cfg.ClientSecret = v
	}
	if v := os.Getenv("PLANSYNC_GRAPH_BASE_URL"); v != "" {
		cfg.GraphBaseURL = v
	}
	if v := os.Getenv("PLANSYNC_APP_BASE_URL"); v != "" {
		cfg.AppBaseURL = v
	}
	if v := os.Getenv("PLANSYNC_FALLBACK_ROLE"); v != "" {
		cfg.FallbackRole = v
	}
	if v := os.Getenv("PLANSYNC_AUTO_CREATE_PEOPLE"); v != "" {
		cfg.AutoCreatePeople = v == "true" || v == "1"
	}
	if v := os.Getenv("PLANSYNC_DEFAULT_HOURS"); v != "" {
		if hours, err := strconv.ParseFloat(v, 64); err == nil && hours > 0 {
			cfg.DefaultImportHours = hours
		}
	}
}

func (c *Config) applyDefaults() {
	if c.GraphBaseURL == "" {
		c.GraphBaseURL = defaultGraphBaseURL
	}
	if c.DefaultImportHours <= 0 {
		c.DefaultImportHours = defaultImportHours
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.DatabasePath == "" {
		c.DatabasePath = DefaultDatabasePath()
	}
}

// SaveConfig writes configuration to the XDG config directory.
func SaveConfig(cfg *Config) error {
	path := ConfigPath()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// Restricted permissions: the file may hold the client secret
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// HasCredentials checks if Graph app credentials are present.
func (c *Config) HasCredentials() bool {
	return c.TenantID != "" && c.ClientID != "" && c.ClientSecret != ""
}
