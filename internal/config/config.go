// Package config loads karuta's configuration from a YAML file and the
// environment via viper.
//
// Lookup order: explicit flags (handled by the CLI), KARUTA_* environment
// variables, then ~/.karuta/config.yaml. A missing config file is fine; every
// value has a default except the credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/karuta-app/karuta/internal/remote"
	"github.com/spf13/viper"
)

// Config is the resolved process configuration.
type Config struct {
	// DataDir holds the local database, session file and daemon log.
	DataDir string `mapstructure:"data_dir"`

	Remote struct {
		URL     string        `mapstructure:"url"`
		Key     string        `mapstructure:"key"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"remote"`

	Anthropic struct {
		APIKey    string `mapstructure:"api_key"`
		Model     string `mapstructure:"model"`
		MaxTokens int64  `mapstructure:"max_tokens"`
	} `mapstructure:"anthropic"`

	Serve struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"serve"`

	Inbox struct {
		Dir      string        `mapstructure:"dir"`
		Debounce time.Duration `mapstructure:"debounce"`
	} `mapstructure:"inbox"`

	Log struct {
		File       string `mapstructure:"file"`
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
	} `mapstructure:"log"`
}

// DefaultDataDir returns ~/.karuta, falling back to the working directory
// when the home directory cannot be resolved.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".karuta"
	}
	return filepath.Join(home, ".karuta")
}

// Load reads the configuration. An absent config file is not an error.
func Load() (*Config, error) {
	v := viper.New()

	dataDir := DefaultDataDir()
	v.SetDefault("data_dir", dataDir)
	// Credentials default to empty so AutomaticEnv can see the keys.
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.key", "")
	v.SetDefault("remote.timeout", remote.DefaultTimeout)
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5")
	v.SetDefault("anthropic.max_tokens", int64(4096))
	v.SetDefault("serve.addr", "127.0.0.1:8417")
	v.SetDefault("inbox.dir", filepath.Join(dataDir, "inbox"))
	v.SetDefault("inbox.debounce", 500*time.Millisecond)
	v.SetDefault("log.file", filepath.Join(dataDir, "karuta.log"))
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dataDir)
	v.AddConfigPath(".")

	v.SetEnvPrefix("KARUTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return &cfg, nil
}

// DBPath returns the local database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "karuta.db")
}

// SessionPath returns the persisted session location.
func (c *Config) SessionPath() string {
	return filepath.Join(c.DataDir, "session.json")
}

// RemoteConfig adapts the remote section to the adapter's config type.
func (c *Config) RemoteConfig() remote.Config {
	return remote.Config{
		URL:     c.Remote.URL,
		Key:     c.Remote.Key,
		Timeout: c.Remote.Timeout,
	}
}
