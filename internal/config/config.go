package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// IMAPConfig holds the connection settings for one remote IMAP store.
type IMAPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`

	// Insecure disables TLS certificate verification. Intended for
	// test servers only.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// PoolSize bounds the number of concurrent IMAP sessions.
	PoolSize int `mapstructure:"pool_size" yaml:"pool_size"`
}

// AccountConfig holds configuration for a single synchronized account.
type AccountConfig struct {
	Name string `mapstructure:"name" yaml:"name"`

	// Sync gates the engine: accounts with Sync false are never touched.
	Sync bool `mapstructure:"sync" yaml:"sync"`

	// SyncRoot overrides the global sync root for this account.
	SyncRoot string `mapstructure:"sync_root" yaml:"sync_root"`

	// PageSize is the default envelope listing page size for the CLI.
	PageSize int `mapstructure:"page_size" yaml:"page_size"`

	IMAP IMAPConfig `mapstructure:"imap" yaml:"imap"`
}

// Config is the top-level application configuration.
type Config struct {
	// SyncRoot is the directory holding one maildir tree and one cache
	// store per account. Empty means the platform data directory.
	SyncRoot string `mapstructure:"sync_root" yaml:"sync_root"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	Accounts []AccountConfig `mapstructure:"accounts" yaml:"accounts"`
}

// DefaultConfigPath returns ~/.config/driftmail/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "driftmail", "config.yaml")
}

// Load reads the configuration from the given YAML file, applying
// DRIFTMAIL_* environment overrides, and validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DRIFTMAIL")
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account must be configured")
	}

	seen := make(map[string]bool, len(c.Accounts))
	for i := range c.Accounts {
		acc := &c.Accounts[i]
		if acc.Name == "" {
			return fmt.Errorf("account %d: name is required", i+1)
		}
		if seen[acc.Name] {
			return fmt.Errorf("account %s: duplicate name", acc.Name)
		}
		seen[acc.Name] = true

		if acc.IMAP.Host == "" {
			return fmt.Errorf("account %s: imap host is required", acc.Name)
		}
		if acc.IMAP.Port == 0 {
			acc.IMAP.Port = 993
		}
		if acc.IMAP.Port < 1 || acc.IMAP.Port > 65535 {
			return fmt.Errorf("account %s: invalid imap port %d", acc.Name, acc.IMAP.Port)
		}
		if acc.IMAP.Username == "" {
			return fmt.Errorf("account %s: imap username is required", acc.Name)
		}
		if acc.IMAP.PoolSize == 0 {
			acc.IMAP.PoolSize = 3
		}
		if acc.IMAP.PoolSize < 1 {
			return fmt.Errorf("account %s: invalid imap pool size %d", acc.Name, acc.IMAP.PoolSize)
		}
	}

	return nil
}

// GetAccountByName finds an account by name.
func (c *Config) GetAccountByName(name string) (*AccountConfig, error) {
	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			return &c.Accounts[i], nil
		}
	}
	return nil, fmt.Errorf("account not found: %s", name)
}

// AccountNames returns the names of all configured accounts.
func (c *Config) AccountNames() []string {
	names := make([]string, len(c.Accounts))
	for i := range c.Accounts {
		names[i] = c.Accounts[i].Name
	}
	return names
}
