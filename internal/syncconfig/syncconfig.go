// Package syncconfig loads till's settings. Precedence is TILL_* environment
// variables, then ~/.config/till/config.json, then built-in defaults.
package syncconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marcus/till/internal/db"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TILL_SYNC_URL.
const EnvPrefix = "TILL"

// SyncConfig holds sync-related settings.
type SyncConfig struct {
	URL           string        `mapstructure:"url"`
	APIKey        string        `mapstructure:"api_key"`
	RetryCeiling  int           `mapstructure:"retry_ceiling"`
	Interval      time.Duration `mapstructure:"interval"`
	EntryTimeout  time.Duration `mapstructure:"entry_timeout"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	Auto          bool          `mapstructure:"auto"` // sync after mutating commands
}

// DBConfig locates the local store.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig controls slog output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
	File   string `mapstructure:"file"`   // empty logs to stderr
}

// Config is the full till configuration.
type Config struct {
	Sync SyncConfig `mapstructure:"sync"`
	DB   DBConfig   `mapstructure:"db"`
	Log  LogConfig  `mapstructure:"log"`
}

const defaultServerURL = "http://localhost:8080"

// ConfigDir returns ~/.config/till, creating it if necessary.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "till")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// ConfigPath returns the config file path. TILL_CONFIG overrides it.
func ConfigPath() (string, error) {
	if p := os.Getenv(EnvPrefix + "_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return db.DefaultFile
	}
	return filepath.Join(home, ".local", "share", "till", db.DefaultFile)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("sync.url", defaultServerURL)
	v.SetDefault("sync.api_key", "")
	v.SetDefault("sync.retry_ceiling", 5)
	v.SetDefault("sync.interval", 60*time.Second)
	v.SetDefault("sync.entry_timeout", 15*time.Second)
	v.SetDefault("sync.probe_interval", 10*time.Second)
	v.SetDefault("sync.auto", true)
	v.SetDefault("db.path", defaultDBPath())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// readFile loads path into v. A missing file is not an error.
func readFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Load reads the configuration.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads the configuration with path as the config file.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	if err := readFile(v, path); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the sync engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Sync.RetryCeiling < 1:
		return fmt.Errorf("sync.retry_ceiling must be at least 1, got %d", c.Sync.RetryCeiling)
	case c.Sync.Interval <= 0:
		return fmt.Errorf("sync.interval must be positive")
	case c.Sync.EntryTimeout <= 0:
		return fmt.Errorf("sync.entry_timeout must be positive")
	case c.Sync.ProbeInterval <= 0:
		return fmt.Errorf("sync.probe_interval must be positive")
	case c.DB.Path == "":
		return fmt.Errorf("db.path is required")
	}
	return nil
}

// Keys lists the settable keys in display order.
var Keys = []string{
	"sync.url", "sync.api_key", "sync.retry_ceiling", "sync.interval",
	"sync.entry_timeout", "sync.probe_interval", "sync.auto",
	"db.path", "log.level", "log.format", "log.file",
}

func knownKey(key string) bool {
	for _, k := range Keys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the effective value of key as a string.
func Get(key string) (string, error) {
	if !knownKey(key) {
		return "", fmt.Errorf("unknown config key %q", key)
	}
	path, err := ConfigPath()
	if err != nil {
		return "", err
	}
	v := newViper()
	if err := readFile(v, path); err != nil {
		return "", err
	}
	return v.GetString(key), nil
}

// Set writes key=value to the config file, keeping the other keys in it.
// The result must still validate.
func Set(key, value string) error {
	if !knownKey(key) {
		return fmt.Errorf("unknown config key %q", key)
	}
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	// file-only view so defaults and env overrides are not persisted
	file := viper.New()
	if err := readFile(file, path); err != nil {
		return err
	}
	file.Set(key, value)

	check := newViper()
	if err := check.MergeConfigMap(file.AllSettings()); err != nil {
		return fmt.Errorf("merge config: %w", err)
	}
	var cfg Config
	if err := check.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return file.WriteConfigAs(path)
}
