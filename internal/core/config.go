package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	configType      = "toml"
	configEnvPrefix = "GULES"
	configFileMode  = 0o600
	configDirMode   = 0o700
	tempFilePattern = ".config-*.toml.tmp"
)

// Config is the on-disk gules configuration.
type Config struct {
	APIKey       string      `mapstructure:"api_key" toml:"api_key,omitempty"`
	APIURL       string      `mapstructure:"api_url" toml:"api_url,omitempty"`
	DefaultOwner string      `mapstructure:"default_owner" toml:"default_owner,omitempty"`
	DefaultRepo  string      `mapstructure:"default_repo" toml:"default_repo,omitempty"`
	Cache        CacheConfig `mapstructure:"cache" toml:"cache"`
}

// CacheConfig holds the [cache] table.
type CacheConfig struct {
	Enabled     bool   `mapstructure:"enabled" toml:"enabled"`
	MaxSessions int    `mapstructure:"max_sessions" toml:"max_sessions"`
	Dir         string `mapstructure:"dir" toml:"dir,omitempty"`
	Backend     string `mapstructure:"backend" toml:"backend,omitempty"`
}

// ConfigKeys lists the keys accepted by SetConfigValue.
var ConfigKeys = []string{
	"api_key",
	"api_url",
	"default_owner",
	"default_repo",
	"cache.enabled",
	"cache.max_sessions",
	"cache.dir",
	"cache.backend",
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() *Config {
	return &Config{
		APIURL: APIBaseURL,
		Cache: CacheConfig{
			Enabled:     true,
			MaxSessions: DefaultMaxSessions,
			Backend:     DefaultCacheBackend,
		},
	}
}

// LoadConfig reads the config file at path (ConfigPath() when empty),
// creating it with defaults when it does not exist yet. GULES_* environment
// variables override file values, e.g. GULES_CACHE_MAX_SESSIONS.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := SaveConfig(path, DefaultConfig()); err != nil {
			return nil, err
		}
	}

	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(configType)

	defaults := DefaultConfig()
	v.SetDefault("api_key", "")
	v.SetDefault("api_url", defaults.APIURL)
	v.SetDefault("default_owner", "")
	v.SetDefault("default_repo", "")
	v.SetDefault("cache.enabled", defaults.Cache.Enabled)
	v.SetDefault("cache.max_sessions", defaults.Cache.MaxSessions)
	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.backend", defaults.Cache.Backend)

	v.SetEnvPrefix(configEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Validate rejects values the cache cannot work with.
func (c *Config) Validate() error {
	if c.Cache.MaxSessions < 1 {
		return fmt.Errorf("cache.max_sessions must be at least 1, got %d", c.Cache.MaxSessions)
	}
	switch c.Cache.Backend {
	case "", DefaultCacheBackend, SQLiteCacheBackend:
	default:
		return fmt.Errorf("cache.backend must be %q or %q, got %q", DefaultCacheBackend, SQLiteCacheBackend, c.Cache.Backend)
	}
	return nil
}

// CacheDir returns the configured cache directory or the default one.
func (c *Config) CacheDir() string {
	if c.Cache.Dir != "" {
		return c.Cache.Dir
	}
	return CacheRoot()
}

// SaveConfig writes cfg to path atomically.
func SaveConfig(path string, cfg *Config) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), configDirMode); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tempFile.Chmod(configFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	cleanup = false
	return nil
}

// SetConfigValue assigns value to the dotted key on cfg.
func SetConfigValue(cfg *Config, key, value string) error {
	switch key {
	case "api_key":
		cfg.APIKey = value
	case "api_url":
		cfg.APIURL = value
	case "default_owner":
		cfg.DefaultOwner = value
	case "default_repo":
		cfg.DefaultRepo = value
	case "cache.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cache.enabled: %w", err)
		}
		cfg.Cache.Enabled = b
	case "cache.max_sessions":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("cache.max_sessions: %w", err)
		}
		cfg.Cache.MaxSessions = n
	case "cache.dir":
		cfg.Cache.Dir = value
	case "cache.backend":
		cfg.Cache.Backend = value
	default:
		return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(ConfigKeys, ", "))
	}
	return cfg.Validate()
}

// ResolveAPIKey picks the API key from the flag, then JULES_API_KEY, then the config file.
func ResolveAPIKey(flagValue string, cfg *Config) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if key := os.Getenv(APIKeyEnvVar); key != "" {
		return key, nil
	}
	if cfg != nil && cfg.APIKey != "" {
		return cfg.APIKey, nil
	}
	return "", fmt.Errorf("no API key found: pass --api-key, set %s, or run 'gules config set api_key <KEY>'", APIKeyEnvVar)
}

// MaskSecret hides all but the last four characters of s.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
