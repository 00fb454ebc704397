// Package core provides shared constants, configuration and stderr helpers for gules.
package core

import (
	"os"
	"path/filepath"
)

// API configuration
const (
	APIBaseURL   = "https://jules.googleapis.com/v1alpha"
	APIKeyEnvVar = "JULES_API_KEY"
	APIKeyHeader = "X-Goog-Api-Key"
)

// Pagination
const (
	ActivitiesPageSize   = 50  // pageSize sent on every list request
	MaxActivitiesToFetch = 100 // full fetch stops once this many have accumulated
)

// Cache defaults
const (
	DefaultMaxSessions  = 50
	DefaultCacheBackend = "file"
	SQLiteCacheBackend  = "sqlite"
	RefreshMaxWorkers   = 3 // Max sessions refreshed in parallel
)

// AppName is used for the config and cache directory names.
const AppName = "gules"

// CacheRoot returns the default activity cache directory.
func CacheRoot() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, AppName, "activities")
}

// ConfigPath returns the default config file path.
func ConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, AppName, "config.toml")
}

// Version is the current CLI version.
const Version = "0.3.0"
