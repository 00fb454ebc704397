// Package cache provides a local, bounded mirror of Jules session activities.
//
// # Overview
//
// Each session's activities are stored as one JSON blob, <session_id>.json,
// next to a metadata.json file that records the access order of cached
// sessions and the cache configuration. The default storage is a directory
// under the user cache dir (~/.cache/gules/activities on Linux); a SQLite
// database can be used instead.
//
// # Session File Structure
//
//	{
//	  "session_id": "s1",
//	  "activities": [...],
//	  "last_page_token": "tok2",
//	  "last_updated": "2024-07-15T10:00:00Z",
//	  "created_at": "2024-07-14T09:00:00Z"
//	}
//
// Activities are unique by id and sorted newest first after every write.
//
// # Incremental Refresh
//
// The first request for a session pages through the remote list (page size
// 50) until it runs out of pages or holds at least 100 activities. Later
// requests fetch a single page starting at last_page_token and merge it into
// the stored list; an incoming activity replaces a stored one with the same id.
//
// # Eviction
//
// metadata.json keeps access_order, oldest first. Every refresh moves the
// session to the tail; while the order is longer than max_sessions the head
// is dropped and its blob deleted.
//
// # Failure Model
//
// A failed remote call leaves storage untouched. The session blob is written
// before metadata, so a crash in between can leave an orphan blob that the
// next refresh of that session adopts. Storage access through one Store is
// serialised, but remote fetches are not, so RefreshAll can overlap them.
// Separate processes sharing a directory are not coordinated and the last
// metadata write wins.
package cache

import (
	"context"
	"time"

	"github.com/kiwina/gules/internal/api"
	"github.com/kiwina/gules/internal/core"
)

const (
	metadataKey   = "metadata.json"
	sessionSuffix = ".json"
)

// SessionCache is the persisted state of one session.
type SessionCache struct {
	SessionID     string         `json:"session_id"`
	Activities    []api.Activity `json:"activities"`
	LastPageToken *string        `json:"last_page_token"`
	LastUpdated   time.Time      `json:"last_updated"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Metadata is the persisted contents of metadata.json.
type Metadata struct {
	AccessOrder []string `json:"access_order"`
	Config      Config   `json:"config"`
}

// Config controls whether the cache is used and how many sessions it keeps.
type Config struct {
	Enabled     bool `json:"enabled"`
	MaxSessions int  `json:"max_sessions"`
}

// DefaultConfig returns enabled=true, max_sessions=50.
func DefaultConfig() Config {
	return Config{Enabled: true, MaxSessions: core.DefaultMaxSessions}
}

// Stats summarises the cache contents.
type Stats struct {
	Enabled         bool   `json:"enabled"`
	TotalSessions   int    `json:"total_sessions"`
	MaxSessions     int    `json:"max_sessions"`
	TotalActivities int    `json:"total_activities"`
	TotalSizeBytes  int64  `json:"total_size_bytes"`
	Location        string `json:"location"`
	// Sessions lists per-session details in access order.
	Sessions []SessionStats `json:"sessions"`
}

// SessionStats describes one cached session. Err is set when its blob is
// missing or unreadable; such sessions do not count towards the totals.
type SessionStats struct {
	SessionID   string    `json:"session_id"`
	Activities  int       `json:"activities"`
	SizeBytes   int64     `json:"size_bytes"`
	LastUpdated time.Time `json:"last_updated"`
	Err         string    `json:"error,omitempty"`
}

// Storage is a flat namespace of whole blobs.
type Storage interface {
	// Read returns the blob for key, or an error wrapping ErrNotFound.
	Read(key string) ([]byte, error)

	// Write replaces the blob for key atomically.
	Write(key string, data []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// ListKeys returns every stored key.
	ListKeys() ([]string, error)

	// Location describes where blobs live, for display.
	Location() string
}

// Resetter is implemented by storages that can wipe their namespace in one step.
type Resetter interface {
	Reset() error
}

// ActivitySource lists a session's activities one page at a time.
// *api.JulesAPI implements it.
type ActivitySource interface {
	ListActivities(ctx context.Context, sessionID string, pageSize int, pageToken *string) (*api.ListActivitiesResponse, error)
}

// ActivityGetter fetches one activity by id. Sources that implement it let
// Store.Activity answer lookups the cache cannot.
type ActivityGetter interface {
	GetActivity(ctx context.Context, sessionID, activityID string) (*api.Activity, error)
}

func sessionKey(sessionID string) string {
	return sessionID + sessionSuffix
}
