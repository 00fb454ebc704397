package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kiwina/gules/internal/api"
	"github.com/kiwina/gules/internal/core"
)

// Store orchestrates fetching, merging, persisting and evicting cached
// session activities.
//
// # Refresh
//
// GetOrRefresh does a full fetch the first time a session is seen and a
// single-page incremental fetch afterwards, continuing from the stored page
// token. Either way the session becomes the most recently used entry and the
// oldest sessions beyond MaxSessions are evicted.
//
// # Errors
//
// Storage failures wrap ErrStorage, corrupt blobs ErrSerialization and
// source failures ErrRemoteFetch. A failed fetch never writes anything.
type Store struct {
	source  ActivitySource
	storage Storage
	config  Config
	verbose bool

	// now is swapped in tests for deterministic timestamps.
	now func() time.Time
	mu  sync.Mutex
}

// NewStore creates a store over storage, or over the default filesystem
// storage when storage is nil. source may be nil for callers that only
// inspect or clear the cache.
func NewStore(source ActivitySource, storage Storage, cfg Config, verbose bool) *Store {
	if storage == nil {
		storage = NewFilesystemStorage("")
	}
	if cfg.MaxSessions < 1 {
		cfg.MaxSessions = core.DefaultMaxSessions
	}
	return &Store{
		source:  source,
		storage: storage,
		config:  cfg,
		verbose: verbose,
		now:     time.Now,
	}
}

// log writes a debug message if verbose mode is enabled.
func (s *Store) log(msg string) {
	core.Eprint(fmt.Sprintf("[Cache] %s", msg), s.verbose)
}

// Config returns the store configuration.
func (s *Store) Config() Config {
	return s.config
}

// Enabled reports whether callers should go through the cache.
func (s *Store) Enabled() bool {
	return s.config.Enabled
}

// Location describes where the cache lives.
func (s *Store) Location() string {
	return s.storage.Location()
}

func validateSessionID(sessionID string) error {
	if sessionID == "" {
		return errors.New("session id is empty")
	}
	if sessionKey(sessionID) == metadataKey || strings.HasPrefix(sessionID, ".") ||
		strings.ContainsAny(sessionID, `/\`) {
		return fmt.Errorf("invalid session id %q", sessionID)
	}
	return nil
}

// Activities returns a session's activities newest first. It refreshes
// through the cache when the cache is enabled and bypass is false, and
// otherwise does a full fetch without touching storage.
func (s *Store) Activities(ctx context.Context, sessionID string, bypass bool) ([]api.Activity, error) {
	if s.config.Enabled && !bypass {
		return s.GetOrRefresh(ctx, sessionID)
	}
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	s.log(fmt.Sprintf("Bypassing cache for %s", sessionID))
	return s.FetchAll(ctx, sessionID)
}

// Activity returns one activity of sessionID. Unless the cache is disabled
// or bypass is set, a cached copy is returned without contacting the source.
// Otherwise the source is asked directly and nothing is written.
func (s *Store) Activity(ctx context.Context, sessionID, activityID string, bypass bool) (*api.Activity, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	if activityID == "" {
		return nil, errors.New("activity id is empty")
	}

	if s.config.Enabled && !bypass {
		s.mu.Lock()
		cached, err := s.loadSession(sessionID)
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
		if cached != nil {
			for i := range cached.Activities {
				if cached.Activities[i].ID == activityID {
					s.log(fmt.Sprintf("Cache hit for activity %s of %s", activityID, sessionID))
					a := cached.Activities[i]
					return &a, nil
				}
			}
		}
	}

	getter, ok := s.source.(ActivityGetter)
	if !ok {
		return nil, fmt.Errorf("%w: activity %s of session %s", ErrNotFound, activityID, sessionID)
	}
	s.log(fmt.Sprintf("Fetching activity %s of %s", activityID, sessionID))
	a, err := getter.GetActivity(ctx, sessionID, activityID)
	if err != nil {
		return nil, fmt.Errorf("%w: session %s activity %s: %w", ErrRemoteFetch, sessionID, activityID, err)
	}
	return a, nil
}

// GetOrRefresh returns the cached activities of sessionID after bringing
// them up to date with the remote source.
//
// The store lock covers storage access only, so refreshes of different
// sessions fetch concurrently. If the session is evicted, deleted or cleared
// while an incremental fetch is in flight, the page is discarded and the
// session is fetched again from the start.
func (s *Store) GetOrRefresh(ctx context.Context, sessionID string) ([]api.Activity, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	if s.source == nil {
		return nil, fmt.Errorf("%w: no activity source configured", ErrRemoteFetch)
	}

	for {
		s.mu.Lock()
		cached, err := s.loadSession(sessionID)
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}

		upd, err := s.fetchUpdate(ctx, sessionID, cached)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		activities, err := s.applyUpdate(sessionID, upd)
		s.mu.Unlock()
		if errors.Is(err, errSessionGone) {
			s.log(fmt.Sprintf("%s left the cache during refresh; fetching full history", sessionID))
			continue
		}
		return activities, err
	}
}

// errSessionGone reports that an incremental update has no session left to
// extend. A full update never returns it.
var errSessionGone = errors.New("session left the cache during refresh")

// update is what one refresh learned from the remote source.
type update struct {
	full       bool
	activities []api.Activity
	next       *string
}

func (s *Store) fetchUpdate(ctx context.Context, sessionID string, cached *SessionCache) (*update, error) {
	if cached == nil {
		s.log(fmt.Sprintf("Cache miss for %s; fetching full history", sessionID))
		fetched, err := s.FetchAll(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return &update{full: true, activities: fetched}, nil
	}

	s.log(fmt.Sprintf("Cache hit for %s (%d activities); fetching page %s", sessionID, len(cached.Activities), tokenString(cached.LastPageToken)))
	resp, err := s.source.ListActivities(ctx, sessionID, core.ActivitiesPageSize, cached.LastPageToken)
	if err != nil {
		return nil, fmt.Errorf("%w: session %s: %w", ErrRemoteFetch, sessionID, err)
	}
	return &update{activities: resp.Activities, next: resp.NextPageToken}, nil
}

// applyUpdate merges upd into the stored session, re-read so that a write
// made while the fetch was in flight is not lost, then saves and touches
// it. An incremental update for a session that is no longer stored returns
// errSessionGone, since one page and its token are not a history.
// Callers hold s.mu.
func (s *Store) applyUpdate(sessionID string, upd *update) ([]api.Activity, error) {
	cached, err := s.loadSession(sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if cached == nil {
		if !upd.full {
			return nil, errSessionGone
		}
		cached = &SessionCache{SessionID: sessionID, CreatedAt: now}
	}

	before := len(cached.Activities)
	cached.Activities = MergeActivities(cached.Activities, upd.activities)
	if !upd.full {
		cached.LastPageToken = upd.next
	}
	cached.LastUpdated = now
	s.log(fmt.Sprintf("Merged %d fetched into %d cached -> %d activities", len(upd.activities), before, len(cached.Activities)))

	if err := s.saveSession(cached); err != nil {
		return nil, err
	}
	if err := s.touch(sessionID); err != nil {
		return nil, err
	}
	return cached.Activities, nil
}

// FetchAll pages through the remote list from the start until there are no
// more pages or at least core.MaxActivitiesToFetch activities have been
// collected, and returns them newest first. Storage is not touched.
func (s *Store) FetchAll(ctx context.Context, sessionID string) ([]api.Activity, error) {
	if s.source == nil {
		return nil, fmt.Errorf("%w: no activity source configured", ErrRemoteFetch)
	}

	var (
		all   []api.Activity
		token *string
		pages int
	)
	for {
		resp, err := s.source.ListActivities(ctx, sessionID, core.ActivitiesPageSize, token)
		if err != nil {
			return nil, fmt.Errorf("%w: session %s: %w", ErrRemoteFetch, sessionID, err)
		}
		pages++
		all = append(all, resp.Activities...)
		token = resp.NextPageToken

		if token == nil || len(resp.Activities) == 0 || len(all) >= core.MaxActivitiesToFetch {
			break
		}
	}

	s.log(fmt.Sprintf("Fetched %d activities for %s across %d pages", len(all), sessionID, pages))
	SortNewestFirst(all)
	return all, nil
}

// LoadSession returns the stored cache of sessionID, or nil when there is none.
func (s *Store) LoadSession(sessionID string) (*SessionCache, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadSession(sessionID)
}

// Delete removes a session from the cache. Unknown sessions are not an error.
func (s *Store) Delete(sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Delete(sessionKey(sessionID)); err != nil {
		return fmt.Errorf("%w: delete session %s: %w", ErrStorage, sessionID, err)
	}

	meta, err := s.loadMetadata()
	if err != nil {
		return err
	}
	meta.AccessOrder = removeID(meta.AccessOrder, sessionID)
	s.log(fmt.Sprintf("Deleted %s", sessionID))
	return s.saveMetadata(meta)
}

// ClearAll removes every cached session and writes fresh metadata.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.storage.(Resetter); ok {
		if err := r.Reset(); err != nil {
			return fmt.Errorf("%w: clear cache: %w", ErrStorage, err)
		}
	} else {
		keys, err := s.storage.ListKeys()
		if err != nil {
			return fmt.Errorf("%w: clear cache: %w", ErrStorage, err)
		}
		for _, k := range keys {
			if err := s.storage.Delete(k); err != nil {
				return fmt.Errorf("%w: clear cache: %w", ErrStorage, err)
			}
		}
	}

	s.log("Cleared all cached sessions")
	return s.saveMetadata(&Metadata{AccessOrder: []string{}, Config: s.config})
}

// ListCachedSessionIDs returns the access order, oldest first.
func (s *Store) ListCachedSessionIDs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.loadMetadata()
	if err != nil {
		return nil, err
	}
	return meta.AccessOrder, nil
}

// Stats aggregates over the access order. Sessions whose blob is missing or
// corrupt are listed with Err set and left out of the activity and size totals.
func (s *Store) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.loadMetadata()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Enabled:       s.config.Enabled,
		TotalSessions: len(meta.AccessOrder),
		MaxSessions:   s.config.MaxSessions,
		Location:      s.storage.Location(),
		Sessions:      make([]SessionStats, 0, len(meta.AccessOrder)),
	}

	for _, id := range meta.AccessOrder {
		entry := SessionStats{SessionID: id}

		data, err := s.storage.Read(sessionKey(id))
		if err != nil {
			entry.Err = err.Error()
			stats.Sessions = append(stats.Sessions, entry)
			continue
		}
		var sc SessionCache
		if err := json.Unmarshal(data, &sc); err != nil {
			entry.Err = fmt.Sprintf("corrupt cache file: %v", err)
			stats.Sessions = append(stats.Sessions, entry)
			continue
		}

		entry.Activities = len(sc.Activities)
		entry.SizeBytes = int64(len(data))
		entry.LastUpdated = sc.LastUpdated
		stats.TotalActivities += entry.Activities
		stats.TotalSizeBytes += entry.SizeBytes
		stats.Sessions = append(stats.Sessions, entry)
	}

	return stats, nil
}

// touch moves sessionID to the tail of the access order, evicts the oldest
// sessions beyond the cap and persists metadata.
func (s *Store) touch(sessionID string) error {
	meta, err := s.loadMetadata()
	if err != nil {
		return err
	}

	meta.AccessOrder = append(removeID(meta.AccessOrder, sessionID), sessionID)

	for len(meta.AccessOrder) > s.config.MaxSessions {
		victim := meta.AccessOrder[0]
		if err := s.storage.Delete(sessionKey(victim)); err != nil {
			return fmt.Errorf("%w: evict session %s: %w", ErrStorage, victim, err)
		}
		meta.AccessOrder = meta.AccessOrder[1:]
		s.log(fmt.Sprintf("Evicted %s", victim))
	}

	return s.saveMetadata(meta)
}

func (s *Store) loadSession(sessionID string) (*SessionCache, error) {
	data, err := s.storage.Read(sessionKey(sessionID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read session %s: %w", ErrStorage, sessionID, err)
	}

	var sc SessionCache
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%w: session %s: %w", ErrSerialization, sessionID, err)
	}
	return &sc, nil
}

func (s *Store) saveSession(sc *SessionCache) error {
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: session %s: %w", ErrSerialization, sc.SessionID, err)
	}
	if err := s.storage.Write(sessionKey(sc.SessionID), data); err != nil {
		return fmt.Errorf("%w: write session %s: %w", ErrStorage, sc.SessionID, err)
	}
	return nil
}

// loadMetadata returns defaults when metadata.json does not exist yet.
func (s *Store) loadMetadata() (*Metadata, error) {
	data, err := s.storage.Read(metadataKey)
	if errors.Is(err, ErrNotFound) {
		return &Metadata{AccessOrder: []string{}, Config: s.config}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read metadata: %w", ErrStorage, err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: metadata: %w", ErrSerialization, err)
	}
	if meta.AccessOrder == nil {
		meta.AccessOrder = []string{}
	}
	return &meta, nil
}

func (s *Store) saveMetadata(meta *Metadata) error {
	meta.Config = s.config
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: metadata: %w", ErrSerialization, err)
	}
	if err := s.storage.Write(metadataKey, data); err != nil {
		return fmt.Errorf("%w: write metadata: %w", ErrStorage, err)
	}
	return nil
}

func removeID(order []string, id string) []string {
	out := make([]string, 0, len(order)+1)
	for _, v := range order {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func tokenString(tok *string) string {
	if tok == nil {
		return "<start>"
	}
	return *tok
}
