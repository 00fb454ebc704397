package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kiwina/gules/internal/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)

func newTestStore(source ActivitySource, storage Storage, maxSessions int) *Store {
	s := NewStore(source, storage, Config{Enabled: true, MaxSessions: maxSessions}, false)
	s.now = func() time.Time { return fixedNow }
	return s
}

func readMetadata(t *testing.T, storage Storage) Metadata {
	t.Helper()
	data, err := storage.Read(metadataKey)
	require.NoError(t, err)
	var meta Metadata
	require.NoError(t, json.Unmarshal(data, &meta))
	return meta
}

func readSession(t *testing.T, storage Storage, sessionID string) SessionCache {
	t.Helper()
	data, err := storage.Read(sessionKey(sessionID))
	require.NoError(t, err)
	var sc SessionCache
	require.NoError(t, json.Unmarshal(data, &sc))
	return sc
}

func writeSession(t *testing.T, storage Storage, sc SessionCache) {
	t.Helper()
	data, err := json.MarshalIndent(sc, "", "  ")
	require.NoError(t, err)
	require.NoError(t, storage.Write(sessionKey(sc.SessionID), data))
}

// seededSource returns an in-memory remote with one activity per session.
func seededSource(sessions ...string) (*api.InMemoryTransport, *api.JulesAPI) {
	transport := api.NewInMemoryTransport(false)
	for i, s := range sessions {
		transport.Seed(s, act(s+"-a", fmt.Sprintf("2024-01-01T00:00:%02dZ", i)))
	}
	return transport, api.NewJulesAPI(transport)
}

func TestColdStartCreatesSessionFile(t *testing.T) {
	dir := t.TempDir()
	storage := NewFilesystemStorage(dir)
	transport := api.NewMockTransport(nil)
	transport.SetPage("s1", "", api.ListActivitiesResponse{
		Activities: []api.Activity{act("a", "2024-01-01T00:00:00Z")},
	})
	store := newTestStore(api.NewJulesAPI(transport), storage, 50)

	activities, err := store.GetOrRefresh(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, ids(activities))
	assert.FileExists(t, filepath.Join(dir, "s1.json"))

	sc := readSession(t, storage, "s1")
	assert.Equal(t, "s1", sc.SessionID)
	assert.Equal(t, []string{"a"}, ids(sc.Activities))
	assert.Nil(t, sc.LastPageToken)
	assert.Equal(t, fixedNow, sc.CreatedAt)
	assert.Equal(t, fixedNow, sc.LastUpdated)

	meta := readMetadata(t, storage)
	assert.Equal(t, []string{"s1"}, meta.AccessOrder)
	assert.Equal(t, Config{Enabled: true, MaxSessions: 50}, meta.Config)
}

func TestColdStartPersistsNullPageToken(t *testing.T) {
	dir := t.TempDir()
	transport := api.NewMockTransport(nil)
	transport.SetPage("s1", "", api.ListActivitiesResponse{
		Activities: []api.Activity{act("a", "2024-01-01T00:00:00Z")},
	})
	store := newTestStore(api.NewJulesAPI(transport), NewFilesystemStorage(dir), 50)

	_, err := store.GetOrRefresh(context.Background(), "s1")
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "s1.json"))
	require.NoError(t, err)
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "null", string(fields["last_page_token"]))
	for _, k := range []string{"session_id", "activities", "last_updated", "created_at"} {
		assert.Contains(t, fields, k)
	}
}

func TestIncrementalMergeUsesStoredToken(t *testing.T) {
	storage := NewMemoryStorage()
	created := fixedNow.Add(-time.Hour)
	writeSession(t, storage, SessionCache{
		SessionID:     "s1",
		Activities:    []api.Activity{act("a", "2024-01-01T00:00:01Z")},
		LastPageToken: api.StrPtr("tok1"),
		LastUpdated:   created,
		CreatedAt:     created,
	})

	transport := api.NewMockTransport(nil)
	transport.SetPage("s1", "tok1", api.ListActivitiesResponse{
		Activities: []api.Activity{
			act("a", "2024-01-01T00:00:02Z"),
			act("b", "2024-01-01T00:00:03Z"),
		},
		NextPageToken: api.StrPtr("tok2"),
	})
	store := newTestStore(api.NewJulesAPI(transport), storage, 50)

	activities, err := store.GetOrRefresh(context.Background(), "s1")
	require.NoError(t, err)

	require.Equal(t, []string{"b", "a"}, ids(activities))
	assert.Equal(t, "2024-01-01T00:00:03Z", activities[0].CreateTime)
	assert.Equal(t, "2024-01-01T00:00:02Z", activities[1].CreateTime)

	require.Len(t, transport.RequestLog, 1, "incremental refresh makes exactly one request")
	assert.Equal(t, "tok1", transport.RequestLog[0].Params["pageToken"])
	assert.Equal(t, "50", transport.RequestLog[0].Params["pageSize"])

	sc := readSession(t, storage, "s1")
	require.NotNil(t, sc.LastPageToken)
	assert.Equal(t, "tok2", *sc.LastPageToken)
	assert.Equal(t, created, sc.CreatedAt)
	assert.Equal(t, fixedNow, sc.LastUpdated)
	assert.Equal(t, []string{"b", "a"}, ids(sc.Activities))
}

func TestIncrementalRefreshWithNilTokenStartsFromFirstPage(t *testing.T) {
	storage := NewMemoryStorage()
	writeSession(t, storage, SessionCache{
		SessionID:  "s1",
		Activities: []api.Activity{act("a", "2024-01-01T00:00:01Z")},
	})
	transport := api.NewMockTransport(nil)
	transport.SetPage("s1", "", api.ListActivitiesResponse{
		Activities: []api.Activity{act("a", "2024-01-01T00:00:01Z"), act("c", "2024-01-01T00:00:09Z")},
	})
	store := newTestStore(api.NewJulesAPI(transport), storage, 50)

	activities, err := store.GetOrRefresh(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, []string{"c", "a"}, ids(activities))
	_, hasToken := transport.RequestLog[0].Params["pageToken"]
	assert.False(t, hasToken)
	assert.Nil(t, readSession(t, storage, "s1").LastPageToken)
}

func TestEvictionScenario(t *testing.T) {
	storage := NewMemoryStorage()
	_, source := seededSource("s1", "s2", "s3")
	store := newTestStore(source, storage, 2)
	ctx := context.Background()

	for _, s := range []string{"s1", "s2", "s3"} {
		_, err := store.GetOrRefresh(ctx, s)
		require.NoError(t, err)
	}

	assert.False(t, storage.Has("s1.json"))
	assert.True(t, storage.Has("s2.json"))
	assert.True(t, storage.Has("s3.json"))

	order, err := store.ListCachedSessionIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "s3"}, order)
}

func TestEvictionBoundary(t *testing.T) {
	const n, k = 4, 3
	var sessions []string
	for i := 0; i < n+k; i++ {
		sessions = append(sessions, fmt.Sprintf("s%d", i))
	}
	storage := NewMemoryStorage()
	_, source := seededSource(sessions...)
	store := newTestStore(source, storage, n)

	for _, s := range sessions {
		_, err := store.GetOrRefresh(context.Background(), s)
		require.NoError(t, err)
	}

	meta := readMetadata(t, storage)
	assert.Equal(t, sessions[k:], meta.AccessOrder)
	assert.Len(t, meta.AccessOrder, n)
	for _, s := range sessions[:k] {
		assert.False(t, storage.Has(sessionKey(s)), "%s should be evicted", s)
	}
	for _, s := range sessions[k:] {
		assert.True(t, storage.Has(sessionKey(s)), "%s should be cached", s)
	}
}

func TestTouchExemptsSessionFromEviction(t *testing.T) {
	storage := NewMemoryStorage()
	_, source := seededSource("s1", "s2", "s3")
	store := newTestStore(source, storage, 2)
	ctx := context.Background()

	for _, s := range []string{"s1", "s2", "s1", "s3"} {
		_, err := store.GetOrRefresh(ctx, s)
		require.NoError(t, err)
	}

	order, err := store.ListCachedSessionIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s3"}, order)
	assert.True(t, storage.Has("s1.json"))
	assert.False(t, storage.Has("s2.json"))
}

func TestLoweredCapEvictsSeveralSessionsAtOnce(t *testing.T) {
	storage := NewMemoryStorage()
	_, source := seededSource("s1", "s2", "s3", "s4", "s5")
	ctx := context.Background()

	wide := newTestStore(source, storage, 10)
	for _, s := range []string{"s1", "s2", "s3", "s4"} {
		_, err := wide.GetOrRefresh(ctx, s)
		require.NoError(t, err)
	}

	narrow := newTestStore(source, storage, 2)
	_, err := narrow.GetOrRefresh(ctx, "s5")
	require.NoError(t, err)

	meta := readMetadata(t, storage)
	assert.Equal(t, []string{"s4", "s5"}, meta.AccessOrder)
	assert.Equal(t, 2, meta.Config.MaxSessions)
	for _, s := range []string{"s1", "s2", "s3"} {
		assert.False(t, storage.Has(sessionKey(s)))
	}
}

func TestEvictionToleratesMissingBlob(t *testing.T) {
	storage := NewMemoryStorage()
	_, source := seededSource("s1", "s2")
	store := newTestStore(source, storage, 1)
	ctx := context.Background()

	_, err := store.GetOrRefresh(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, storage.Delete("s1.json"))

	_, err = store.GetOrRefresh(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, readMetadata(t, storage).AccessOrder)
}

func TestRemoteErrorLeavesStorageUntouched(t *testing.T) {
	t.Run("cold", func(t *testing.T) {
		storage := NewMemoryStorage()
		transport := api.NewInMemoryTransport(false)
		transport.Err = errors.New("network down")
		store := newTestStore(api.NewJulesAPI(transport), storage, 50)

		_, err := store.GetOrRefresh(context.Background(), "s1")
		require.ErrorIs(t, err, ErrRemoteFetch)

		keys, err := storage.ListKeys()
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("warm", func(t *testing.T) {
		storage := NewMemoryStorage()
		writeSession(t, storage, SessionCache{
			SessionID:     "s1",
			Activities:    []api.Activity{act("a", "2024-01-01T00:00:01Z")},
			LastPageToken: api.StrPtr("tok1"),
		})
		before, err := storage.Read("s1.json")
		require.NoError(t, err)

		transport := api.NewMockTransport(nil)
		transport.Errors["tok1"] = &api.APIError{StatusCode: 500, Message: "boom"}
		store := newTestStore(api.NewJulesAPI(transport), storage, 50)

		_, err = store.GetOrRefresh(context.Background(), "s1")
		require.ErrorIs(t, err, ErrRemoteFetch)
		var apiErr *api.APIError
		assert.ErrorAs(t, err, &apiErr)

		after, err := storage.Read("s1.json")
		require.NoError(t, err)
		assert.Equal(t, before, after)
		assert.False(t, storage.Has(metadataKey))

		// Retrying repeats the same incremental request.
		_, err = store.GetOrRefresh(context.Background(), "s1")
		require.Error(t, err)
		require.Len(t, transport.RequestLog, 2)
		assert.Equal(t, "tok1", transport.RequestLog[1].Params["pageToken"])
	})
}

func TestFullFetchStopsAtCeiling(t *testing.T) {
	transport := api.NewInMemoryTransport(false)
	for i := 0; i < 250; i++ {
		transport.Seed("big", act(fmt.Sprintf("a%03d", i), fmt.Sprintf("2024-01-01T00:%02d:%02dZ", i/60, i%60)))
	}
	store := newTestStore(api.NewJulesAPI(transport), NewMemoryStorage(), 50)

	activities, err := store.FetchAll(context.Background(), "big")
	require.NoError(t, err)

	assert.Len(t, activities, 100)
	assert.Equal(t, 2, transport.RequestsMade())
	assert.Equal(t, "a099", activities[0].ID)
	assert.Equal(t, "a000", activities[99].ID)
}

func TestFullFetchStopsWhenNoNextToken(t *testing.T) {
	transport := api.NewInMemoryTransport(false)
	for i := 0; i < 70; i++ {
		transport.Seed("s", act(fmt.Sprintf("a%03d", i), fmt.Sprintf("2024-01-01T00:%02d:%02dZ", i/60, i%60)))
	}
	store := newTestStore(api.NewJulesAPI(transport), NewMemoryStorage(), 50)

	activities, err := store.FetchAll(context.Background(), "s")
	require.NoError(t, err)

	assert.Len(t, activities, 70)
	reqs := transport.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "50", reqs[1].Params["pageToken"])
}

func TestFullFetchStopsOnEmptyPage(t *testing.T) {
	transport := api.NewMockTransport(nil)
	transport.SetPage("s", "", api.ListActivitiesResponse{NextPageToken: api.StrPtr("again")})
	store := newTestStore(api.NewJulesAPI(transport), NewMemoryStorage(), 50)

	activities, err := store.FetchAll(context.Background(), "s")
	require.NoError(t, err)
	assert.Empty(t, activities)
	assert.Equal(t, 1, transport.RequestsMade())
}

func TestDeleteThenStats(t *testing.T) {
	storage := NewMemoryStorage()
	transport := api.NewInMemoryTransport(false)
	transport.Seed("s1", act("a", "2024-01-01T00:00:00Z"), act("b", "2024-01-01T00:00:01Z"))
	transport.Seed("s2", act("c", "2024-01-01T00:00:00Z"))
	store := newTestStore(api.NewJulesAPI(transport), storage, 50)
	ctx := context.Background()

	for _, s := range []string{"s1", "s2"} {
		_, err := store.GetOrRefresh(ctx, s)
		require.NoError(t, err)
	}

	before, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, before.TotalSessions)
	assert.Equal(t, 3, before.TotalActivities)

	require.NoError(t, store.Delete("s1"))

	after, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, after.TotalSessions)
	assert.Equal(t, 1, after.TotalActivities)
	assert.False(t, storage.Has("s1.json"))
}

func TestDeleteUnknownSessionIsNoop(t *testing.T) {
	store := newTestStore(nil, NewMemoryStorage(), 50)
	require.NoError(t, store.Delete("never-cached"))

	order, err := store.ListCachedSessionIDs()
	require.NoError(t, err)
	assert.Empty(t, order)
}

func TestStatsToleratesMissingAndCorruptBlobs(t *testing.T) {
	storage := NewMemoryStorage()
	transport := api.NewInMemoryTransport(false)
	transport.Seed("s1", act("a", "2024-01-01T00:00:00Z"))
	transport.Seed("s2", act("b", "2024-01-01T00:00:00Z"), act("c", "2024-01-01T00:00:01Z"))
	transport.Seed("s3", act("d", "2024-01-01T00:00:00Z"))
	store := newTestStore(api.NewJulesAPI(transport), storage, 50)

	for _, s := range []string{"s1", "s2", "s3"} {
		_, err := store.GetOrRefresh(context.Background(), s)
		require.NoError(t, err)
	}
	goodSize, err := storage.Read("s2.json")
	require.NoError(t, err)

	require.NoError(t, storage.Delete("s1.json"))
	require.NoError(t, storage.Write("s3.json", []byte("{not json")))

	stats, err := store.Stats()
	require.NoError(t, err)

	assert.True(t, stats.Enabled)
	assert.Equal(t, 3, stats.TotalSessions)
	assert.Equal(t, 50, stats.MaxSessions)
	assert.Equal(t, 2, stats.TotalActivities)
	assert.Equal(t, int64(len(goodSize)), stats.TotalSizeBytes)
	assert.Equal(t, "memory", stats.Location)

	require.Len(t, stats.Sessions, 3)
	assert.NotEmpty(t, stats.Sessions[0].Err)
	assert.Empty(t, stats.Sessions[1].Err)
	assert.Equal(t, fixedNow, stats.Sessions[1].LastUpdated)
	assert.Contains(t, stats.Sessions[2].Err, "corrupt")
}

func TestStatsOnEmptyCacheDoesNotWrite(t *testing.T) {
	storage := NewMemoryStorage()
	store := newTestStore(nil, storage, 5)

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalSessions)
	assert.Equal(t, 5, stats.MaxSessions)

	keys, err := storage.ListKeys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCorruptTargetSessionIsFatal(t *testing.T) {
	storage := NewMemoryStorage()
	require.NoError(t, storage.Write("s1.json", []byte("garbage")))
	transport := api.NewInMemoryTransport(false)
	store := newTestStore(api.NewJulesAPI(transport), storage, 50)

	_, err := store.GetOrRefresh(context.Background(), "s1")
	require.ErrorIs(t, err, ErrSerialization)
	assert.Equal(t, 0, transport.RequestsMade())
}

func TestCorruptMetadataIsFatal(t *testing.T) {
	storage := NewMemoryStorage()
	require.NoError(t, storage.Write(metadataKey, []byte("[")))
	_, source := seededSource("s1")
	store := newTestStore(source, storage, 50)

	_, err := store.GetOrRefresh(context.Background(), "s1")
	require.ErrorIs(t, err, ErrSerialization)

	_, err = store.ListCachedSessionIDs()
	require.ErrorIs(t, err, ErrSerialization)
}

func TestStorageWriteFailureIsFatal(t *testing.T) {
	storage := NewMemoryStorage()
	storage.FailWrites = errors.New("disk full")
	_, source := seededSource("s1")
	store := newTestStore(source, storage, 50)

	_, err := store.GetOrRefresh(context.Background(), "s1")
	require.ErrorIs(t, err, ErrStorage)
	assert.Contains(t, err.Error(), "disk full")
}

func TestClearAll(t *testing.T) {
	backends := map[string]func(t *testing.T) Storage{
		"filesystem": func(t *testing.T) Storage { return NewFilesystemStorage(t.TempDir()) },
		"memory":     func(t *testing.T) Storage { return NewMemoryStorage() },
		"sqlite": func(t *testing.T) Storage {
			s, err := NewSQLiteStorage(t.TempDir())
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}

	for name, newStorage := range backends {
		t.Run(name, func(t *testing.T) {
			storage := newStorage(t)
			_, source := seededSource("s1", "s2")
			store := newTestStore(source, storage, 50)
			for _, s := range []string{"s1", "s2"} {
				_, err := store.GetOrRefresh(context.Background(), s)
				require.NoError(t, err)
			}

			require.NoError(t, store.ClearAll())

			keys, err := storage.ListKeys()
			require.NoError(t, err)
			assert.Equal(t, []string{metadataKey}, keys)

			meta := readMetadata(t, storage)
			assert.Empty(t, meta.AccessOrder)
			assert.Equal(t, store.Config(), meta.Config)

			stats, err := store.Stats()
			require.NoError(t, err)
			assert.Zero(t, stats.TotalSessions)
			assert.Zero(t, stats.TotalActivities)
		})
	}
}

func TestActivitiesBypassDoesNotTouchStorage(t *testing.T) {
	storage := NewMemoryStorage()
	transport := api.NewInMemoryTransport(false)
	transport.Seed("s1", act("a", "2024-01-01T00:00:00Z"))
	source := api.NewJulesAPI(transport)
	ctx := context.Background()

	store := newTestStore(source, storage, 50)
	activities, err := store.Activities(ctx, "s1", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(activities))

	disabled := NewStore(source, storage, Config{Enabled: false, MaxSessions: 50}, false)
	_, err = disabled.Activities(ctx, "s1", false)
	require.NoError(t, err)

	keys, err := storage.ListKeys()
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = store.Activities(ctx, "s1", false)
	require.NoError(t, err)
	assert.True(t, storage.Has("s1.json"))
}

func TestUnknownActivityKindSurvivesDiskRoundTrip(t *testing.T) {
	body := []byte(`{"activities":[{"id":"u1","createTime":"2024-01-01T00:00:00Z","reviewRequested":{"reviewer":"bot","nested":{"k":[1,2,3]}},"extraTopLevel":true}]}`)
	var page api.ListActivitiesResponse
	require.NoError(t, json.Unmarshal(body, &page))

	transport := api.NewMockTransport(nil)
	transport.SetPage("s1", "", page)
	dir := t.TempDir()
	store := newTestStore(api.NewJulesAPI(transport), NewFilesystemStorage(dir), 50)

	_, err := store.GetOrRefresh(context.Background(), "s1")
	require.NoError(t, err)

	loaded, err := store.LoadSession("s1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Len(t, loaded.Activities, 1)

	a := loaded.Activities[0]
	assert.Equal(t, api.KindUnknown, a.Kind)
	assert.Equal(t, "Review Requested [UNKNOWN]", a.Title())

	out, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"u1","createTime":"2024-01-01T00:00:00Z","reviewRequested":{"reviewer":"bot","nested":{"k":[1,2,3]}},"extraTopLevel":true}`, string(out))
}

func TestLoadSessionMissingReturnsNil(t *testing.T) {
	store := newTestStore(nil, NewMemoryStorage(), 50)
	sc, err := store.LoadSession("nope")
	require.NoError(t, err)
	assert.Nil(t, sc)
}

func TestInvalidSessionIDs(t *testing.T) {
	_, source := seededSource()
	store := newTestStore(source, NewMemoryStorage(), 50)

	for _, id := range []string{"", "metadata", "../etc", "a/b", ".hidden"} {
		_, err := store.GetOrRefresh(context.Background(), id)
		assert.Error(t, err, "id %q", id)
		assert.Error(t, store.Delete(id), "id %q", id)
	}
}

func TestRefreshWithoutSourceFails(t *testing.T) {
	store := newTestStore(nil, NewMemoryStorage(), 50)
	_, err := store.GetOrRefresh(context.Background(), "s1")
	require.ErrorIs(t, err, ErrRemoteFetch)
}

func TestNewStoreDefaultsMaxSessions(t *testing.T) {
	store := NewStore(nil, NewMemoryStorage(), Config{Enabled: true}, false)
	assert.Equal(t, DefaultConfig().MaxSessions, store.Config().MaxSessions)
}

// holdingSource holds the first incremental request for one session until
// released and records the page token of every request for it.
type holdingSource struct {
	inner   ActivitySource
	session string
	held    chan struct{}
	release chan struct{}
	once    sync.Once

	mu     sync.Mutex
	tokens []string
}

func (h *holdingSource) ListActivities(ctx context.Context, sessionID string, pageSize int, pageToken *string) (*api.ListActivitiesResponse, error) {
	if sessionID == h.session {
		h.mu.Lock()
		h.tokens = append(h.tokens, tokenString(pageToken))
		h.mu.Unlock()
		if pageToken != nil {
			first := false
			h.once.Do(func() { first = true })
			if first {
				close(h.held)
				<-h.release
			}
		}
	}
	return h.inner.ListActivities(ctx, sessionID, pageSize, pageToken)
}

func TestIncrementalRefreshOfEvictedSessionRefetchesHistory(t *testing.T) {
	storage := NewMemoryStorage()
	writeSession(t, storage, SessionCache{
		SessionID: "x",
		Activities: []api.Activity{
			act("x-old2", "2024-01-01T00:00:02Z"),
			act("x-old1", "2024-01-01T00:00:01Z"),
		},
		LastPageToken: api.StrPtr("tok1"),
		LastUpdated:   fixedNow.Add(-time.Hour),
		CreatedAt:     fixedNow.Add(-time.Hour),
	})

	transport := api.NewMockTransport(nil)
	transport.SetPage("x", "", api.ListActivitiesResponse{Activities: []api.Activity{
		act("x-new", "2024-01-01T00:00:03Z"),
		act("x-old2", "2024-01-01T00:00:02Z"),
		act("x-old1", "2024-01-01T00:00:01Z"),
	}})
	transport.SetPage("x", "tok1", api.ListActivitiesResponse{
		Activities:    []api.Activity{act("x-new", "2024-01-01T00:00:03Z")},
		NextPageToken: api.StrPtr("tok-after"),
	})
	transport.SetPage("z", "", api.ListActivitiesResponse{Activities: []api.Activity{
		act("z-a", "2024-01-01T00:00:04Z"),
	}})

	source := &holdingSource{
		inner:   api.NewJulesAPI(transport),
		session: "x",
		held:    make(chan struct{}),
		release: make(chan struct{}),
	}
	store := newTestStore(source, storage, 1)
	require.NoError(t, store.saveMetadata(&Metadata{AccessOrder: []string{"x"}}))

	type result struct {
		activities []api.Activity
		err        error
	}
	done := make(chan result, 1)
	go func() {
		activities, err := store.GetOrRefresh(context.Background(), "x")
		done <- result{activities, err}
	}()

	select {
	case <-source.held:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "incremental fetch for x never started")
	}

	_, err := store.GetOrRefresh(context.Background(), "z")
	require.NoError(t, err)
	keys, err := storage.ListKeys()
	require.NoError(t, err)
	require.NotContains(t, keys, sessionKey("x"), "z evicts x while its fetch is in flight")

	close(source.release)
	var r result
	select {
	case r = <-done:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "refresh of x never finished")
	}
	require.NoError(t, r.err)

	want := []string{"x-new", "x-old2", "x-old1"}
	assert.Equal(t, want, ids(r.activities))

	sc := readSession(t, storage, "x")
	assert.Equal(t, want, ids(sc.Activities))
	assert.Nil(t, sc.LastPageToken, "a full fetch stores no continuation token")

	source.mu.Lock()
	assert.Equal(t, []string{"tok1", "<start>"}, source.tokens)
	source.mu.Unlock()

	assert.Equal(t, []string{"x"}, readMetadata(t, storage).AccessOrder)
}

func TestClearAllWritesStoreConfig(t *testing.T) {
	storage := NewMemoryStorage()
	require.NoError(t, storage.Write(metadataKey, []byte(`{"access_order":["old"],"config":{"enabled":false,"max_sessions":3}}`)))

	store := NewStore(nil, storage, Config{Enabled: true, MaxSessions: 7}, false)
	require.NoError(t, store.ClearAll())

	meta := readMetadata(t, storage)
	assert.Empty(t, meta.AccessOrder)
	assert.Equal(t, Config{Enabled: true, MaxSessions: 7}, meta.Config)
}

func TestActivityServedFromCache(t *testing.T) {
	transport, source := seededSource("s1")
	store := newTestStore(source, NewMemoryStorage(), 50)
	_, err := store.GetOrRefresh(context.Background(), "s1")
	require.NoError(t, err)
	before := transport.RequestsMade()

	a, err := store.Activity(context.Background(), "s1", "s1-a", false)
	require.NoError(t, err)
	assert.Equal(t, "s1-a", a.ID)
	assert.Equal(t, before, transport.RequestsMade(), "cached activity needs no request")
}

func TestActivityFallsBackToSource(t *testing.T) {
	transport, source := seededSource("s1")
	transport.Seed("s1", act("late", "2024-01-01T00:01:00Z"))
	storage := NewMemoryStorage()
	store := newTestStore(source, storage, 50)

	a, err := store.Activity(context.Background(), "s1", "late", false)
	require.NoError(t, err)
	assert.Equal(t, "late", a.ID)

	keys, err := storage.ListKeys()
	require.NoError(t, err)
	assert.Empty(t, keys, "single lookups are not cached")

	_, err = store.Activity(context.Background(), "s1", "missing", false)
	require.ErrorIs(t, err, ErrRemoteFetch)
	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.StatusCode)
}

func TestActivityBypassSkipsCache(t *testing.T) {
	transport, source := seededSource("s1")
	store := newTestStore(source, NewMemoryStorage(), 50)
	_, err := store.GetOrRefresh(context.Background(), "s1")
	require.NoError(t, err)
	before := transport.RequestsMade()

	_, err = store.Activity(context.Background(), "s1", "s1-a", true)
	require.NoError(t, err)
	assert.Equal(t, before+1, transport.RequestsMade())
}

func TestActivityWithoutGetterIsNotFound(t *testing.T) {
	store := newTestStore(nil, NewMemoryStorage(), 50)

	_, err := store.Activity(context.Background(), "s1", "a", false)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Activity(context.Background(), "s1", "", false)
	require.Error(t, err)
	_, err = store.Activity(context.Background(), "../s1", "a", false)
	require.Error(t, err)
}
