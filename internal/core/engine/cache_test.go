package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/modlens/modlens/internal/core"
)

func TestCacheUpsertSuccess(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMetadataCache()
	cache.Clock = func() time.Time { return clock }

	cache.UpsertSuccess("100", &core.ModPayload{Key: "100", Title: "Example Mod"}, 30*time.Minute)

	record := cache.Get("100")
	require.NotNil(t, record)
	require.Equal(t, core.FetchStateFresh, record.FetchState)
	require.Equal(t, "Example Mod", record.Payload.Title)
	require.Equal(t, clock, *record.LastFetchedAt)
	require.Equal(t, clock.Add(30*time.Minute), record.StaleAfter)
	require.Zero(t, record.ConsecutiveFailures)
	require.Empty(t, record.LastError)
}

func TestCacheFreshBecomesStaleByTime(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMetadataCache()
	cache.Clock = func() time.Time { return clock }

	cache.UpsertSuccess("100", &core.ModPayload{Key: "100"}, time.Minute)
	require.Equal(t, core.FetchStateFresh, cache.Get("100").FetchState)

	clock = clock.Add(2 * time.Minute)
	record := cache.Get("100")
	require.Equal(t, core.FetchStateStale, record.FetchState)
	require.NotNil(t, record.Payload, "staleness never discards the payload")
}

func TestCacheMarkFailedKeepsPayload(t *testing.T) {
	cache := NewMetadataCache()

	cache.UpsertSuccess("100", &core.ModPayload{Key: "100", Title: "Known Good"}, time.Minute)
	cache.MarkFailed("100", errors.New("upstream 503"))

	record := cache.Get("100")
	require.Equal(t, core.FetchStateStale, record.FetchState)
	require.NotNil(t, record.Payload)
	require.Equal(t, "Known Good", record.Payload.Title)
	require.Equal(t, 1, record.ConsecutiveFailures)
	require.Equal(t, "upstream 503", record.LastError)
}

func TestCacheMarkFailedWithoutPayload(t *testing.T) {
	cache := NewMetadataCache()

	cache.MarkPending("404")
	cache.MarkFailed("404", errors.New("not found"))

	record := cache.Get("404")
	require.Equal(t, core.FetchStateFailed, record.FetchState)
	require.Nil(t, record.Payload)
	require.Equal(t, 1, record.ConsecutiveFailures)
}

func TestCacheSuccessResetsFailures(t *testing.T) {
	cache := NewMetadataCache()

	cache.MarkFailed("100", errors.New("transient"))
	cache.MarkFailed("100", errors.New("transient"))
	require.Equal(t, 2, cache.Failures("100"))

	cache.UpsertSuccess("100", &core.ModPayload{Key: "100"}, time.Minute)
	require.Zero(t, cache.Failures("100"))
	require.Empty(t, cache.Get("100").LastError)
}

func TestCacheMarkPendingKeepsResolvedState(t *testing.T) {
	cache := NewMetadataCache()

	cache.UpsertSuccess("100", &core.ModPayload{Key: "100"}, time.Minute)
	cache.MarkPending("100")

	record := cache.Get("100")
	require.Equal(t, core.FetchStateFresh, record.FetchState, "payload-holding entry keeps its state")

	cache.MarkPending("200")
	require.Equal(t, core.FetchStatePending, cache.Get("200").FetchState)
}

func TestCacheStaleKeys(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMetadataCache()
	cache.Clock = func() time.Time { return clock }

	cache.UpsertSuccess("old", &core.ModPayload{Key: "old"}, time.Minute)
	cache.UpsertSuccess("new", &core.ModPayload{Key: "new"}, time.Hour)

	now := clock.Add(10 * time.Minute)

	var stale []string
	for key := range cache.StaleKeys(now) {
		stale = append(stale, key)
	}
	require.Equal(t, []string{"old"}, stale)

	// The sequence is restartable: a second range re-evaluates the cache.
	cache.UpsertSuccess("old", &core.ModPayload{Key: "old"}, 24*time.Hour)
	stale = stale[:0]
	for key := range cache.StaleKeys(now) {
		stale = append(stale, key)
	}
	require.Empty(t, stale)
}

func TestCacheSeed(t *testing.T) {
	cache := NewMetadataCache()
	fetched := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cache.Seed(&core.ModRecord{
		Key:           "100",
		Payload:       &core.ModPayload{Key: "100", Title: "Snapshot"},
		FetchState:    core.FetchStateFresh,
		LastFetchedAt: &fetched,
	})

	record := cache.Get("100")
	require.Equal(t, core.FetchStateStale, record.FetchState, "seeded records start stale")
	require.Equal(t, "Snapshot", record.Payload.Title)

	// Live state wins over snapshots.
	cache.UpsertSuccess("200", &core.ModPayload{Key: "200", Title: "Live"}, time.Minute)
	cache.Seed(&core.ModRecord{
		Key:     "200",
		Payload: &core.ModPayload{Key: "200", Title: "Old Snapshot"},
	})
	require.Equal(t, "Live", cache.Get("200").Payload.Title)
}

func TestCacheGetReturnsCopy(t *testing.T) {
	cache := NewMetadataCache()
	cache.UpsertSuccess("100", &core.ModPayload{Key: "100", Title: "Original"}, time.Minute)

	record := cache.Get("100")
	record.Payload.Title = "Mutated"

	require.Equal(t, "Original", cache.Get("100").Payload.Title)
}
