package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/modlens/modlens/internal/core"
)

func newTestController(upstream Fetcher) *SyncController {
	return NewSyncController(newTestScheduler(upstream, 10), 10*time.Millisecond)
}

func TestControllerGetOrRefreshUnknownKey(t *testing.T) {
	upstream := &fakeFetcher{payload: &core.ModPayload{Key: "100", Title: "Fetched"}}
	c := newTestController(upstream)

	record := c.GetOrRefresh(context.Background(), "100")
	require.NotNil(t, record)
	require.Equal(t, core.FetchStatePending, record.FetchState, "unknown key answers immediately with a pending placeholder")
	require.Nil(t, record.Payload)

	// The side-effect fetch lands shortly after.
	require.Eventually(t, func() bool {
		r := c.Record("100")
		return r != nil && r.FetchState == core.FetchStateFresh
	}, 2*time.Second, 5*time.Millisecond)
}

func TestControllerGetOrRefreshServesStaleImmediately(t *testing.T) {
	release := make(chan struct{})
	upstream := &fakeFetcher{release: release, payload: &core.ModPayload{Key: "100", Title: "New"}}
	c := newTestController(upstream)

	c.scheduler.Cache.UpsertSuccess("100", &core.ModPayload{Key: "100", Title: "Old"}, -time.Minute)

	start := time.Now()
	record := c.GetOrRefresh(context.Background(), "100")
	elapsed := time.Since(start)

	require.NotNil(t, record.Payload)
	require.Equal(t, "Old", record.Payload.Title, "stale payload is served without waiting on the refresh")
	require.Less(t, elapsed, 100*time.Millisecond, "read path never blocks on the network")

	close(release)
	require.Eventually(t, func() bool {
		r := c.Record("100")
		return r.FetchState == core.FetchStateFresh && r.Payload.Title == "New"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestControllerStatus(t *testing.T) {
	upstream := &fakeFetcher{}
	c := newTestController(upstream)

	status := c.Status()
	require.False(t, status.Running)
	require.Equal(t, 10, status.TokenBucket.Capacity)
	require.True(t, status.CanMakeRequest)
	require.False(t, status.RateLimited)

	c.Start()
	require.True(t, c.Status().Running)
	c.Start() // idempotent
	require.True(t, c.Status().Running)

	c.Stop()
	require.False(t, c.Status().Running)
	c.Stop() // idempotent
	require.False(t, c.Status().Running)
}

func TestControllerStatusReportsRateLimited(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	upstream := &fakeFetcher{}
	scheduler := newTestScheduler(upstream, 1)
	scheduler.Bucket.Clock = func() time.Time { return clock }
	c := NewSyncController(scheduler, 0)

	_, outcome := c.Fetch(context.Background(), "100")
	require.Equal(t, OutcomeFetched, outcome)

	_, outcome = c.Fetch(context.Background(), "200")
	require.Equal(t, OutcomeRateLimited, outcome)

	status := c.Status()
	require.True(t, status.RateLimited)
	require.False(t, status.CanMakeRequest)
}

func TestControllerWarm(t *testing.T) {
	upstream := &fakeFetcher{}
	c := newTestController(upstream)

	fetched := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Warm([]*core.ModRecord{
		{
			Key:           "100",
			Payload:       &core.ModPayload{Key: "100", Title: "Persisted"},
			LastFetchedAt: &fetched,
		},
		{Key: "no-payload"}, // skipped: nothing useful to serve
		nil,
	})

	record := c.Record("100")
	require.NotNil(t, record)
	require.Equal(t, core.FetchStateStale, record.FetchState)
	require.Equal(t, "Persisted", record.Payload.Title)

	require.Nil(t, c.Record("no-payload"))
}
