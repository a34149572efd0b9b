package engine

import (
	"context"
	"time"

	"github.com/modlens/modlens/internal/core"
)

// SyncController is the process-wide façade over the fetch engine. It is
// constructed once by the composition root and passed by reference to HTTP
// handlers and CLI commands; there is no ambient global instance.
type SyncController struct {
	scheduler *FetchScheduler
	interval  time.Duration
}

// NewSyncController wires a controller around an assembled scheduler.
// sweepInterval controls the background tick; zero falls back to the
// scheduler's configured default.
func NewSyncController(scheduler *FetchScheduler, sweepInterval time.Duration) *SyncController {
	return &SyncController{
		scheduler: scheduler,
		interval:  sweepInterval,
	}
}

// GetOrRefresh returns the best available record for key immediately — stale
// data included — and, when the record is stale or missing, triggers an
// on-demand fetch in the background so the next read is fresher. The read
// path never waits on the network, and upstream failures never surface here;
// they are recorded on the cache entry.
func (c *SyncController) GetOrRefresh(ctx context.Context, key string) *core.ModRecord {
	if c == nil || c.scheduler == nil || key == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	record := c.scheduler.Cache.Get(key)
	if record != nil && record.FetchState == core.FetchStateFresh {
		return record
	}
	if record != nil && record.FetchState == core.FetchStatePending {
		return record
	}

	go c.scheduler.RequestFetch(context.WithoutCancel(ctx), key, core.PriorityOnDemand)

	if record == nil {
		return &core.ModRecord{Key: key, FetchState: core.FetchStatePending}
	}
	return record
}

// Fetch performs a synchronous on-demand fetch and returns the resulting
// record plus the scheduler outcome. Used by the CLI, which wants to wait.
func (c *SyncController) Fetch(ctx context.Context, key string) (*core.ModRecord, Outcome) {
	if c == nil || c.scheduler == nil {
		return nil, OutcomeFailed
	}

	outcome := c.scheduler.RequestFetch(ctx, key, core.PriorityOnDemand)
	return c.scheduler.Cache.Get(key), outcome
}

// Start begins the background refresh loop. Idempotent.
func (c *SyncController) Start() {
	if c == nil || c.scheduler == nil {
		return
	}
	c.scheduler.StartBackgroundLoop(c.interval)
}

// Stop halts the background refresh loop, leaving in-flight fetches to
// complete. Idempotent.
func (c *SyncController) Stop() {
	if c == nil || c.scheduler == nil {
		return
	}
	c.scheduler.StopBackgroundLoop()
}

// Status reports the engine state for polling callers.
func (c *SyncController) Status() core.EngineStatus {
	if c == nil || c.scheduler == nil {
		return core.EngineStatus{}
	}

	snapshot := c.scheduler.Bucket.Snapshot()
	return core.EngineStatus{
		Running:        c.scheduler.Running(),
		TokenBucket:    snapshot,
		CanMakeRequest: snapshot.Tokens >= 1,
		RateLimited:    c.scheduler.LastAdmissionDenied(),
	}
}

// Record returns the cached record for key without triggering a fetch.
func (c *SyncController) Record(key string) *core.ModRecord {
	if c == nil || c.scheduler == nil {
		return nil
	}
	return c.scheduler.Cache.Get(key)
}

// Warm seeds the cache with previously persisted records, marked stale so the
// first sweep refreshes them under the normal budget.
func (c *SyncController) Warm(records []*core.ModRecord) {
	if c == nil || c.scheduler == nil {
		return
	}
	for _, record := range records {
		if record == nil || record.Payload == nil {
			continue
		}
		c.scheduler.Cache.Seed(record)
	}
}
