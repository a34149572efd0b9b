package engine

import (
	"iter"
	"sync"
	"time"

	"github.com/modlens/modlens/internal/core"
)

// MetadataCache is the in-memory keyed store of fetched mod records.
// Entries are created on first request for a key and mutated in place on every
// fetch attempt; a failed refresh never discards previously known-good data.
type MetadataCache struct {
	mu      sync.RWMutex
	records map[string]*core.ModRecord

	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// NewMetadataCache returns an empty cache.
func NewMetadataCache() *MetadataCache {
	return &MetadataCache{records: make(map[string]*core.ModRecord)}
}

// Get returns a copy of the record for key, or nil if the key is unknown.
func (c *MetadataCache) Get(key string) *core.ModRecord {
	if c == nil {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.recordLocked(key).Clone()
}

// MarkPending records that a fetch is starting for key, creating the entry on
// first sight. Records with a payload keep it; state becomes Pending only for
// entries that have never resolved.
func (c *MetadataCache) MarkPending(key string) {
	if c == nil || key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	record := c.records[key]
	if record == nil {
		record = &core.ModRecord{Key: key, FetchState: core.FetchStatePending}
		c.records[key] = record
		return
	}
	if record.Payload == nil {
		record.FetchState = core.FetchStatePending
	}
}

// UpsertSuccess stores a successful fetch result for key with the given TTL.
func (c *MetadataCache) UpsertSuccess(key string, payload *core.ModPayload, ttl time.Duration) {
	if c == nil || key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	record := c.records[key]
	if record == nil {
		record = &core.ModRecord{Key: key}
		c.records[key] = record
	}

	record.Payload = payload
	record.FetchState = core.FetchStateFresh
	record.LastFetchedAt = &now
	record.StaleAfter = now.Add(ttl)
	record.LastError = ""
	record.ConsecutiveFailures = 0
}

// MarkFailed records a failed fetch attempt for key. Entries without a payload
// become Failed; entries holding stale-but-present data are downgraded to
// Stale and keep the payload.
func (c *MetadataCache) MarkFailed(key string, fetchErr error) {
	if c == nil || key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	record := c.records[key]
	if record == nil {
		record = &core.ModRecord{Key: key}
		c.records[key] = record
	}

	record.ConsecutiveFailures++
	if fetchErr != nil {
		record.LastError = fetchErr.Error()
	}
	if record.Payload == nil {
		record.FetchState = core.FetchStateFailed
	} else {
		record.FetchState = core.FetchStateStale
	}
}

// Seed inserts a previously persisted record, marked Stale so the next sweep
// refreshes it. Existing entries are left alone; live state wins over
// snapshots.
func (c *MetadataCache) Seed(record *core.ModRecord) {
	if c == nil || record == nil || record.Key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.records[record.Key]; exists {
		return
	}
	seeded := record.Clone()
	seeded.FetchState = core.FetchStateStale
	c.records[record.Key] = seeded
}

// Failures returns the consecutive failure count for key.
func (c *MetadataCache) Failures(key string) int {
	if c == nil {
		return 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if record := c.records[key]; record != nil {
		return record.ConsecutiveFailures
	}
	return 0
}

// StaleKeys yields the keys whose staleness deadline has passed at now.
// The sequence is lazy and restartable: each range re-evaluates against the
// live cache, so the sweep never works from a stale materialized list.
func (c *MetadataCache) StaleKeys(now time.Time) iter.Seq[string] {
	return func(yield func(string) bool) {
		if c == nil {
			return
		}

		c.mu.RLock()
		keys := make([]string, 0, len(c.records))
		for key, record := range c.records {
			if record == nil {
				continue
			}
			if !record.StaleAfter.After(now) {
				keys = append(keys, key)
			}
		}
		c.mu.RUnlock()

		for _, key := range keys {
			if !yield(key) {
				return
			}
		}
	}
}

// Len returns the number of tracked keys.
func (c *MetadataCache) Len() int {
	if c == nil {
		return 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.records)
}

// recordLocked marks in-place staleness before reads. Callers must hold at
// least the read lock; the time-based Fresh→Stale transition is reported
// without mutating the record so reads stay lock-upgrade free.
func (c *MetadataCache) recordLocked(key string) *core.ModRecord {
	record := c.records[key]
	if record == nil {
		return nil
	}
	if record.FetchState == core.FetchStateFresh && !record.StaleAfter.After(c.now()) {
		view := *record
		view.FetchState = core.FetchStateStale
		return &view
	}
	return record
}

func (c *MetadataCache) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}
