package core

import "time"

// FetchState identifies the freshness state of a cached mod record.
type FetchState string

const (
	FetchStateFresh   FetchState = "fresh"
	FetchStateStale   FetchState = "stale"
	FetchStatePending FetchState = "pending"
	FetchStateFailed  FetchState = "failed"
)

// Priority identifies who asked for a fetch.
type Priority string

const (
	// PriorityOnDemand marks fetches triggered by an explicit caller request.
	PriorityOnDemand Priority = "on_demand"
	// PriorityBackground marks fetches issued by the periodic sweep or retry.
	PriorityBackground Priority = "background"
)

// ModPayload is the upstream metadata for a single mod. The engine treats it
// as opaque beyond the identifying fields extracted at fetch time.
type ModPayload struct {
	Key         string         `json:"key"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	FileSize    int64          `json:"file_size,omitempty"`
	UpdatedAt   *time.Time     `json:"updated_at,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// ModRecord is a cache entry for one mod key.
type ModRecord struct {
	Key                 string      `json:"key"`
	Payload             *ModPayload `json:"payload,omitempty"`
	FetchState          FetchState  `json:"fetch_state"`
	LastFetchedAt       *time.Time  `json:"last_fetched_at,omitempty"`
	StaleAfter          time.Time   `json:"stale_after"`
	LastError           string      `json:"last_error,omitempty"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
}

// Clone returns a copy safe to hand to callers while the cache keeps mutating
// the original in place.
func (r *ModRecord) Clone() *ModRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Payload != nil {
		payload := *r.Payload
		clone.Payload = &payload
	}
	if r.LastFetchedAt != nil {
		fetched := *r.LastFetchedAt
		clone.LastFetchedAt = &fetched
	}
	return &clone
}

// BucketSnapshot is a point-in-time view of the token bucket.
type BucketSnapshot struct {
	Tokens              float64 `json:"tokens"`
	Capacity            int     `json:"capacity"`
	RefillRatePerSecond float64 `json:"refillRatePerSecond"`
}

// EngineStatus aggregates engine state for status reporting. It is derived on
// each call, never stored.
type EngineStatus struct {
	Running        bool           `json:"isRunning"`
	TokenBucket    BucketSnapshot `json:"tokenBucket"`
	CanMakeRequest bool           `json:"canMakeRequest"`
	RateLimited    bool           `json:"rateLimited"`
}
