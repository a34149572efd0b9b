package engine

import (
	"context"
	"sync"
	"time"

	"github.com/modlens/modlens/internal/core"
	"github.com/modlens/modlens/internal/metrics"
)

// Fetcher is the single capability the engine requires from the upstream mod
// API client.
type Fetcher interface {
	FetchOne(ctx context.Context, key string) (*core.ModPayload, error)
}

// Outcome reports how a fetch request was resolved.
type Outcome string

const (
	// OutcomeFetched means the upstream call completed and the cache holds a
	// fresh record.
	OutcomeFetched Outcome = "fetched"
	// OutcomeAlreadyInFlight means another fetch for the key is outstanding;
	// the caller should await the eventual cache update.
	OutcomeAlreadyInFlight Outcome = "already_in_flight"
	// OutcomeRateLimited means local admission was denied; the upstream was
	// never contacted.
	OutcomeRateLimited Outcome = "rate_limited"
	// OutcomeFailed means the upstream call was made and failed; the failure
	// is recorded on the cache entry.
	OutcomeFailed Outcome = "failed"
)

// FetchScheduler coordinates on-demand and background fetches against one
// shared token budget. It owns the pending set (single-flight guarantee), the
// retry policy, and the periodic staleness sweep.
type FetchScheduler struct {
	Bucket   *TokenBucket
	Cache    *MetadataCache
	Upstream Fetcher

	// TTL applied to successful fetches.
	TTL time.Duration
	// SweepInterval is the default background tick period.
	SweepInterval time.Duration
	// BaseRetryDelay seeds the exponential backoff after a transient failure.
	BaseRetryDelay time.Duration
	// MaxRetryDelay caps the backoff.
	MaxRetryDelay time.Duration
	// MaxRetries is the consecutive-failure ceiling after which automatic
	// retries stop for a key.
	MaxRetries int

	// Persist, when set, is invoked with the updated record after every
	// successful fetch. Used for write-through snapshots.
	Persist func(ctx context.Context, record *core.ModRecord)

	// Clock overrides time.Now for tests.
	Clock func() time.Time

	mu          sync.Mutex
	pending     map[string]struct{}
	retryTimers map[string]*time.Timer
	lastDenied  bool
	stopped     bool
	loopCancel  context.CancelFunc
	loopDone    chan struct{}
}

// RequestFetch performs (or declines) one upstream fetch for key. The network
// call runs outside every lock; only pending-set and bucket bookkeeping are
// serialized. OnDemand and Background requests compete for the next available
// token on equal footing — there is no queue.
func (s *FetchScheduler) RequestFetch(ctx context.Context, key string, priority core.Priority) Outcome {
	if s == nil || s.Upstream == nil || key == "" {
		return OutcomeFailed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.pending == nil {
		s.pending = make(map[string]struct{})
	}
	if _, inFlight := s.pending[key]; inFlight {
		s.mu.Unlock()
		metrics.RecordFetch(string(OutcomeAlreadyInFlight), string(priority), 0)
		return OutcomeAlreadyInFlight
	}
	s.pending[key] = struct{}{}
	s.mu.Unlock()

	if !s.Bucket.TryAcquire(1) {
		s.mu.Lock()
		delete(s.pending, key)
		s.lastDenied = true
		s.mu.Unlock()
		metrics.RecordAdmissionDenied(string(priority))
		metrics.RecordFetch(string(OutcomeRateLimited), string(priority), 0)
		return OutcomeRateLimited
	}

	s.mu.Lock()
	s.lastDenied = false
	s.mu.Unlock()

	s.Cache.MarkPending(key)

	started := time.Now()
	payload, err := s.Upstream.FetchOne(ctx, key)
	elapsed := time.Since(started)
	if err != nil {
		s.Cache.MarkFailed(key, err)
		s.clearPending(key)
		s.scheduleRetry(key, err)
		metrics.RecordFetch(string(OutcomeFailed), string(priority), elapsed)
		return OutcomeFailed
	}

	s.Cache.UpsertSuccess(key, payload, s.ttl())
	if s.Persist != nil {
		s.Persist(ctx, s.Cache.Get(key))
	}
	s.clearPending(key)
	metrics.RecordFetch(string(OutcomeFetched), string(priority), elapsed)
	return OutcomeFetched
}

// StartBackgroundLoop starts the periodic staleness sweep. Idempotent: a
// second call while running is a no-op.
func (s *FetchScheduler) StartBackgroundLoop(interval time.Duration) {
	if s == nil {
		return
	}
	if interval <= 0 {
		interval = s.SweepInterval
	}
	if interval <= 0 {
		interval = time.Minute
	}

	s.mu.Lock()
	if s.loopCancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.loopCancel = cancel
	s.loopDone = done
	s.stopped = false
	s.mu.Unlock()

	go s.run(ctx, interval, done)
}

// StopBackgroundLoop cancels the sweep ticker and any scheduled retries.
// In-flight fetches complete on their own; no new ones are started. Idempotent.
func (s *FetchScheduler) StopBackgroundLoop() {
	if s == nil {
		return
	}

	s.mu.Lock()
	cancel := s.loopCancel
	done := s.loopDone
	s.loopCancel = nil
	s.loopDone = nil
	timers := s.retryTimers
	s.retryTimers = nil
	s.stopped = true
	s.mu.Unlock()

	for _, timer := range timers {
		timer.Stop()
	}

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the background loop is active.
func (s *FetchScheduler) Running() bool {
	if s == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loopCancel != nil
}

// LastAdmissionDenied reports whether the most recent admission attempt was
// rejected by the token bucket.
func (s *FetchScheduler) LastAdmissionDenied() bool {
	if s == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastDenied
}

func (s *FetchScheduler) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// sweep re-enqueues stale keys, bounded by the remaining token budget so keys
// are not needlessly flipped pending-then-denied once the bucket drains.
func (s *FetchScheduler) sweep(ctx context.Context) {
	submitted := 0
	defer func() { metrics.RecordSweep(submitted) }()

	now := s.now()
	for key := range s.Cache.StaleKeys(now) {
		if ctx.Err() != nil {
			return
		}
		if s.isPending(key) {
			continue
		}
		if s.Cache.Failures(key) > s.MaxRetries {
			// Past the retry ceiling; only an explicit request revives it.
			continue
		}
		if s.Bucket.Snapshot().Tokens < 1 {
			return
		}
		submitted++
		if s.RequestFetch(ctx, key, core.PriorityBackground) == OutcomeRateLimited {
			return
		}
	}
}

// scheduleRetry arms a one-shot timer that resubmits the key as a Background
// fetch after an exponential backoff. At most one retry timer exists per key.
func (s *FetchScheduler) scheduleRetry(key string, fetchErr error) {
	if !core.IsRetryable(fetchErr) {
		return
	}

	failures := s.Cache.Failures(key)
	if failures > s.MaxRetries {
		return
	}

	delay := s.retryDelay(failures)

	s.mu.Lock()
	defer s.mu.Unlock()

	// A fetch that fails after Stop must not revive scheduling.
	if s.stopped {
		return
	}
	if s.retryTimers == nil {
		s.retryTimers = make(map[string]*time.Timer)
	}
	if _, armed := s.retryTimers[key]; armed {
		return
	}
	s.retryTimers[key] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.retryTimers, key)
		s.mu.Unlock()
		s.RequestFetch(context.Background(), key, core.PriorityBackground)
	})
	metrics.RecordFetchRetry(failures)
}

// retryDelay computes base × 2^(failures-1), capped at MaxRetryDelay.
func (s *FetchScheduler) retryDelay(failures int) time.Duration {
	base := s.BaseRetryDelay
	if base <= 0 {
		base = time.Second
	}
	maxDelay := s.MaxRetryDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Minute
	}

	delay := base
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (s *FetchScheduler) isPending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.pending[key]
	return ok
}

func (s *FetchScheduler) clearPending(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, key)
}

func (s *FetchScheduler) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return 30 * time.Minute
}

func (s *FetchScheduler) now() time.Time {
	if s != nil && s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}
