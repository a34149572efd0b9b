package engine

import (
	"sync"
	"time"

	"github.com/modlens/modlens/internal/core"
)

// TokenBucket is the shared admission primitive for upstream requests.
// Refill is continuous and computed lazily from elapsed time on each access;
// there is no ticking goroutine.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   int
	tokens     float64
	refillRate float64
	lastRefill time.Time

	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// NewTokenBucket returns a bucket that starts full.
func NewTokenBucket(capacity int, refillRatePerSecond float64) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	if refillRatePerSecond <= 0 {
		refillRatePerSecond = 1
	}
	return &TokenBucket{
		capacity:   capacity,
		tokens:     float64(capacity),
		refillRate: refillRatePerSecond,
	}
}

// TryAcquire refills the bucket, then consumes cost tokens if available.
// It never blocks; a false return leaves the bucket unchanged.
func (b *TokenBucket) TryAcquire(cost float64) bool {
	if b == nil || cost <= 0 {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens < cost {
		return false
	}
	b.tokens -= cost
	return true
}

// Snapshot refills the bucket and reports its current state.
func (b *TokenBucket) Snapshot() core.BucketSnapshot {
	if b == nil {
		return core.BucketSnapshot{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return core.BucketSnapshot{
		Tokens:              b.tokens,
		Capacity:            b.capacity,
		RefillRatePerSecond: b.refillRate,
	}
}

// refill credits tokens for the time elapsed since the last access.
// Callers must hold the mutex.
func (b *TokenBucket) refill() {
	now := b.now()
	if b.lastRefill.IsZero() {
		b.lastRefill = now
		return
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed < 0 {
		// Clock went backwards; advance the mark without crediting tokens.
		b.lastRefill = now
		return
	}

	b.tokens += elapsed * b.refillRate
	if b.tokens > float64(b.capacity) {
		b.tokens = float64(b.capacity)
	}
	b.lastRefill = now
}

func (b *TokenBucket) now() time.Time {
	if b != nil && b.Clock != nil {
		return b.Clock()
	}
	return time.Now().UTC()
}
