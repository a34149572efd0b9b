package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenBucketBurstAndRefill(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bucket := NewTokenBucket(5, 1)
	bucket.Clock = func() time.Time { return clock }

	for i := 0; i < 5; i++ {
		require.True(t, bucket.TryAcquire(1), "acquire %d should succeed", i+1)
	}
	require.False(t, bucket.TryAcquire(1), "sixth immediate acquire should fail")

	clock = clock.Add(time.Second)
	require.True(t, bucket.TryAcquire(1), "one token should be available after 1s")
	require.False(t, bucket.TryAcquire(1))
}

func TestTokenBucketNeverExceedsCapacity(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bucket := NewTokenBucket(3, 10)
	bucket.Clock = func() time.Time { return clock }

	// A long idle period must not accumulate beyond capacity.
	clock = clock.Add(time.Hour)
	snapshot := bucket.Snapshot()
	require.Equal(t, float64(3), snapshot.Tokens)
	require.Equal(t, 3, snapshot.Capacity)
	require.Equal(t, float64(10), snapshot.RefillRatePerSecond)
}

func TestTokenBucketNeverGoesNegative(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bucket := NewTokenBucket(2, 0.5)
	bucket.Clock = func() time.Time { return clock }

	require.True(t, bucket.TryAcquire(1))
	require.True(t, bucket.TryAcquire(1))
	for i := 0; i < 10; i++ {
		require.False(t, bucket.TryAcquire(1))
	}
	require.GreaterOrEqual(t, bucket.Snapshot().Tokens, float64(0))

	// A denied acquire leaves the balance untouched.
	clock = clock.Add(time.Second)
	require.InDelta(t, 0.5, bucket.Snapshot().Tokens, 0.001)
	require.False(t, bucket.TryAcquire(1))
	require.InDelta(t, 0.5, bucket.Snapshot().Tokens, 0.001)
}

func TestTokenBucketFractionalRefill(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bucket := NewTokenBucket(10, 0.5)
	bucket.Clock = func() time.Time { return clock }

	for i := 0; i < 10; i++ {
		require.True(t, bucket.TryAcquire(1))
	}

	clock = clock.Add(time.Second)
	require.False(t, bucket.TryAcquire(1), "half a token is not enough")

	clock = clock.Add(time.Second)
	require.True(t, bucket.TryAcquire(1), "two seconds at 0.5/s is one token")
}

func TestTokenBucketClockBackwards(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC)
	bucket := NewTokenBucket(5, 1)
	bucket.Clock = func() time.Time { return clock }

	require.True(t, bucket.TryAcquire(1))

	clock = clock.Add(-time.Minute)
	snapshot := bucket.Snapshot()
	require.Equal(t, float64(4), snapshot.Tokens, "backwards clock must not credit tokens")
}
