package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLimiter returns a limiter with a controllable clock and
// recorded sleeps.
func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *time.Time, *[]time.Duration) {
	t.Helper()

	l := New(cfg)
	t.Cleanup(l.Close)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	l.now = func() time.Time { return *clock }

	var sleeps []time.Duration
	l.sleep = func(d time.Duration) {
		sleeps = append(sleeps, d)
		*clock = clock.Add(d)
	}

	return l, clock, &sleeps
}

func TestLimiter_AdmitsUnderLimit(t *testing.T) {
	l, _, _ := newTestLimiter(t, Config{Limit: 3, Window: time.Second})

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire("ep1"))
	}
	assert.Equal(t, 3, l.Usage("ep1"))
}

func TestLimiter_ExhaustionRaisesRateLimitError(t *testing.T) {
	l, _, _ := newTestLimiter(t, Config{Limit: 2, Window: 10 * time.Second, WaitThreshold: 100 * time.Millisecond})

	require.NoError(t, l.Acquire("ep1"))
	require.NoError(t, l.Acquire("ep1"))

	err := l.Acquire("ep1")
	require.Error(t, err)

	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, "ep1", rle.Key)
	assert.Greater(t, rle.RetryAfter, 9*time.Second)
}

func TestLimiter_ShortRemainderWaitsItOut(t *testing.T) {
	l, clock, sleeps := newTestLimiter(t, Config{Limit: 1, Window: time.Second, WaitThreshold: 500 * time.Millisecond})

	require.NoError(t, l.Acquire("ep1"))

	// 600ms into the window, 400ms remain: under the threshold, so the
	// limiter should sleep out the window and admit.
	*clock = clock.Add(600 * time.Millisecond)
	require.NoError(t, l.Acquire("ep1"))

	require.Len(t, *sleeps, 1)
	assert.Equal(t, 400*time.Millisecond, (*sleeps)[0])
	assert.Equal(t, 1, l.Usage("ep1"))
}

func TestLimiter_WindowResetsAtomically(t *testing.T) {
	l, clock, _ := newTestLimiter(t, Config{Limit: 2, Window: time.Second})

	require.NoError(t, l.Acquire("ep1"))
	require.NoError(t, l.Acquire("ep1"))

	*clock = clock.Add(1100 * time.Millisecond)

	require.NoError(t, l.Acquire("ep1"))
	assert.Equal(t, 1, l.Usage("ep1"), "count must reset with the new window")
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l, _, _ := newTestLimiter(t, Config{Limit: 1, Window: 10 * time.Second, WaitThreshold: time.Millisecond})

	require.NoError(t, l.Acquire("ep1"))
	require.NoError(t, l.Acquire("ep2"))

	var rle *RateLimitError
	require.ErrorAs(t, l.Acquire("ep1"), &rle)
	require.ErrorAs(t, l.Acquire("ep2"), &rle)
}

func TestLimiter_CollectDeletesExpiredOnly(t *testing.T) {
	l, clock, _ := newTestLimiter(t, Config{Limit: 1, Window: time.Second})

	require.NoError(t, l.Acquire("old"))
	*clock = clock.Add(2 * time.Second)
	require.NoError(t, l.Acquire("fresh"))

	l.collect()

	l.mu.Lock()
	_, hasOld := l.entries["old"]
	_, hasFresh := l.entries["fresh"]
	l.mu.Unlock()

	assert.False(t, hasOld, "expired window should be collected")
	assert.True(t, hasFresh, "active window must survive gc")
}

func TestRateLimitError_Message(t *testing.T) {
	err := &RateLimitError{Key: "host", RetryAfter: time.Second}
	assert.Contains(t, err.Error(), "host")

	var target *RateLimitError
	assert.True(t, errors.As(err, &target))
}
