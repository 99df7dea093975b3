package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckAllowsWithinBurst(t *testing.T) {
	l := New(100, time.Minute, 5)
	defer l.Stop()

	res := l.Check("1.2.3.4")
	assert.True(t, res.Allowed)
}

func TestCheckRejectsAfterBurstExhausted(t *testing.T) {
	l := New(1, time.Minute, 1)
	defer l.Stop()

	first := l.Check("9.9.9.9")
	assert.True(t, first.Allowed)

	second := l.Check("9.9.9.9")
	assert.False(t, second.Allowed)
	assert.Greater(t, second.RetryAfter, time.Duration(0))
}

func TestDistinctAddressesTrackedSeparately(t *testing.T) {
	l := New(1, time.Minute, 1)
	defer l.Stop()

	assert.True(t, l.Check("1.1.1.1").Allowed)
	assert.True(t, l.Check("2.2.2.2").Allowed)
	assert.Equal(t, 2, l.VisitorCount())
}

func TestGCEvictsStaleVisitors(t *testing.T) {
	l := New(10, time.Minute, 10)
	defer l.Stop()
	l.Check("5.5.5.5")
	l.staleAfter = 0
	l.gc()
	assert.Equal(t, 0, l.VisitorCount())
}

func TestSlidingWindowEnforcesLimit(t *testing.T) {
	w := newSlidingWindow(time.Second, 2)
	now := time.Now()
	ok, remaining := w.allow(now)
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)
	ok, remaining = w.allow(now)
	assert.True(t, ok)
	assert.Equal(t, 0, remaining)
	ok, _ = w.allow(now)
	assert.False(t, ok)
}

func TestCheckReportsLimitAndRemaining(t *testing.T) {
	l := New(2, time.Second, 0)
	defer l.Stop()

	first := l.Check("203.0.113.5")
	assert.True(t, first.Allowed)
	assert.Equal(t, 2, first.Limit)
	assert.Equal(t, 1, first.Remaining)

	second := l.Check("203.0.113.5")
	assert.True(t, second.Allowed)
	assert.Equal(t, 0, second.Remaining)

	third := l.Check("203.0.113.5")
	assert.False(t, third.Allowed)
	assert.Equal(t, 2, third.Limit)
	assert.Equal(t, 0, third.Remaining)
	assert.GreaterOrEqual(t, third.RetryAfter, time.Second)
}

func TestWindowDenyDoesNotBurnBucketToken(t *testing.T) {
	// burst=5 so the token bucket alone would allow several more
	// requests; window limit=1 must still be the deciding factor, and
	// denying on the window must not also consume a bucket token.
	l := New(1, time.Minute, 5)
	defer l.Stop()

	assert.True(t, l.Check("172.16.0.1").Allowed)
	for i := 0; i < 3; i++ {
		assert.False(t, l.Check("172.16.0.1").Allowed)
	}
}
