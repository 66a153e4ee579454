package vote

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryAfterFloorsAtOneSecond(t *testing.T) {
	assert.Equal(t, 1, retryAfter(0))
	assert.Equal(t, 1, retryAfter(-time.Minute))
	assert.Equal(t, 1, retryAfter(300*time.Millisecond))
	assert.Equal(t, 2, retryAfter(1500*time.Millisecond))
	assert.Equal(t, 900, retryAfter(15*time.Minute))
}

func TestNewRateLimiterDefaults(t *testing.T) {
	l := NewRateLimiter(0, 0)
	assert.Equal(t, DefaultVotesPerWindow, l.limit)
	assert.Equal(t, DefaultVoteWindow, l.window)
}

func TestLimiterCountsOnlyInWindowVotesOfThatDevice(t *testing.T) {
	f := newFixture(t)
	d := device("10.0.0.1")
	other := device("10.0.0.2")

	_, err := f.castAs("u1", d, f.optX, "")
	require.NoError(t, err)
	_, err = f.castAs("u2", other, f.optX, "")
	require.NoError(t, err)

	l := NewRateLimiter(2, time.Hour)
	v, err := l.Peek(f.db, f.pollID, d.Fingerprint, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, Verdict{Count: 1}, v)

	v, err = l.Peek(f.db, f.pollID, d.Fingerprint, f.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, v.Count, "a vote exactly one window old is outside the window")
}

func TestRetryAfterStrictlyDecreasesUntilWindowSlides(t *testing.T) {
	f := newFixture(t)
	d := device("10.0.0.1")

	_, err := f.castAs("u1", d, f.optX, "")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.castAs("u2", d, f.optY, "")
	require.NoError(t, err)

	_, err = f.castAs("u3", d, f.optX, "")
	var limited *RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.Equal(t, 59*60, limited.RetryAfterSeconds)

	previous := limited.RetryAfterSeconds + 1
	for i := 0; i < 20; i++ {
		s := f.statusOf(t, "u3", d)
		if s.CanVote {
			assert.Zero(t, s.RetryAfterSeconds)
			assert.Empty(t, s.Reason)
			return
		}
		assert.Equal(t, ReasonRateLimit, s.Reason)
		assert.Less(t, s.RetryAfterSeconds, previous)
		assert.GreaterOrEqual(t, s.RetryAfterSeconds, 1)
		previous = s.RetryAfterSeconds
		f.clock.Advance(7 * time.Minute)
	}
	t.Fatal("device never left the rate limit")
}
