package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fail(context.Context) error { return errBoom }
func pass(context.Context) error { return nil }

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Cooldown: time.Second})
	ctx := context.Background()
	assert.Equal(t, StateClosed, b.State())

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Call(ctx, fail), errBoom)
	}
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Call(ctx, pass), ErrCircuitOpen)
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Cooldown: time.Second})
	ctx := context.Background()
	_ = b.Call(ctx, fail)
	require.NoError(t, b.Call(ctx, pass))
	_ = b.Call(ctx, fail)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var transitions []string
	b := NewBreaker(BreakerOpts{
		FailThreshold: 1,
		Cooldown:      5 * time.Second,
		OnStateChange: func(from, to State) { transitions = append(transitions, from.String()+">"+to.String()) },
	})
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_ = b.Call(ctx, fail)
	require.Equal(t, StateOpen, b.State())

	now = now.Add(6 * time.Second)
	r := Do(ctx, b, func(context.Context) (string, error) { return "ok", nil })
	require.True(t, r.IsOk())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []string{"closed>open", "open>half-open", "half-open>closed"}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Cooldown: time.Second})
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_ = b.Call(ctx, fail)
	now = now.Add(2 * time.Second)
	r := Do(ctx, b, func(context.Context) (int, error) { return 0, errBoom })
	assert.ErrorIs(t, r.Error(), errBoom)
	assert.Equal(t, StateOpen, b.State())
}

func TestLimiterBurst(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 0.001, Burst: 2})
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Wait(ctx), ErrRateLimited)
}

func TestKeyedLimiterIsolatesKeys(t *testing.T) {
	k := NewKeyedLimiter(LimiterOpts{Rate: 0.001, Burst: 1}, time.Minute)
	assert.True(t, k.Allow("alice"))
	assert.False(t, k.Allow("alice"))
	assert.True(t, k.Allow("bob"))
	assert.Equal(t, 2, k.Len())
}

func TestKeyedLimiterEvictsIdle(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	k := NewKeyedLimiter(LimiterOpts{Rate: 1, Burst: 1}, time.Minute)
	k.now = func() time.Time { return now }
	k.Allow("alice")
	now = now.Add(2 * time.Minute)
	k.Allow("bob")
	assert.Equal(t, 1, k.Len())
}
