package fn

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult(t *testing.T) {
	r := Ok(42)
	require.True(t, r.IsOk())
	v, err := r.Unwrap()
	assert.Equal(t, 42, v)
	assert.NoError(t, err)

	e := Err[int](errors.New("fail"))
	assert.True(t, e.IsErr())
	assert.EqualError(t, e.Error(), "fail")
}

func TestFromPair(t *testing.T) {
	v, err := FromPair(strconv.Atoi("42")).Unwrap()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.True(t, FromPair(strconv.Atoi("nope")).IsErr())
}

func TestFanOutWaitsForAll(t *testing.T) {
	start := time.Now()
	out := FanOut(
		func() int { time.Sleep(30 * time.Millisecond); return 1 },
		func() int { return 2 },
	)
	assert.Equal(t, []int{1, 2}, out)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestWindows(t *testing.T) {
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, Windows([]int{1, 2, 3, 4, 5}, 2))
	assert.Nil(t, Windows([]int{}, 2))
	assert.Equal(t, [][]int{{1}, {2}}, Windows([]int{1, 2}, 0))
}

func TestRetrySucceedsEventually(t *testing.T) {
	var calls atomic.Int32
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond}, func(context.Context) Result[string] {
		if calls.Add(1) < 3 {
			return Err[string](errors.New("not yet"))
		}
		return Ok("done")
	})
	require.True(t, r.IsOk())
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryGivesUp(t *testing.T) {
	var calls atomic.Int32
	err := RetryErr(context.Background(), RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond}, func(context.Context) error {
		calls.Add(1)
		return errors.New("down")
	})
	assert.EqualError(t, err, "down")
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RetryErr(ctx, RetryOpts{MaxAttempts: 5, InitialWait: time.Hour}, func(context.Context) error {
		return errors.New("down")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
