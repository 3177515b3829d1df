package hold

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		in   float64
		want int64
	}{
		{0, 0},
		{0.49, 0},
		{0.5, 1},
		{1.4999, 1},
		{2.5, 3},
		{2.6, 3},
		{-0.4, 0},
		{-3, 0},
		{math.NaN(), 0},
		{math.Inf(1), math.MaxInt64},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RoundHalfUp(tt.in), "RoundHalfUp(%v)", tt.in)
	}
}

func TestAdjustedSleep(t *testing.T) {
	tests := []struct {
		name      string
		requested int64
		elapsed   time.Duration
		want      int64
	}{
		{"thirty seconds after 2.6s", 30, 2600 * time.Millisecond, 27},
		{"fast allocation", 5, 120 * time.Millisecond, 5},
		{"half second rounds up", 5, 500 * time.Millisecond, 4},
		{"allocation longer than hold", 2, 4 * time.Second, -2},
		{"no hold", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AdjustedSleep(tt.requested, tt.elapsed))
		})
	}
}

func TestPlan(t *testing.T) {
	p := NewPlan(30, 2600*time.Millisecond)
	assert.Equal(t, int64(30), p.RequestedSeconds)
	assert.Equal(t, 2600*time.Millisecond, p.AllocationElapsed)
	assert.Equal(t, int64(27), p.AdjustedSeconds)
	assert.Equal(t, 27*time.Second, p.Duration())

	negative := NewPlan(1, 3*time.Second)
	assert.Equal(t, int64(-2), negative.AdjustedSeconds)
	assert.Equal(t, time.Duration(0), negative.Duration())

	huge := Plan{AdjustedSeconds: math.MaxInt64}
	assert.Equal(t, time.Duration(math.MaxInt64), huge.Duration())
}

func TestWait_NonPositiveReturnsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	assert.NoError(t, Wait(ctx, 0))
	assert.NoError(t, Wait(ctx, -5*time.Second))
	assert.Less(t, time.Since(start), time.Second)
}

func TestWait_Expires(t *testing.T) {
	start := time.Now()
	err := Wait(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestWait_Interrupted(t *testing.T) {
	cause := errors.New("received interrupt")
	ctx, cancel := context.WithCancelCause(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel(cause)
	}()

	start := time.Now()
	err := Wait(ctx, time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.ErrorIs(t, err, cause)
	assert.Less(t, time.Since(start), 10*time.Second)
}
