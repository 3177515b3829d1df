// Package hold computes how long acquired memory is kept after allocation
// and blocks for that long.
package hold

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInterrupted is returned when a wait is cut short by cancellation
var ErrInterrupted = errors.New("interrupted")

// RoundHalfUp rounds a non-negative number of seconds to the nearest whole
// second, halves going up. Negative input yields 0.
func RoundHalfUp(seconds float64) int64 {
	if !(seconds >= 0) {
		return 0
	}
	if seconds >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(math.Floor(seconds + 0.5))
}

// Plan is the hold timer of one run
type Plan struct {
	RequestedSeconds  int64         `json:"requested_seconds"`
	AllocationElapsed time.Duration `json:"allocation_elapsed_ns"`
	AdjustedSeconds   int64         `json:"adjusted_seconds"`
}

// NewPlan subtracts the rounded allocation time from the requested hold.
// The adjusted value is not clamped and may be negative.
func NewPlan(requestedSeconds int64, elapsed time.Duration) Plan {
	return Plan{
		RequestedSeconds:  requestedSeconds,
		AllocationElapsed: elapsed,
		AdjustedSeconds:   AdjustedSleep(requestedSeconds, elapsed),
	}
}

// AdjustedSleep returns requested - RoundHalfUp(elapsed) in seconds.
func AdjustedSleep(requestedSeconds int64, elapsed time.Duration) int64 {
	return requestedSeconds - RoundHalfUp(elapsed.Seconds())
}

// Duration returns the adjusted hold; zero when it is not positive.
func (p Plan) Duration() time.Duration {
	if p.AdjustedSeconds <= 0 {
		return 0
	}
	if p.AdjustedSeconds > int64(math.MaxInt64/time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(p.AdjustedSeconds) * time.Second
}

// Wait blocks for d or until ctx is done. It returns immediately when d is
// not positive. Cancellation yields ErrInterrupted wrapping the context's
// cause.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
	}
}
