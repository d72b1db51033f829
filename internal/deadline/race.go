// ABOUTME: Races a context-aware operation against an independent timeout
// ABOUTME: The losing branch is cancelled and its late result discarded

package deadline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout matches any *TimeoutError via errors.Is.
var ErrTimeout = errors.New("timed out")

// TimeoutError reports which operation lost its race and after how long.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.After)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Race runs fn concurrently with a timer of the given duration and returns
// whichever settles first. A non-positive timeout disables the timer.
//
// When the timer wins, fn's context is cancelled. fn may keep running if it
// ignores cancellation; its result goes into a buffered channel nobody reads,
// so the goroutine still exits and nothing shared is mutated.
func Race[T any](ctx context.Context, op string, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)

	go func() {
		v, err := fn(runCtx)
		done <- result{value: v, err: err}
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case r := <-done:
		return r.value, r.err
	case <-expired:
		return zero, &TimeoutError{Op: op, After: timeout}
	case <-ctx.Done():
		return zero, fmt.Errorf("%s: %w", op, ctx.Err())
	}
}
