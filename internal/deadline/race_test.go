// ABOUTME: Tests for the timeout race helper
// ABOUTME: Covers winner selection, loser cancellation, and parent cancellation

package deadline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRace_OperationWins(t *testing.T) {
	v, err := Race(context.Background(), "fast", time.Second, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestRace_OperationErrorPassesThrough(t *testing.T) {
	boom := errors.New("boom")
	_, err := Race(context.Background(), "failing", time.Second, func(ctx context.Context) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestRace_TimerWins(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	_, err := Race(context.Background(), "init sdk", 20*time.Millisecond, func(ctx context.Context) (bool, error) {
		<-release
		return true, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "init sdk", te.Op)
	assert.Equal(t, 20*time.Millisecond, te.After)
	assert.Contains(t, err.Error(), "init sdk timed out")
}

func TestRace_LoserContextCancelled(t *testing.T) {
	cancelled := make(chan struct{})

	_, err := Race(context.Background(), "slow", 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(cancelled)
		return 0, ctx.Err()
	})
	require.ErrorIs(t, err, ErrTimeout)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("losing operation was never cancelled")
	}
}

func TestRace_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Race(ctx, "op", time.Minute, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestRace_ZeroTimeoutWaitsForOperation(t *testing.T) {
	v, err := Race(context.Background(), "untimed", 0, func(ctx context.Context) (int, error) {
		time.Sleep(5 * time.Millisecond)
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
