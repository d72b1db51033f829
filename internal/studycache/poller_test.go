// ABOUTME: Tests for the background study poller
// ABOUTME: Covers the initial refresh, interval ticks and no fetches after Stop

package studycache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRefresher counts RefreshAll calls and can block on the context.
type countingRefresher struct {
	calls    atomic.Int32
	block    bool
	returned atomic.Int32
}

func (c *countingRefresher) RefreshAll(ctx context.Context) (*Report, error) {
	c.calls.Add(1)
	defer c.returned.Add(1)
	if c.block {
		<-ctx.Done()
		return nil, &FetchTotalFailure{Err: ctx.Err()}
	}
	return &Report{}, nil
}

func TestPoller_RefreshesImmediatelyAndOnInterval(t *testing.T) {
	r := &countingRefresher{}
	p := NewPoller(r, 10*time.Millisecond, nil)
	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool { return r.calls.Load() >= 1 }, time.Second, time.Millisecond, "initial refresh")
	require.Eventually(t, func() bool { return r.calls.Load() >= 3 }, time.Second, time.Millisecond, "interval refreshes")
}

func TestPoller_NoFetchesAfterStop(t *testing.T) {
	reader := newFakeReader(study(0, 1, true))
	c := New(reader, Options{})
	p := NewPoller(c, 5*time.Millisecond, nil)
	p.Start(context.Background())

	require.Eventually(t, func() bool { return reader.counterCalls.Load() >= 2 }, time.Second, time.Millisecond)
	p.Stop()

	after := reader.counterCalls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, reader.counterCalls.Load(), "no fetch may be issued after Stop returns")
}

func TestPoller_StopCancelsInFlightRefresh(t *testing.T) {
	r := &countingRefresher{block: true}
	p := NewPoller(r, time.Hour, nil)
	p.Start(context.Background())

	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return while a refresh was in flight")
	}
	assert.Equal(t, int32(1), r.returned.Load(), "in-flight refresh should have finished before Stop returned")
}

func TestPoller_StopIsIdempotent(t *testing.T) {
	r := &countingRefresher{}
	p := NewPoller(r, time.Hour, nil)

	// Stop before Start is a no-op.
	p.Stop()

	p.Start(context.Background())
	assert.Equal(t, int32(0), r.calls.Load(), "a stopped poller does not start")

	p.Stop()
	p.Stop()
}

func TestPoller_StartTwiceRunsOneLoop(t *testing.T) {
	r := &countingRefresher{}
	p := NewPoller(r, time.Hour, nil)
	p.Start(context.Background())
	p.Start(context.Background())

	require.Eventually(t, func() bool { return r.calls.Load() >= 1 }, time.Second, time.Millisecond)
	p.Stop()
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestPoller_ParentContextStopsLoop(t *testing.T) {
	r := &countingRefresher{}
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller(r, 5*time.Millisecond, nil)
	p.Start(ctx)

	require.Eventually(t, func() bool { return r.calls.Load() >= 1 }, time.Second, time.Millisecond)
	cancel()
	p.Stop()

	after := r.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, r.calls.Load())
}

func TestNewPoller_DefaultInterval(t *testing.T) {
	p := NewPoller(&countingRefresher{}, 0, nil)
	assert.Equal(t, DefaultInterval, p.interval)
}
