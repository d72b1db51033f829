// ABOUTME: Interval-driven background refresh of the study cache
// ABOUTME: Stop cancels the in-flight refresh and waits for the loop to exit

package studycache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the refresh period when none is configured.
const DefaultInterval = 10 * time.Second

// Refresher is satisfied by *Cache.
type Refresher interface {
	RefreshAll(ctx context.Context) (*Report, error)
}

// Poller calls RefreshAll once on Start and then every interval.
type Poller struct {
	target   Refresher
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// NewPoller creates a stopped poller.
func NewPoller(target Refresher, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		target:   target,
		interval: interval,
		logger:   logger.With("component", "poller"),
	}
}

// Start begins polling. Calling Start on a running or stopped poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil || p.stopped {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(loopCtx, p.done)
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	p.refresh(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			p.refresh(ctx)
		}
	}
}

func (p *Poller) refresh(ctx context.Context) {
	report, err := p.target.RefreshAll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("background refresh failed", "error", err)
		}
		return
	}
	if report.Partial != nil {
		p.logger.Warn("background refresh incomplete", "failed_ids", report.Partial.IDs())
	}
}

// Stop cancels polling and waits for the loop to exit. After Stop returns no
// further refresh is issued. It is safe to call multiple times.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
