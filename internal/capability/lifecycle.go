// ABOUTME: Owns the two-stage capability initialization and its state machine
// ABOUTME: Stages race timeouts; concurrent callers join a single attempt

package capability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/healthledger/internal/deadline"
)

// State is the lifecycle position of the capability.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the lifecycle for display.
type Status struct {
	State State
	Err   string
}

// Options configures a Lifecycle. Zero timeouts disable the race for that stage.
type Options struct {
	Network         NetworkConfig
	InitTimeout     time.Duration
	InstanceTimeout time.Duration
	Logger          *slog.Logger
}

type attempt struct {
	cancel context.CancelFunc
	done   chan struct{}
	cap    Capability
	err    error
}

// Lifecycle produces at most one ready Capability per session.
type Lifecycle struct {
	provider Provider
	opts     Options
	logger   *slog.Logger

	mu       sync.Mutex
	state    State
	cap      Capability
	lastErr  error
	gen      uint64
	inflight *attempt
}

// NewLifecycle creates a lifecycle in the uninitialized state.
func NewLifecycle(provider Provider, opts Options) *Lifecycle {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{
		provider: provider,
		opts:     opts,
		logger:   logger.With("component", "capability"),
	}
}

// Initialize returns the ready capability, running initialization if needed.
// If an attempt is already running the caller waits for it. A cancelled ctx
// stops the wait but not the shared attempt.
func (l *Lifecycle) Initialize(ctx context.Context) (Capability, error) {
	l.mu.Lock()
	if l.state == StateReady {
		c := l.cap
		l.mu.Unlock()
		return c, nil
	}

	a := l.inflight
	if a == nil {
		a = l.startLocked(ctx)
	}
	l.mu.Unlock()

	select {
	case <-a.done:
		return a.cap, a.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// startLocked begins a new attempt. Must be called with mu held.
func (l *Lifecycle) startLocked(ctx context.Context) *attempt {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a := &attempt{cancel: cancel, done: make(chan struct{})}

	l.gen++
	l.inflight = a
	l.state = StateInitializing
	l.cap = nil
	l.lastErr = nil
	l.logger.Info("capability initializing", "attempt", l.gen)

	go l.run(runCtx, l.gen, a)
	return a
}

func (l *Lifecycle) run(ctx context.Context, gen uint64, a *attempt) {
	defer a.cancel()

	c, err := l.initialize(ctx)

	l.mu.Lock()
	if l.gen != gen {
		l.mu.Unlock()
		l.logger.Info("discarding initialization result after reset", "attempt", gen)
		a.err = ErrReset
		close(a.done)
		return
	}

	l.inflight = nil
	if err != nil {
		l.state = StateFailed
		l.cap = nil
		l.lastErr = err
		l.logger.Warn("capability initialization failed", "attempt", gen, "error", err)
	} else {
		l.state = StateReady
		l.cap = c
		l.logger.Info("capability ready", "attempt", gen)
	}
	l.mu.Unlock()

	a.cap, a.err = c, err
	close(a.done)
}

func (l *Lifecycle) initialize(ctx context.Context) (Capability, error) {
	ok, err := deadline.Race(ctx, string(StageSDK), l.opts.InitTimeout, l.provider.InitSDK)
	if err != nil {
		return nil, &InitError{Stage: StageSDK, Err: err}
	}
	if !ok {
		return nil, &InitError{Stage: StageSDK, Err: ErrSDKNotReady}
	}

	c, err := deadline.Race(ctx, string(StageInstance), l.opts.InstanceTimeout, func(ctx context.Context) (Capability, error) {
		return l.provider.CreateInstance(ctx, l.opts.Network)
	})
	if err != nil {
		return nil, &InitError{Stage: StageInstance, Err: err}
	}
	if c == nil {
		return nil, &InitError{Stage: StageInstance, Err: ErrNilInstance}
	}
	return c, nil
}

// Capability returns the ready capability. ok is false in every other state.
func (l *Lifecycle) Capability() (Capability, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateReady {
		return nil, false
	}
	return l.cap, true
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Status returns the state together with the last failure message.
func (l *Lifecycle) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Status{State: l.state}
	if l.lastErr != nil {
		s.Err = l.lastErr.Error()
	}
	return s
}

// Reset returns to uninitialized, cancelling and discarding any in-flight attempt.
func (l *Lifecycle) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.gen++
	if l.inflight != nil {
		l.inflight.cancel()
		l.inflight = nil
	}
	l.state = StateUninitialized
	l.cap = nil
	l.lastErr = nil
	l.logger.Info("capability reset")
}
