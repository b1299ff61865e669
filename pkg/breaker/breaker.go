package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/dockfleet/dockfleet/pkg/errdefs"
)

// State is the circuit breaker mode
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config controls the per-host breaker thresholds
type Config struct {
	FailureThreshold int           // consecutive failures before opening
	RecoveryTimeout  time.Duration // open duration before a probe is admitted
	SuccessThreshold int           // half-open successes before closing

	// Clock is injectable for tests; defaults to time.Now
	Clock func() time.Time
}

// DefaultConfig returns the documented defaults: 3 failures, 30s recovery,
// 2 successes.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
	}
}

// Breaker is a per-host circuit breaker. Only transport errors count as
// failures; engine-level errors ("container is not running") pass through
// without touching the counters.
type Breaker struct {
	cfg Config

	mu                sync.Mutex
	state             State
	consecutiveFails  int
	halfOpenSuccesses int
	openedAt          time.Time
}

// Snapshot is a point-in-time view of breaker state for operators
type Snapshot struct {
	State             State     `json:"state"`
	ConsecutiveFails  int       `json:"consecutive_failures"`
	HalfOpenSuccesses int       `json:"consecutive_half_open_successes"`
	OpenedAt          time.Time `json:"opened_at,omitempty"`
}

// New creates a breaker in the closed state
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Breaker{
		cfg:   cfg,
		state: StateClosed,
	}
}

// Do runs fn gated by the breaker. An open breaker that has not reached
// its recovery timeout fails immediately with breaker_open and never
// invokes fn. An open breaker past the timeout transitions to half-open
// and admits the call as a probe.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	b.observe(err)
	return err
}

// admit decides whether a call may proceed, transitioning open → half_open
// when the recovery timeout has elapsed.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	if b.cfg.Clock().Sub(b.openedAt) < b.cfg.RecoveryTimeout {
		return errdefs.New(errdefs.KindBreakerOpen, "host breaker open, retry after recovery timeout")
	}
	b.state = StateHalfOpen
	b.halfOpenSuccesses = 0
	return nil
}

// observe updates breaker state from a call outcome. Only transport
// errors count as failures.
func (b *Breaker) observe(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil && !errdefs.IsTransport(err) {
		// Caller or engine error; not a health signal
		return
	}

	if err != nil {
		b.consecutiveFails++
		b.halfOpenSuccesses = 0
		switch b.state {
		case StateHalfOpen:
			// Any failure during probe re-opens immediately
			b.trip()
		case StateClosed:
			if b.consecutiveFails >= b.cfg.FailureThreshold {
				b.trip()
			}
		}
		return
	}

	// Success
	b.consecutiveFails = 0
	if b.state == StateHalfOpen {
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.halfOpenSuccesses = 0
		}
	}
}

// trip moves to open; caller holds the lock
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.cfg.Clock()
}

// State returns the current mode
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SnapshotState returns a point-in-time view for introspection endpoints
func (b *Breaker) SnapshotState() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:             b.state,
		ConsecutiveFails:  b.consecutiveFails,
		HalfOpenSuccesses: b.halfOpenSuccesses,
		OpenedAt:          b.openedAt,
	}
}

// Reset manually closes the breaker and clears all counters
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.consecutiveFails = 0
	b.halfOpenSuccesses = 0
	b.openedAt = time.Time{}
}
