package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockfleet/dockfleet/pkg/errdefs"
)

// fakeClock lets tests drive the recovery timeout without sleeping
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testBreaker(clock *fakeClock) *Breaker {
	return New(Config{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
		Clock:            clock.Now,
	})
}

var errDial = errdefs.New(errdefs.KindTransport, "connection refused")

func fail(ctx context.Context) error { return errDial }
func ok(ctx context.Context) error   { return nil }

func TestOpensAfterFailureThreshold(t *testing.T) {
	clock := newFakeClock()
	b := testBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Equal(t, StateClosed, b.State())
		require.Error(t, b.Do(ctx, fail))
	}
	assert.Equal(t, StateOpen, b.State())

	// The 4th call is rejected without invoking fn
	called := false
	err := b.Do(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, errdefs.IsBreakerOpen(err))
	assert.False(t, called)
}

func TestRecoveryViaHalfOpen(t *testing.T) {
	clock := newFakeClock()
	b := testBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, fail)
	}
	require.Equal(t, StateOpen, b.State())

	// Before the timeout the probe is not admitted
	clock.Advance(29 * time.Second)
	assert.True(t, errdefs.IsBreakerOpen(b.Do(ctx, ok)))

	// After the timeout one probe is admitted; two successes close
	clock.Advance(2 * time.Second)
	require.NoError(t, b.Do(ctx, ok))
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Do(ctx, ok))
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	b := testBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, fail)
	}
	clock.Advance(31 * time.Second)
	require.Error(t, b.Do(ctx, fail))
	assert.Equal(t, StateOpen, b.State())

	// The re-opened breaker starts a fresh recovery window
	assert.True(t, errdefs.IsBreakerOpen(b.Do(ctx, ok)))
	clock.Advance(31 * time.Second)
	require.NoError(t, b.Do(ctx, ok))
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestEngineErrorsDoNotCount(t *testing.T) {
	clock := newFakeClock()
	b := testBreaker(clock)
	ctx := context.Background()

	notRunning := errdefs.New(errdefs.KindEngine, "container is not running")
	for i := 0; i < 10; i++ {
		err := b.Do(ctx, func(ctx context.Context) error { return notRunning })
		require.Error(t, err)
		assert.False(t, errdefs.IsBreakerOpen(err))
	}
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.SnapshotState().ConsecutiveFails)

	// Untagged errors are not transport failures either
	_ = b.Do(ctx, func(ctx context.Context) error { return errors.New("no such image") })
	assert.Equal(t, StateClosed, b.State())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	clock := newFakeClock()
	b := testBreaker(clock)
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	require.NoError(t, b.Do(ctx, ok))
	assert.Equal(t, 0, b.SnapshotState().ConsecutiveFails)

	// Two more failures alone must not open the breaker
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	assert.Equal(t, StateClosed, b.State())
}

func TestManualReset(t *testing.T) {
	clock := newFakeClock()
	b := testBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, fail)
	}
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	require.NoError(t, b.Do(ctx, ok))

	snap := b.SnapshotState()
	assert.Equal(t, 0, snap.ConsecutiveFails)
	assert.True(t, snap.OpenedAt.IsZero())
}

func TestSnapshotReflectsOpenState(t *testing.T) {
	clock := newFakeClock()
	b := testBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, fail)
	}
	snap := b.SnapshotState()
	assert.Equal(t, StateOpen, snap.State)
	assert.Equal(t, 3, snap.ConsecutiveFails)
	assert.Equal(t, clock.Now(), snap.OpenedAt)
}
