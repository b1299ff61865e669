package events

import (
	"context"
	"sync"
	"testing"
	"time"

	dockerevents "github.com/docker/docker/api/types/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockfleet/dockfleet/pkg/types"
)

// fakeSource is a scriptable engine event stream for one host
type fakeSource struct {
	hostID string

	mu      sync.Mutex
	opens   int
	msgCh   chan dockerevents.Message
	errCh   chan error
	lastCtx context.Context
}

func newFakeSource(hostID string) *fakeSource {
	return &fakeSource{
		hostID: hostID,
		msgCh:  make(chan dockerevents.Message),
		errCh:  make(chan error, 1),
	}
}

func (f *fakeSource) HostID() string { return f.hostID }

func (f *fakeSource) Events(ctx context.Context, eventTypes []string) (<-chan dockerevents.Message, <-chan error) {
	f.mu.Lock()
	f.opens++
	f.lastCtx = ctx
	f.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		select {
		case err := <-f.errCh:
			errCh <- err
		case <-ctx.Done():
			errCh <- ctx.Err()
		}
	}()
	return f.msgCh, errCh
}

func (f *fakeSource) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func (f *fakeSource) cancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCtx != nil && f.lastCtx.Err() != nil
}

func (f *fakeSource) emit(eventType, action, actorID string, attrs map[string]string) {
	f.msgCh <- dockerevents.Message{
		Type:   dockerevents.Type(eventType),
		Action: dockerevents.Action(action),
		Actor: dockerevents.Actor{
			ID:         actorID,
			Attributes: attrs,
		},
		TimeNano: time.Now().UnixNano(),
	}
}

func recv(t *testing.T, sub *Subscription) *types.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C():
		require.True(t, ok, "subscription closed unexpectedly")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestSharedFeedSingleUpstream(t *testing.T) {
	b := NewBroadcaster(0)
	defer b.Shutdown()
	src := newFakeSource("host-1")

	sub1, err := b.Subscribe(src, nil)
	require.NoError(t, err)
	defer sub1.Close()
	sub2, err := b.Subscribe(src, nil)
	require.NoError(t, err)
	defer sub2.Close()

	src.emit("container", "start", "abc123", map[string]string{"name": "web"})

	ev1 := recv(t, sub1)
	ev2 := recv(t, sub2)

	assert.Equal(t, "host-1", ev1.HostID)
	assert.Equal(t, "container", ev1.Type)
	assert.Equal(t, "start", ev1.Action)
	assert.Equal(t, "abc123", ev1.ActorID)
	assert.Equal(t, ev1.Action, ev2.Action)
	assert.Equal(t, 1, src.openCount())
}

func TestFilteredDelivery(t *testing.T) {
	b := NewBroadcaster(0)
	defer b.Shutdown()
	src := newFakeSource("host-1")

	all, err := b.Subscribe(src, nil)
	require.NoError(t, err)
	defer all.Close()

	containersOnly, err := b.Subscribe(src, &types.EventFilter{Types: []string{"container"}})
	require.NoError(t, err)
	defer containersOnly.Close()

	src.emit("image", "pull", "nginx:latest", nil)
	src.emit("container", "die", "abc123", map[string]string{"name": "web"})

	// The unfiltered subscriber sees both; the filtered one only the
	// container event.
	assert.Equal(t, "pull", recv(t, all).Action)
	assert.Equal(t, "die", recv(t, all).Action)
	assert.Equal(t, "die", recv(t, containersOnly).Action)
}

func TestLastUnsubscribeCancelsUpstream(t *testing.T) {
	b := NewBroadcaster(0)
	src := newFakeSource("host-1")

	sub1, err := b.Subscribe(src, nil)
	require.NoError(t, err)
	sub2, err := b.Subscribe(src, nil)
	require.NoError(t, err)

	sub1.Close()
	assert.False(t, src.cancelled())

	sub2.Close()
	require.Eventually(t, func() bool {
		return src.cancelled()
	}, 5*time.Second, 10*time.Millisecond, "last unsubscribe should cancel the upstream")
}

func TestUpstreamErrorClosesSubscribers(t *testing.T) {
	b := NewBroadcaster(0)
	defer b.Shutdown()
	src := newFakeSource("host-1")

	sub, err := b.Subscribe(src, nil)
	require.NoError(t, err)

	src.errCh <- assert.AnError

	select {
	case _, ok := <-sub.C():
		assert.False(t, ok, "channel should close on upstream failure")
	case <-time.After(5 * time.Second):
		t.Fatal("subscription not closed after upstream error")
	}

	// A new subscribe after the failure opens a fresh upstream
	sub2, err := b.Subscribe(src, nil)
	require.NoError(t, err)
	defer sub2.Close()
	require.Eventually(t, func() bool {
		return src.openCount() == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSlowEventSubscriberEvicted(t *testing.T) {
	b := NewBroadcaster(2)
	defer b.Shutdown()
	src := newFakeSource("host-1")

	slow, err := b.Subscribe(src, nil)
	require.NoError(t, err)
	fast, err := b.Subscribe(src, nil)
	require.NoError(t, err)
	defer fast.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range fast.C() {
		}
	}()

	// slow never reads; its queue of 2 overflows on the third event
	for i := 0; i < 5; i++ {
		src.emit("container", "start", "abc123", nil)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-slow.C():
			if !ok {
				b.Shutdown()
				<-done
				return
			}
		case <-deadline:
			t.Fatal("slow subscriber was not evicted")
		}
	}
}
