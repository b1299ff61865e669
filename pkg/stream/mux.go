package stream

import (
	"context"
	"sync"
	"time"

	"github.com/dockfleet/dockfleet/pkg/engine"
	"github.com/dockfleet/dockfleet/pkg/errdefs"
	"github.com/dockfleet/dockfleet/pkg/log"
	"github.com/dockfleet/dockfleet/pkg/metrics"
	"github.com/dockfleet/dockfleet/pkg/types"
)

// Config controls multiplexer sizing and teardown behavior
type Config struct {
	// BufferSize is the per-stream ring buffer depth. Zero means 1000.
	BufferSize int

	// MaxTotalStreams caps concurrently active upstreams; the least
	// recently active stream is torn down to make room. Zero means 100.
	MaxTotalStreams int

	// SubscriberQueue is the bounded per-subscriber frame queue. A
	// subscriber whose queue overflows is evicted. Zero means 256.
	SubscriberQueue int

	// IdleTTL is how long a stream with no subscribers is retained
	// before teardown. Zero means 300 seconds.
	IdleTTL time.Duration

	// JanitorInterval is the teardown check cadence. Zero means 60
	// seconds.
	JanitorInterval time.Duration

	// HeartbeatInterval paces heartbeats on degraded streams. Zero
	// means 30 seconds.
	HeartbeatInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.MaxTotalStreams <= 0 {
		c.MaxTotalStreams = 100
	}
	if c.SubscriberQueue <= 0 {
		c.SubscriberQueue = 256
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 300 * time.Second
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = 60 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	return c
}

// Multiplexer owns every active stream in the process: one upstream per
// (source type, resource id), fanned out to any number of subscribers.
type Multiplexer struct {
	cfg Config

	mu      sync.Mutex
	streams map[types.StreamKey]*activeStream

	stopCh   chan struct{}
	stopOnce sync.Once
}

// activeStream is one upstream plus its subscribers and replay buffer.
// All fields below mu are guarded by it; broadcast, subscribe, and
// teardown serialize on the same lock so every subscriber sees each
// frame exactly once.
type activeStream struct {
	key    types.StreamKey
	cancel context.CancelFunc

	mu           sync.Mutex
	ring         *Ring
	subs         map[*Subscription]struct{}
	closed       bool
	createdAt    time.Time
	lastActivity time.Time
	emptySince   time.Time
}

// Subscription is one caller's attachment to a stream. Frames arrive on
// C; the channel closes when the caller unsubscribes, the subscriber is
// evicted for falling behind, or the stream ends.
type Subscription struct {
	key    types.StreamKey
	ch     chan *types.Frame
	mux    *Multiplexer
	stream *activeStream
}

// C returns the frame channel
func (s *Subscription) C() <-chan *types.Frame {
	return s.ch
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.mux.unsubscribe(s)
}

// NewMultiplexer creates a multiplexer; call Start to run the idle
// janitor and Shutdown on process exit.
func NewMultiplexer(cfg Config) *Multiplexer {
	return &Multiplexer{
		cfg:     cfg.withDefaults(),
		streams: make(map[types.StreamKey]*activeStream),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the idle-stream janitor
func (m *Multiplexer) Start() {
	go m.run()
}

func (m *Multiplexer) run() {
	ticker := time.NewTicker(m.cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.reapIdle()
		case <-m.stopCh:
			return
		}
	}
}

// Subscribe attaches a caller to the stream for (provider source type,
// resourceID), creating the upstream on first use. The caller first
// receives a connected frame, then up to tail replayed frames in
// production order, then live frames — each frame exactly once.
func (m *Multiplexer) Subscribe(ctx context.Context, cli *engine.Client, provider Provider, resourceID string, opts types.LogOptions) (*Subscription, error) {
	key := types.StreamKey{Source: provider.SourceType(), ResourceID: resourceID}

	for {
		if err := ctx.Err(); err != nil {
			return nil, errdefs.Wrap(errdefs.KindCancelled, "subscribe cancelled", err)
		}

		st, created, err := m.streamFor(key, cli, provider, opts)
		if err != nil {
			return nil, err
		}

		sub, ok := m.attach(st, key, opts.Tail)
		if ok {
			return sub, nil
		}
		// Lost a race with stream teardown; retry with a fresh stream
		if created {
			return nil, errdefs.New(errdefs.KindStream, "stream ended before subscription completed")
		}
	}
}

// SubscribeDegraded attaches a caller to a degraded stream that carries
// no upstream: a single informational entry followed by heartbeats.
// Used when the target is the control plane's own container.
func (m *Multiplexer) SubscribeDegraded(hostID string, source types.SourceType, resourceID string) (*Subscription, error) {
	key := types.StreamKey{Source: source, ResourceID: resourceID}

	for {
		m.mu.Lock()
		st, ok := m.streams[key]
		if !ok {
			m.evictForCapacityLocked()
			upstreamCtx, cancel := context.WithCancel(context.Background())
			st = m.newStream(key, cancel)
			m.streams[key] = st
			metrics.StreamsActive.WithLabelValues(string(key.Source)).Inc()

			entry := NormalizeLine(
				"log streaming suppressed: this container runs the control plane",
				source, resourceID, hostID,
			)
			st.ring.Add(&types.Frame{Type: types.FrameLog, Timestamp: entry.Timestamp, Payload: entry})
			go m.runDegraded(upstreamCtx, st)
		}
		m.mu.Unlock()

		if sub, ok := m.attach(st, key, 0); ok {
			return sub, nil
		}
	}
}

// streamFor returns the active stream for key, creating it and spawning
// its upstream when absent.
func (m *Multiplexer) streamFor(key types.StreamKey, cli *engine.Client, provider Provider, opts types.LogOptions) (*activeStream, bool, error) {
	m.mu.Lock()
	if st, ok := m.streams[key]; ok {
		m.mu.Unlock()
		return st, false, nil
	}
	m.evictForCapacityLocked()

	upstreamCtx, cancel := context.WithCancel(context.Background())
	st := m.newStream(key, cancel)
	m.streams[key] = st
	metrics.StreamsActive.WithLabelValues(string(key.Source)).Inc()
	m.mu.Unlock()

	// The upstream always follows and buffers up to the full ring, so
	// late joiners can replay regardless of their own tail.
	upstreamOpts := opts
	upstreamOpts.Follow = true
	if upstreamOpts.Tail <= 0 || upstreamOpts.Tail > m.cfg.BufferSize {
		upstreamOpts.Tail = m.cfg.BufferSize
	}

	up, err := provider.Open(upstreamCtx, cli, key.ResourceID, upstreamOpts)
	if err != nil {
		// The stream is already visible in the registry, so another
		// caller may have attached while Open was in flight. finish
		// closes those subscribers with a terminal frame; a bare
		// removal would leave them hanging.
		m.finish(st, err)
		return nil, true, err
	}

	go m.runUpstream(upstreamCtx, st, up)
	return st, true, nil
}

func (m *Multiplexer) newStream(key types.StreamKey, cancel context.CancelFunc) *activeStream {
	now := time.Now()
	return &activeStream{
		key:          key,
		cancel:       cancel,
		ring:         NewRing(m.cfg.BufferSize),
		subs:         make(map[*Subscription]struct{}),
		createdAt:    now,
		lastActivity: now,
		emptySince:   now,
	}
}

// runUpstream pumps provider frames into the broadcast path until the
// upstream ends, then closes every subscriber with a terminal frame.
func (m *Multiplexer) runUpstream(ctx context.Context, st *activeStream, up Upstream) {
	for {
		select {
		case frame, ok := <-up.Frames():
			if !ok {
				m.finish(st, up.Err())
				return
			}
			m.broadcast(st, frame)
		case <-ctx.Done():
			// Teardown: drain the provider goroutine, then finish
			go func() {
				for range up.Frames() {
				}
			}()
			m.finish(st, nil)
			return
		}
	}
}

// runDegraded emits heartbeats until cancelled; no upstream exists
func (m *Multiplexer) runDegraded(ctx context.Context, st *activeStream) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			m.broadcast(st, heartbeatFrame(now))
		case <-ctx.Done():
			m.finish(st, nil)
			return
		}
	}
}

// broadcast appends to the ring and delivers to every subscriber.
// Delivery is non-blocking: a subscriber whose queue is full is evicted
// so it can never stall the upstream or its peers.
func (m *Multiplexer) broadcast(st *activeStream, frame *types.Frame) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}

	if frame.Type != types.FrameHeartbeat {
		st.ring.Add(frame)
	}
	st.lastActivity = time.Now()

	for sub := range st.subs {
		select {
		case sub.ch <- frame:
			metrics.EntriesDelivered.Inc()
		default:
			delete(st.subs, sub)
			close(sub.ch)
			metrics.SubscribersEvicted.Inc()
			metrics.StreamSubscribers.Dec()
			log.WithStreamKey(string(st.key.Source), st.key.ResourceID).Warn().
				Msg("evicted slow stream subscriber")
		}
	}
	if len(st.subs) == 0 && st.emptySince.IsZero() {
		st.emptySince = time.Now()
	}
}

// attach adds a subscriber under the stream lock, replaying buffered
// frames into its queue before any live broadcast can interleave.
// Returns false if the stream closed first.
func (m *Multiplexer) attach(st *activeStream, key types.StreamKey, tail int) (*Subscription, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return nil, false
	}

	replay := st.ring.Last(tail)
	sub := &Subscription{
		key:    key,
		ch:     make(chan *types.Frame, m.cfg.SubscriberQueue+len(replay)+1),
		mux:    m,
		stream: st,
	}

	sub.ch <- &types.Frame{Type: types.FrameConnected, Timestamp: time.Now().UTC()}
	for _, frame := range replay {
		sub.ch <- frame
	}

	st.subs[sub] = struct{}{}
	st.emptySince = time.Time{}
	metrics.StreamSubscribers.Inc()
	return sub, true
}

// unsubscribe detaches one subscriber; the last one leaving starts the
// idle clock.
func (m *Multiplexer) unsubscribe(sub *Subscription) {
	st := sub.stream
	st.mu.Lock()
	if _, ok := st.subs[sub]; ok {
		delete(st.subs, sub)
		close(sub.ch)
		metrics.StreamSubscribers.Dec()
		if len(st.subs) == 0 {
			st.emptySince = time.Now()
		}
	}
	st.mu.Unlock()
}

// finish closes a stream: every remaining subscriber receives one
// terminal frame and its channel is closed.
func (m *Multiplexer) finish(st *activeStream, upstreamErr error) {
	terminal := &types.Frame{Type: types.FrameStreamEnd, Timestamp: time.Now().UTC()}
	if upstreamErr != nil {
		terminal = &types.Frame{
			Type:      types.FrameError,
			Timestamp: time.Now().UTC(),
			Message:   string(errdefs.KindOf(upstreamErr)),
		}
	}

	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return
	}
	st.closed = true
	for sub := range st.subs {
		select {
		case sub.ch <- terminal:
		default:
		}
		close(sub.ch)
		delete(st.subs, sub)
		metrics.StreamSubscribers.Dec()
	}
	st.mu.Unlock()

	m.remove(st)
	if upstreamErr != nil {
		log.WithStreamKey(string(st.key.Source), st.key.ResourceID).Warn().
			Err(upstreamErr).
			Msg("stream ended with error")
	}
}

// remove drops a stream from the registry
func (m *Multiplexer) remove(st *activeStream) {
	m.mu.Lock()
	if m.streams[st.key] == st {
		delete(m.streams, st.key)
		metrics.StreamsActive.WithLabelValues(string(st.key.Source)).Dec()
	}
	m.mu.Unlock()
	st.cancel()
}

// reapIdle tears down streams whose subscriber set has been empty past
// the idle TTL.
func (m *Multiplexer) reapIdle() {
	m.mu.Lock()
	var idle []*activeStream
	for _, st := range m.streams {
		st.mu.Lock()
		if len(st.subs) == 0 && !st.emptySince.IsZero() && time.Since(st.emptySince) > m.cfg.IdleTTL {
			idle = append(idle, st)
		}
		st.mu.Unlock()
	}
	m.mu.Unlock()

	for _, st := range idle {
		log.WithStreamKey(string(st.key.Source), st.key.ResourceID).Debug().
			Msg("tearing down idle stream")
		st.cancel()
	}
}

// evictForCapacityLocked makes room for a new stream when at the cap by
// cancelling the least recently active one, preferring subscriber-less
// streams. Caller holds m.mu.
func (m *Multiplexer) evictForCapacityLocked() {
	if len(m.streams) < m.cfg.MaxTotalStreams {
		return
	}

	var victim *activeStream
	victimEmpty := false
	var victimActivity time.Time
	for _, st := range m.streams {
		st.mu.Lock()
		empty := len(st.subs) == 0
		activity := st.lastActivity
		st.mu.Unlock()

		better := victim == nil ||
			(empty && !victimEmpty) ||
			(empty == victimEmpty && activity.Before(victimActivity))
		if better {
			victim, victimEmpty, victimActivity = st, empty, activity
		}
	}
	if victim != nil {
		log.WithStreamKey(string(victim.key.Source), victim.key.ResourceID).Warn().
			Msg("stream cap reached, evicting least recently active stream")
		victim.cancel()
	}
}

// ActiveStreams reports the current stream count, for introspection
func (m *Multiplexer) ActiveStreams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// Shutdown cancels every upstream; subscribers receive terminal frames
func (m *Multiplexer) Shutdown() {
	m.stopOnce.Do(func() { close(m.stopCh) })

	m.mu.Lock()
	streams := make([]*activeStream, 0, len(m.streams))
	for _, st := range m.streams {
		streams = append(streams, st)
	}
	m.mu.Unlock()

	for _, st := range streams {
		st.cancel()
	}
}
