// Package events fans a host's engine event firehose out to filtered
// subscribers. Each host has at most one upstream subscription, opened
// on first subscribe and cancelled when the last subscriber leaves.
package events

import (
	"context"
	"sync"
	"time"

	dockerevents "github.com/docker/docker/api/types/events"

	"github.com/dockfleet/dockfleet/pkg/log"
	"github.com/dockfleet/dockfleet/pkg/metrics"
	"github.com/dockfleet/dockfleet/pkg/types"
)

// defaultQueue bounds each subscriber's event queue
const defaultQueue = 256

// Source is the slice of the engine client a feed needs
type Source interface {
	HostID() string
	Events(ctx context.Context, eventTypes []string) (<-chan dockerevents.Message, <-chan error)
}

// Broadcaster owns the per-host event feeds
type Broadcaster struct {
	queueSize int

	mu    sync.Mutex
	hosts map[string]*hostFeed
}

// hostFeed is one host's upstream subscription plus its subscribers
type hostFeed struct {
	hostID string
	cancel context.CancelFunc

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// Subscription is one caller's filtered view of a host's events. Events
// arrive on C; the channel closes when the caller unsubscribes, falls
// behind, or the upstream ends.
type Subscription struct {
	ch     chan *types.Event
	filter *types.EventFilter
	feed   *hostFeed
	b      *Broadcaster
}

// C returns the event channel
func (s *Subscription) C() <-chan *types.Event {
	return s.ch
}

// Close detaches the subscription; the last one leaving cancels the
// host's upstream. Safe to call more than once.
func (s *Subscription) Close() {
	s.b.unsubscribe(s)
}

// NewBroadcaster creates a broadcaster. queueSize <= 0 uses the default.
func NewBroadcaster(queueSize int) *Broadcaster {
	if queueSize <= 0 {
		queueSize = defaultQueue
	}
	return &Broadcaster{
		queueSize: queueSize,
		hosts:     make(map[string]*hostFeed),
	}
}

// Subscribe attaches a filtered subscriber to a host's event feed,
// opening the upstream on first use. A nil filter matches everything.
func (b *Broadcaster) Subscribe(cli Source, filter *types.EventFilter) (*Subscription, error) {
	hostID := cli.HostID()

	for {
		b.mu.Lock()
		feed, ok := b.hosts[hostID]
		if !ok {
			upstreamCtx, cancel := context.WithCancel(context.Background())
			feed = &hostFeed{
				hostID: hostID,
				cancel: cancel,
				subs:   make(map[*Subscription]struct{}),
			}
			b.hosts[hostID] = feed
			go b.runFeed(upstreamCtx, feed, cli)
		}
		b.mu.Unlock()

		feed.mu.Lock()
		if feed.closed {
			feed.mu.Unlock()
			continue // raced with feed teardown; retry
		}
		sub := &Subscription{
			ch:     make(chan *types.Event, b.queueSize),
			filter: filter,
			feed:   feed,
			b:      b,
		}
		feed.subs[sub] = struct{}{}
		feed.mu.Unlock()
		return sub, nil
	}
}

// runFeed pumps the engine's event stream to subscribers until the
// upstream ends or is cancelled.
func (b *Broadcaster) runFeed(ctx context.Context, feed *hostFeed, cli Source) {
	msgCh, errCh := cli.Events(ctx, nil)

	logger := log.WithComponent("events")
	logger.Debug().Str("host_id", feed.hostID).Msg("event feed opened")

	for {
		select {
		case msg := <-msgCh:
			b.deliver(feed, convert(feed.hostID, msg))
		case err := <-errCh:
			if err != nil && ctx.Err() == nil {
				logger.Warn().Str("host_id", feed.hostID).Err(err).Msg("event feed failed")
			}
			b.closeFeed(feed)
			return
		case <-ctx.Done():
			b.closeFeed(feed)
			return
		}
	}
}

// deliver sends an event to every subscriber whose filter matches.
// Subscribers failing to receive are removed.
func (b *Broadcaster) deliver(feed *hostFeed, ev *types.Event) {
	feed.mu.Lock()
	defer feed.mu.Unlock()
	if feed.closed {
		return
	}

	for sub := range feed.subs {
		if !sub.filter.Matches(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
			metrics.EventsDelivered.Inc()
		default:
			delete(feed.subs, sub)
			close(sub.ch)
			log.WithComponent("events").Warn().
				Str("host_id", feed.hostID).
				Msg("evicted slow event subscriber")
		}
	}
}

// unsubscribe detaches one subscriber; the last leaving cancels the feed
func (b *Broadcaster) unsubscribe(sub *Subscription) {
	feed := sub.feed

	feed.mu.Lock()
	if _, ok := feed.subs[sub]; ok {
		delete(feed.subs, sub)
		close(sub.ch)
	}
	empty := len(feed.subs) == 0 && !feed.closed
	feed.mu.Unlock()

	if empty {
		feed.cancel()
	}
}

// closeFeed removes the feed and closes every remaining subscriber
func (b *Broadcaster) closeFeed(feed *hostFeed) {
	feed.mu.Lock()
	if feed.closed {
		feed.mu.Unlock()
		return
	}
	feed.closed = true
	for sub := range feed.subs {
		close(sub.ch)
		delete(feed.subs, sub)
	}
	feed.mu.Unlock()

	b.mu.Lock()
	if b.hosts[feed.hostID] == feed {
		delete(b.hosts, feed.hostID)
	}
	b.mu.Unlock()
	feed.cancel()
}

// CloseHost cancels a host's feed, if any; used when the host's handle
// is evicted.
func (b *Broadcaster) CloseHost(hostID string) {
	b.mu.Lock()
	feed := b.hosts[hostID]
	b.mu.Unlock()
	if feed != nil {
		feed.cancel()
	}
}

// Shutdown cancels every feed
func (b *Broadcaster) Shutdown() {
	b.mu.Lock()
	feeds := make([]*hostFeed, 0, len(b.hosts))
	for _, feed := range b.hosts {
		feeds = append(feeds, feed)
	}
	b.mu.Unlock()

	for _, feed := range feeds {
		feed.cancel()
	}
}

// convert enriches an engine event with the originating host
func convert(hostID string, msg dockerevents.Message) *types.Event {
	ts := time.Unix(0, msg.TimeNano)
	if msg.TimeNano == 0 {
		ts = time.Unix(msg.Time, 0)
	}
	return &types.Event{
		HostID:     hostID,
		Type:       string(msg.Type),
		Action:     string(msg.Action),
		ActorID:    msg.Actor.ID,
		Attributes: msg.Actor.Attributes,
		Timestamp:  ts.UTC(),
	}
}
