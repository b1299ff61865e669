// Package selfref detects requests that target the container running
// the control plane itself. Streaming our own logs back into our own
// log stream produces a feedback loop; the multiplexer degrades such
// streams to heartbeats instead of opening an upstream.
package selfref

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dockfleet/dockfleet/pkg/engine"
)

// cacheTTL bounds how long a detection result is reused
const cacheTTL = 60 * time.Second

// Detector identifies the control plane's own container. Detection
// order: configured label, configured name set, hostname equality.
// Results are memoized per (host, container) for a short TTL.
type Detector struct {
	labels   []string
	names    []string
	hostname string
	clock    func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	self    bool
	expires time.Time
}

// NewDetector creates a detector from the configured self-identifying
// labels and known control-plane container names. The process hostname
// is captured once; inside a container it equals the short container id
// unless overridden.
func NewDetector(labels, names []string) *Detector {
	hostname, _ := os.Hostname()
	return &Detector{
		labels:   labels,
		names:    names,
		hostname: hostname,
		clock:    time.Now,
		cache:    make(map[string]cacheEntry),
	}
}

// IsSelf reports whether the container is the control plane's own.
// Detection failures (container gone, engine unreachable) report false;
// suppression is best-effort, not a security boundary.
func (d *Detector) IsSelf(ctx context.Context, cli *engine.Client, containerID string) bool {
	key := cli.HostID() + "/" + containerID

	d.mu.Lock()
	if entry, ok := d.cache[key]; ok && d.clock().Before(entry.expires) {
		d.mu.Unlock()
		return entry.self
	}
	d.mu.Unlock()

	self := d.detect(ctx, cli, containerID)

	d.mu.Lock()
	d.cache[key] = cacheEntry{self: self, expires: d.clock().Add(cacheTTL)}
	d.mu.Unlock()
	return self
}

func (d *Detector) detect(ctx context.Context, cli *engine.Client, containerID string) bool {
	detail, err := cli.InspectContainer(ctx, containerID)
	if err != nil {
		return false
	}

	for _, label := range d.labels {
		if _, ok := detail.Labels[label]; ok {
			return true
		}
	}
	for _, name := range d.names {
		if detail.Name == name {
			return true
		}
	}
	if d.hostname != "" && detail.Hostname == d.hostname {
		return true
	}
	// Containers default their hostname to the short container id
	if d.hostname != "" && strings.HasPrefix(containerID, d.hostname) {
		return true
	}
	return false
}

// Invalidate drops memoized results for one host, used when the host's
// handle is evicted.
func (d *Detector) Invalidate(hostID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key := range d.cache {
		if strings.HasPrefix(key, hostID+"/") {
			delete(d.cache, key)
		}
	}
}
