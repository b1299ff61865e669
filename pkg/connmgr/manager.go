package connmgr

import (
	"context"
	"sync"
	"time"

	"github.com/dockfleet/dockfleet/pkg/breaker"
	"github.com/dockfleet/dockfleet/pkg/engine"
	"github.com/dockfleet/dockfleet/pkg/errdefs"
	"github.com/dockfleet/dockfleet/pkg/log"
	"github.com/dockfleet/dockfleet/pkg/metrics"
	"github.com/dockfleet/dockfleet/pkg/security"
	"github.com/dockfleet/dockfleet/pkg/storage"
	"github.com/dockfleet/dockfleet/pkg/transport"
	"github.com/dockfleet/dockfleet/pkg/types"
)

// Config controls connection manager behavior
type Config struct {
	// HealthCheckInterval is how stale a handle's last successful ping
	// may be before Get re-probes it. Also the cadence of the background
	// health loop. Zero means 5 minutes.
	HealthCheckInterval time.Duration

	// Breaker is the per-host circuit breaker configuration
	Breaker breaker.Config
}

// Manager is the singleton registry of live engine handles. For each
// host id it holds at most one handle, created lazily and evicted when
// a health check fails or the host is deactivated.
type Manager struct {
	store  storage.Store
	creds  *security.CredentialStore
	dialer *transport.Dialer
	cfg    Config

	mu        sync.Mutex
	handles   map[string]*transport.Handle
	breakers  map[string]*breaker.Breaker
	hostLocks map[string]*sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewManager creates a connection manager. Call Start to run the
// background health loop and Shutdown on process exit.
func NewManager(store storage.Store, creds *security.CredentialStore, dialer *transport.Dialer, cfg Config) *Manager {
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 5 * time.Minute
	}
	return &Manager{
		store:     store,
		creds:     creds,
		dialer:    dialer,
		cfg:       cfg,
		handles:   make(map[string]*transport.Handle),
		breakers:  make(map[string]*breaker.Breaker),
		hostLocks: make(map[string]*sync.Mutex),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic health check loop
func (m *Manager) Start() {
	go m.run()
}

// run re-pings stale handles until Shutdown
func (m *Manager) run() {
	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkAll()
		case <-m.stopCh:
			return
		}
	}
}

// Get returns the live engine client for a host, dialing on first use.
// A handle whose last successful health check is older than the
// configured interval is re-pinged through the breaker before being
// returned; on failure it is evicted and the host marked unhealthy.
//
// The caller must already be authorized for the host; authorization is
// the executor's job, not the registry's.
func (m *Manager) Get(ctx context.Context, hostID string) (*engine.Client, error) {
	host, err := m.store.GetHost(hostID)
	if err != nil {
		return nil, err
	}
	if !host.Active {
		return nil, errdefs.Newf(errdefs.KindValidation, "host %s is deactivated", hostID)
	}

	// Per-host lock so concurrent first-time callers dial once
	hostLock := m.lockFor(hostID)
	hostLock.Lock()
	defer hostLock.Unlock()

	m.mu.Lock()
	handle := m.handles[hostID]
	m.mu.Unlock()

	if handle == nil {
		handle, err = m.dial(ctx, host)
		if err != nil {
			return nil, err
		}
	} else if time.Since(handle.LastHealthOK()) > m.cfg.HealthCheckInterval {
		if err := m.ping(ctx, hostID, handle); err != nil {
			m.evict(hostID, handle)
			m.markUnhealthy(host)
			return nil, err
		}
	}

	return engine.New(hostID, handle.Client), nil
}

// Do runs fn against a host's engine client, gated by the host's
// circuit breaker. This is the path every executor operation takes.
func (m *Manager) Do(ctx context.Context, hostID string, fn func(ctx context.Context, cli *engine.Client) error) error {
	cli, err := m.Get(ctx, hostID)
	if err != nil {
		return err
	}

	br := m.breakerFor(hostID)
	err = br.Do(ctx, func(ctx context.Context) error {
		return fn(ctx, cli)
	})
	if errdefs.IsBreakerOpen(err) {
		metrics.BreakerRejections.Inc()
	}
	m.publishBreakerState(hostID, br)
	return err
}

// dial creates a handle for the host and inserts it into the registry.
// The dial itself runs through the breaker so an unreachable host stops
// being hammered after the failure threshold. Caller holds the per-host
// lock.
func (m *Manager) dial(ctx context.Context, host *types.Host) (*transport.Handle, error) {
	br := m.breakerFor(host.ID)

	var handle *transport.Handle
	err := br.Do(ctx, func(ctx context.Context) error {
		creds, err := m.creds.Decrypt(host.ID)
		if err != nil {
			return err
		}
		handle, err = m.dialer.Dial(ctx, host, creds)
		return err
	})
	m.publishBreakerState(host.ID, br)
	if err != nil {
		metrics.ConnectionsDialed.WithLabelValues(string(host.Kind), "error").Inc()
		if errdefs.IsTransport(err) {
			m.markUnhealthy(host)
		}
		return nil, err
	}
	metrics.ConnectionsDialed.WithLabelValues(string(host.Kind), "ok").Inc()

	m.mu.Lock()
	m.handles[host.ID] = handle
	metrics.ConnectionsActive.Set(float64(len(m.handles)))
	m.mu.Unlock()

	m.markHealthy(host, handle)

	log.WithComponent("connmgr").Info().
		Str("host_id", host.ID).
		Str("kind", string(host.Kind)).
		Msg("engine connected")
	return handle, nil
}

// ping re-probes a stale handle through the breaker
func (m *Manager) ping(ctx context.Context, hostID string, handle *transport.Handle) error {
	br := m.breakerFor(hostID)
	err := br.Do(ctx, func(ctx context.Context) error {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if _, err := handle.Client.Ping(probeCtx); err != nil {
			return errdefs.Wrap(errdefs.KindTransport, "health check failed", err)
		}
		return nil
	})
	m.publishBreakerState(hostID, br)
	if err == nil {
		handle.MarkHealthy(time.Now())
	}
	return err
}

// checkAll is one pass of the background health loop
func (m *Manager) checkAll() {
	m.mu.Lock()
	stale := make(map[string]*transport.Handle)
	for hostID, handle := range m.handles {
		if time.Since(handle.LastHealthOK()) > m.cfg.HealthCheckInterval {
			stale[hostID] = handle
		}
	}
	m.mu.Unlock()

	for hostID, handle := range stale {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := m.ping(ctx, hostID, handle)
		cancel()
		if err == nil {
			continue
		}

		log.WithComponent("connmgr").Warn().
			Str("host_id", hostID).
			Err(err).
			Msg("health check failed, evicting handle")
		m.evict(hostID, handle)
		if host, herr := m.store.GetHost(hostID); herr == nil {
			m.markUnhealthy(host)
		}
	}
}

// Close evicts and disposes of a host's handle, if present
func (m *Manager) Close(hostID string) {
	m.mu.Lock()
	handle := m.handles[hostID]
	m.mu.Unlock()
	if handle != nil {
		m.evict(hostID, handle)
	}
}

// CloseAll disposes of every handle; used on shutdown and by tests
func (m *Manager) CloseAll() {
	m.mu.Lock()
	handles := m.handles
	m.handles = make(map[string]*transport.Handle)
	metrics.ConnectionsActive.Set(0)
	m.mu.Unlock()

	for hostID, handle := range handles {
		if err := handle.Close(); err != nil {
			log.WithComponent("connmgr").Warn().
				Str("host_id", hostID).
				Err(err).
				Msg("error closing engine handle")
		}
	}
}

// Shutdown stops the health loop and closes every handle
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.CloseAll()
}

// BreakerSnapshot returns the breaker state for one host, for the
// introspection endpoint. Hosts never called have a closed breaker.
func (m *Manager) BreakerSnapshot(hostID string) breaker.Snapshot {
	return m.breakerFor(hostID).SnapshotState()
}

// ResetBreaker manually closes a host's breaker
func (m *Manager) ResetBreaker(hostID string) {
	br := m.breakerFor(hostID)
	br.Reset()
	m.publishBreakerState(hostID, br)
}

// evict removes a handle from the registry and closes it
func (m *Manager) evict(hostID string, handle *transport.Handle) {
	m.mu.Lock()
	if m.handles[hostID] == handle {
		delete(m.handles, hostID)
		metrics.ConnectionsActive.Set(float64(len(m.handles)))
		metrics.ConnectionsEvicted.Inc()
	}
	m.mu.Unlock()

	if err := handle.Close(); err != nil {
		log.WithComponent("connmgr").Debug().
			Str("host_id", hostID).
			Err(err).
			Msg("error closing evicted handle")
	}
}

func (m *Manager) markUnhealthy(host *types.Host) {
	if host.Health == types.HostUnhealthy {
		return
	}
	host.Health = types.HostUnhealthy
	host.UpdatedAt = time.Now().UTC()
	if err := m.store.UpdateHost(host); err != nil {
		log.WithComponent("connmgr").Warn().
			Str("host_id", host.ID).
			Err(err).
			Msg("failed to persist unhealthy status")
	}
	m.publishFleetHealth()
}

// markHealthy persists health and the observed engine version and swarm
// membership after a successful dial.
func (m *Manager) markHealthy(host *types.Host, handle *transport.Handle) {
	cli := engine.New(host.ID, handle.Client)

	host.Health = types.HostHealthy
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if version, err := cli.ServerVersion(ctx); err == nil {
		host.EngineVersion = version
	}
	if status, err := cli.SwarmStatus(ctx); err == nil {
		host.SwarmRole = status.Role
		host.ClusterID = status.ClusterID
		host.IsLeader = status.IsLeader
	}

	host.UpdatedAt = time.Now().UTC()
	if err := m.store.UpdateHost(host); err != nil {
		log.WithComponent("connmgr").Warn().
			Str("host_id", host.ID).
			Err(err).
			Msg("failed to persist healthy status")
	}
	m.publishFleetHealth()
}

// publishFleetHealth recomputes the per-status host gauge from the
// store. The gauge is Set, never incremented, so a host moving between
// statuses moves between labels instead of counting twice.
func (m *Manager) publishFleetHealth() {
	hosts, err := m.store.ListHosts()
	if err != nil {
		return
	}
	counts := map[types.HostHealth]int{
		types.HostHealthy:   0,
		types.HostUnhealthy: 0,
		types.HostUnknown:   0,
	}
	for _, h := range hosts {
		counts[h.Health]++
	}
	for status, n := range counts {
		metrics.HostsTotal.WithLabelValues(string(status)).Set(float64(n))
	}
}

// lockFor returns the per-host creation mutex
func (m *Manager) lockFor(hostID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.hostLocks[hostID]
	if !ok {
		lock = &sync.Mutex{}
		m.hostLocks[hostID] = lock
	}
	return lock
}

// breakerFor returns the per-host breaker, creating it on first use
func (m *Manager) breakerFor(hostID string) *breaker.Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	br, ok := m.breakers[hostID]
	if !ok {
		br = breaker.New(m.cfg.Breaker)
		m.breakers[hostID] = br
	}
	return br
}

func (m *Manager) publishBreakerState(hostID string, br *breaker.Breaker) {
	var v float64
	switch br.State() {
	case breaker.StateHalfOpen:
		v = 1
	case breaker.StateOpen:
		v = 2
	}
	metrics.BreakerState.WithLabelValues(hostID).Set(v)
}
