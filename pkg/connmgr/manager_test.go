package connmgr

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockfleet/dockfleet/pkg/breaker"
	"github.com/dockfleet/dockfleet/pkg/engine"
	"github.com/dockfleet/dockfleet/pkg/errdefs"
	"github.com/dockfleet/dockfleet/pkg/metrics"
	"github.com/dockfleet/dockfleet/pkg/security"
	"github.com/dockfleet/dockfleet/pkg/storage"
	"github.com/dockfleet/dockfleet/pkg/transport"
	"github.com/dockfleet/dockfleet/pkg/types"
)

// fakeDaemon serves just enough of the engine API over TCP for the
// dialer's probe and the post-dial version lookup.
func fakeDaemon(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var pings atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/_ping"):
			pings.Add(1)
			w.Header().Set("Api-Version", "1.45")
			w.Header().Set("OSType", "linux")
			w.WriteHeader(http.StatusOK)
		case strings.HasSuffix(r.URL.Path, "/version"):
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"Version":"27.0.1","ApiVersion":"1.45"}`))
		default:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &pings
}

func newTestManager(t *testing.T, brCfg breaker.Config) (*Manager, storage.Store) {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	creds, err := security.NewCredentialStore(bytes.Repeat([]byte{0x17}, 32), store)
	require.NoError(t, err)

	m := NewManager(store, creds, transport.NewDialer(), Config{Breaker: brCfg})
	t.Cleanup(m.Shutdown)
	return m, store
}

func addTCPHost(t *testing.T, store storage.Store, id, endpoint string, active bool) *types.Host {
	t.Helper()
	host := &types.Host{
		ID:        id,
		Name:      id,
		Kind:      types.ConnectionTCPPlain,
		Endpoint:  endpoint,
		Active:    active,
		Health:    types.HostUnknown,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateHost(host))
	return host
}

func TestGetReusesFreshHandle(t *testing.T) {
	srv, pings := fakeDaemon(t)
	m, store := newTestManager(t, breaker.Config{FailureThreshold: 3})
	host := addTCPHost(t, store, "h1", "tcp://"+srv.Listener.Addr().String(), true)

	cli, err := m.Get(context.Background(), host.ID)
	require.NoError(t, err)
	assert.Equal(t, host.ID, cli.HostID())

	probed := pings.Load()
	require.Positive(t, probed)

	// A fresh handle is returned without another probe
	_, err = m.Get(context.Background(), host.ID)
	require.NoError(t, err)
	assert.Equal(t, probed, pings.Load())
}

func TestGetRecordsHealthAfterDial(t *testing.T) {
	srv, _ := fakeDaemon(t)
	m, store := newTestManager(t, breaker.Config{FailureThreshold: 3})
	host := addTCPHost(t, store, "h1", "tcp://"+srv.Listener.Addr().String(), true)

	_, err := m.Get(context.Background(), host.ID)
	require.NoError(t, err)

	stored, err := store.GetHost(host.ID)
	require.NoError(t, err)
	assert.Equal(t, types.HostHealthy, stored.Health)
	assert.Equal(t, "27.0.1", stored.EngineVersion)
}

func TestGetRefusesDeactivatedHost(t *testing.T) {
	srv, pings := fakeDaemon(t)
	m, store := newTestManager(t, breaker.Config{FailureThreshold: 3})
	host := addTCPHost(t, store, "h1", "tcp://"+srv.Listener.Addr().String(), false)

	_, err := m.Get(context.Background(), host.ID)
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))
	assert.Zero(t, pings.Load())
}

func TestGetUnknownHostNotFound(t *testing.T) {
	m, _ := newTestManager(t, breaker.Config{FailureThreshold: 3})

	_, err := m.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestDialFailuresTripBreaker(t *testing.T) {
	m, store := newTestManager(t, breaker.Config{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Hour,
	})
	// Port 1 refuses immediately
	host := addTCPHost(t, store, "h1", "tcp://127.0.0.1:1", true)

	for i := 0; i < 2; i++ {
		_, err := m.Get(context.Background(), host.ID)
		require.Error(t, err)
		assert.True(t, errdefs.IsTransport(err))
	}

	_, err := m.Get(context.Background(), host.ID)
	require.Error(t, err)
	assert.True(t, errdefs.IsBreakerOpen(err))
	assert.Equal(t, breaker.StateOpen, m.BreakerSnapshot(host.ID).State)

	stored, err := store.GetHost(host.ID)
	require.NoError(t, err)
	assert.Equal(t, types.HostUnhealthy, stored.Health)
}

func TestResetBreakerAllowsRetry(t *testing.T) {
	m, store := newTestManager(t, breaker.Config{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Hour,
	})
	host := addTCPHost(t, store, "h1", "tcp://127.0.0.1:1", true)

	_, err := m.Get(context.Background(), host.ID)
	require.Error(t, err)
	_, err = m.Get(context.Background(), host.ID)
	require.True(t, errdefs.IsBreakerOpen(err))

	m.ResetBreaker(host.ID)
	assert.Equal(t, breaker.StateClosed, m.BreakerSnapshot(host.ID).State)

	// The retry reaches the dialer again instead of the breaker
	_, err = m.Get(context.Background(), host.ID)
	require.Error(t, err)
	assert.True(t, errdefs.IsTransport(err))
}

func TestCloseEvictsHandle(t *testing.T) {
	srv, pings := fakeDaemon(t)
	m, store := newTestManager(t, breaker.Config{FailureThreshold: 3})
	host := addTCPHost(t, store, "h1", "tcp://"+srv.Listener.Addr().String(), true)

	_, err := m.Get(context.Background(), host.ID)
	require.NoError(t, err)
	probed := pings.Load()

	m.Close(host.ID)

	_, err = m.Get(context.Background(), host.ID)
	require.NoError(t, err)
	assert.Greater(t, pings.Load(), probed)
}

func TestDoOnlyCountsTransportFailures(t *testing.T) {
	srv, _ := fakeDaemon(t)
	m, store := newTestManager(t, breaker.Config{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Hour,
	})
	host := addTCPHost(t, store, "h1", "tcp://"+srv.Listener.Addr().String(), true)

	err := m.Do(context.Background(), host.ID, func(ctx context.Context, cli *engine.Client) error {
		return nil
	})
	require.NoError(t, err)

	// Engine-side failures are not a host health signal
	engineErr := errdefs.New(errdefs.KindEngine, "no such container")
	for i := 0; i < 5; i++ {
		err := m.Do(context.Background(), host.ID, func(ctx context.Context, cli *engine.Client) error {
			return engineErr
		})
		require.Error(t, err)
	}
	assert.Equal(t, breaker.StateClosed, m.BreakerSnapshot(host.ID).State)

	// Transport failures are
	transportErr := errdefs.New(errdefs.KindTransport, "connection reset")
	for i := 0; i < 2; i++ {
		_ = m.Do(context.Background(), host.ID, func(ctx context.Context, cli *engine.Client) error {
			return transportErr
		})
	}
	assert.Equal(t, breaker.StateOpen, m.BreakerSnapshot(host.ID).State)

	err = m.Do(context.Background(), host.ID, func(ctx context.Context, cli *engine.Client) error {
		return nil
	})
	require.Error(t, err)
	assert.True(t, errdefs.IsBreakerOpen(err))
}

func gaugeFor(health types.HostHealth) float64 {
	return testutil.ToFloat64(metrics.HostsTotal.WithLabelValues(string(health)))
}

func TestHostHealthGaugeTracksTransitions(t *testing.T) {
	srv, _ := fakeDaemon(t)
	m, store := newTestManager(t, breaker.Config{FailureThreshold: 5})
	good := addTCPHost(t, store, "h1", "tcp://"+srv.Listener.Addr().String(), true)
	bad := addTCPHost(t, store, "h2", "tcp://127.0.0.1:1", true)

	_, err := m.Get(context.Background(), good.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, gaugeFor(types.HostHealthy))
	assert.Equal(t, 1.0, gaugeFor(types.HostUnknown))
	assert.Equal(t, 0.0, gaugeFor(types.HostUnhealthy))

	// Repeated dial failures count the host once, not once per failure
	for i := 0; i < 3; i++ {
		_, err = m.Get(context.Background(), bad.ID)
		require.Error(t, err)
	}
	assert.Equal(t, 1.0, gaugeFor(types.HostUnhealthy))
	assert.Equal(t, 0.0, gaugeFor(types.HostUnknown))

	// Recovery moves the host between labels instead of leaving a
	// stale unhealthy count behind
	stored, err := store.GetHost(bad.ID)
	require.NoError(t, err)
	stored.Endpoint = "tcp://" + srv.Listener.Addr().String()
	require.NoError(t, store.UpdateHost(stored))

	_, err = m.Get(context.Background(), bad.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, gaugeFor(types.HostHealthy))
	assert.Equal(t, 0.0, gaugeFor(types.HostUnhealthy))
}
