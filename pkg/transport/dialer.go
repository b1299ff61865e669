package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/docker/docker/client"

	"github.com/dockfleet/dockfleet/pkg/errdefs"
	"github.com/dockfleet/dockfleet/pkg/types"
)

// Handle is an established engine connection. It is owned exclusively by
// the connection manager; Close tears down the Docker client and any
// transport child such as an SSH tunnel.
type Handle struct {
	HostID    string
	Client    *client.Client
	CreatedAt time.Time

	mu           sync.Mutex
	lastHealthOK time.Time
	closers      []func() error
	closed       bool
}

// LastHealthOK returns the time of the last successful health check
func (h *Handle) LastHealthOK() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastHealthOK
}

// MarkHealthy records a successful health check
func (h *Handle) MarkHealthy(at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastHealthOK = at
}

// Close disposes of the engine client and every attached transport child.
// Safe to call more than once.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	var firstErr error
	if h.Client != nil {
		if err := h.Client.Close(); err != nil {
			firstErr = err
		}
	}
	// Closers run LIFO so the SSH tunnel outlives the client using it
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *Handle) addCloser(fn func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closers = append(h.closers, fn)
}

// Dialer turns host records plus decrypted credentials into engine handles
type Dialer struct {
	// ProbeTimeout bounds the reachability probes run before a handle
	// is returned. Zero means 10 seconds.
	ProbeTimeout time.Duration
}

// NewDialer creates a dialer with default probe timeout
func NewDialer() *Dialer {
	return &Dialer{ProbeTimeout: 10 * time.Second}
}

// Dial establishes a connection to the engine described by host using the
// decrypted credential material. The engine is pinged before the handle is
// returned; a handle whose probe fails is never returned. Credential
// plaintext is not retained past this call.
func (d *Dialer) Dial(ctx context.Context, host *types.Host, creds map[types.CredentialKind][]byte) (*Handle, error) {
	handle := &Handle{
		HostID:    host.ID,
		CreatedAt: time.Now(),
	}

	var (
		cli *client.Client
		err error
	)
	switch host.Kind {
	case types.ConnectionUnixSocket:
		cli, err = d.dialUnix(host)
	case types.ConnectionTCPPlain:
		cli, err = d.dialTCP(host)
	case types.ConnectionTCPTLS:
		cli, err = d.dialTLS(host, creds)
	case types.ConnectionSSH:
		cli, err = d.dialSSH(ctx, host, creds, handle)
	default:
		return nil, errdefs.Newf(errdefs.KindValidation, "unknown connection kind %q", host.Kind)
	}
	if err != nil {
		handle.Close()
		return nil, err
	}
	handle.Client = cli

	// Probe the daemon before handing the connection out
	probeCtx, cancel := context.WithTimeout(ctx, d.probeTimeout())
	defer cancel()
	if _, err := cli.Ping(probeCtx); err != nil {
		handle.Close()
		return nil, errdefs.Wrap(errdefs.KindTransport, fmt.Sprintf("engine probe failed for host %s", host.ID), err)
	}
	handle.MarkHealthy(time.Now())

	return handle, nil
}

func (d *Dialer) probeTimeout() time.Duration {
	if d.ProbeTimeout > 0 {
		return d.ProbeTimeout
	}
	return 10 * time.Second
}

// dialUnix opens the Docker API over a local socket path
func (d *Dialer) dialUnix(host *types.Host) (*client.Client, error) {
	endpoint := host.Endpoint
	if endpoint == "" {
		endpoint = "unix:///var/run/docker.sock"
	}
	cli, err := client.NewClientWithOpts(
		client.WithHost(endpoint),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindTransport, "failed to create local client", err)
	}
	return cli, nil
}

// dialTCP opens plain HTTP over TCP
func (d *Dialer) dialTCP(host *types.Host) (*client.Client, error) {
	cli, err := client.NewClientWithOpts(
		client.WithHost(host.Endpoint),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindTransport, "failed to create tcp client", err)
	}
	return cli, nil
}

// keepaliveDialer is shared by the TCP-based transports. No overall
// request timeout: log, stats, and event streams are long-running and
// must not be killed from below.
func keepaliveDialer() func(ctx context.Context, network, addr string) (net.Conn, error) {
	return (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext
}
