package executor

import (
	"context"

	"github.com/dockfleet/dockfleet/pkg/connmgr"
	"github.com/dockfleet/dockfleet/pkg/engine"
	"github.com/dockfleet/dockfleet/pkg/events"
	"github.com/dockfleet/dockfleet/pkg/metrics"
	"github.com/dockfleet/dockfleet/pkg/permission"
	"github.com/dockfleet/dockfleet/pkg/security"
	"github.com/dockfleet/dockfleet/pkg/selfref"
	"github.com/dockfleet/dockfleet/pkg/shell"
	"github.com/dockfleet/dockfleet/pkg/storage"
	"github.com/dockfleet/dockfleet/pkg/stream"
	"github.com/dockfleet/dockfleet/pkg/types"
)

// Executor wires permissions, connections, and streaming into one
// operation surface. See the package doc for the invariants.
type Executor struct {
	store    storage.Store
	creds    *security.CredentialStore
	perms    *permission.Resolver
	conns    *connmgr.Manager
	mux      *stream.Multiplexer
	events   *events.Broadcaster
	detector *selfref.Detector
	shell    *shell.Mediator
}

// New creates an executor over already-constructed components
func New(
	store storage.Store,
	creds *security.CredentialStore,
	perms *permission.Resolver,
	conns *connmgr.Manager,
	mux *stream.Multiplexer,
	broadcaster *events.Broadcaster,
	detector *selfref.Detector,
	mediator *shell.Mediator,
) *Executor {
	return &Executor{
		store:    store,
		creds:    creds,
		perms:    perms,
		conns:    conns,
		mux:      mux,
		events:   broadcaster,
		detector: detector,
		shell:    mediator,
	}
}

// resolveHost returns the named host, or the caller's default host when
// hostID is empty.
func (e *Executor) resolveHost(user *types.User, hostID string) (*types.Host, error) {
	if hostID == "" {
		return e.perms.DefaultHost(user)
	}
	return e.store.GetHost(hostID)
}

// run is the uniform operation path: resolve, authorize, then execute
// through the host's breaker. Authorization failure never reaches the
// connection manager.
func (e *Executor) run(ctx context.Context, user *types.User, action permission.Action, hostID string, fn func(ctx context.Context, cli *engine.Client) error) error {
	timer := metrics.NewTimer()

	host, err := e.resolveHost(user, hostID)
	if err != nil {
		metrics.OperationsTotal.WithLabelValues(string(action), "error").Inc()
		return err
	}
	if err := e.perms.Authorize(user, action, host.ID); err != nil {
		metrics.OperationsTotal.WithLabelValues(string(action), "forbidden").Inc()
		return err
	}

	err = e.conns.Do(ctx, host.ID, fn)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.OperationsTotal.WithLabelValues(string(action), outcome).Inc()
	timer.ObserveDuration(metrics.OperationDuration.WithLabelValues(string(action)))
	return err
}

// authorizedClient resolves and authorizes, then hands back the live
// engine client. Streaming operations use this instead of run because
// they hold the client past the call.
func (e *Executor) authorizedClient(ctx context.Context, user *types.User, action permission.Action, hostID string) (*types.Host, *engine.Client, error) {
	host, err := e.resolveHost(user, hostID)
	if err != nil {
		metrics.OperationsTotal.WithLabelValues(string(action), "error").Inc()
		return nil, nil, err
	}
	if err := e.perms.Authorize(user, action, host.ID); err != nil {
		metrics.OperationsTotal.WithLabelValues(string(action), "forbidden").Inc()
		return nil, nil, err
	}
	cli, err := e.conns.Get(ctx, host.ID)
	if err != nil {
		metrics.OperationsTotal.WithLabelValues(string(action), "error").Inc()
		return nil, nil, err
	}
	metrics.OperationsTotal.WithLabelValues(string(action), "ok").Inc()
	return host, cli, nil
}
