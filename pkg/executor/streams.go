package executor

import (
	"context"

	"github.com/dockfleet/dockfleet/pkg/errdefs"
	"github.com/dockfleet/dockfleet/pkg/events"
	"github.com/dockfleet/dockfleet/pkg/log"
	"github.com/dockfleet/dockfleet/pkg/permission"
	"github.com/dockfleet/dockfleet/pkg/shell"
	"github.com/dockfleet/dockfleet/pkg/stream"
	"github.com/dockfleet/dockfleet/pkg/types"
)

// StreamContainerLogs attaches the caller to a container's shared log
// stream. When the target is the control plane's own container the
// stream degrades to an informational entry plus heartbeats instead of
// opening an upstream.
func (e *Executor) StreamContainerLogs(ctx context.Context, user *types.User, hostID, containerID string, opts types.LogOptions) (*stream.Subscription, error) {
	host, cli, err := e.authorizedClient(ctx, user, permission.ActionContainerLogs, hostID)
	if err != nil {
		return nil, err
	}

	if e.detector.IsSelf(ctx, cli, containerID) {
		log.WithHostID(host.ID).Info().
			Str("container_id", containerID).
			Msg("self-referential log stream degraded")
		return e.mux.SubscribeDegraded(host.ID, types.SourceContainer, containerID)
	}
	return e.mux.Subscribe(ctx, cli, stream.ContainerLogProvider{}, containerID, opts)
}

// StreamServiceLogs attaches the caller to a swarm service's shared log
// stream.
func (e *Executor) StreamServiceLogs(ctx context.Context, user *types.User, hostID, serviceID string, opts types.LogOptions) (*stream.Subscription, error) {
	_, cli, err := e.authorizedClient(ctx, user, permission.ActionServiceLogs, hostID)
	if err != nil {
		return nil, err
	}
	return e.mux.Subscribe(ctx, cli, stream.ServiceLogProvider{}, serviceID, opts)
}

// StreamContainerStats attaches the caller to a container's shared
// stats stream.
func (e *Executor) StreamContainerStats(ctx context.Context, user *types.User, hostID, containerID string) (*stream.Subscription, error) {
	_, cli, err := e.authorizedClient(ctx, user, permission.ActionContainerStats, hostID)
	if err != nil {
		return nil, err
	}
	return e.mux.Subscribe(ctx, cli, stream.ContainerStatsProvider{}, containerID, types.LogOptions{Follow: true})
}

// SubscribeEvents attaches the caller to a host's engine event feed
func (e *Executor) SubscribeEvents(ctx context.Context, user *types.User, hostID string, filter *types.EventFilter) (*events.Subscription, error) {
	_, cli, err := e.authorizedClient(ctx, user, permission.ActionSystemEvents, hostID)
	if err != nil {
		return nil, err
	}
	return e.events.Subscribe(cli, filter)
}

// Exec opens an interactive exec session inside a container and blocks
// until it ends. The caller's frame channel is usually a websocket.
// Exec into the control plane's own container is refused outright: a
// session there could kill or restart the process mediating it.
func (e *Executor) Exec(ctx context.Context, user *types.User, hostID string, spec types.ExecSpec, conn shell.CallerConn) error {
	host, cli, err := e.authorizedClient(ctx, user, permission.ActionContainerExec, hostID)
	if err != nil {
		return err
	}

	if e.detector.IsSelf(ctx, cli, spec.ContainerID) {
		log.WithHostID(host.ID).Warn().
			Str("user_id", user.ID).
			Str("container_id", spec.ContainerID).
			Msg("refused exec session into own container")
		return errdefs.New(errdefs.KindValidation, "target is the control plane's own container; exec refused")
	}

	log.WithUserID(user.ID).Info().
		Str("host_id", host.ID).
		Str("container_id", spec.ContainerID).
		Msg("exec session authorized")
	return e.shell.Run(ctx, cli, host.ID, spec, conn)
}
