package executor

import (
	"context"

	"github.com/dockfleet/dockfleet/pkg/engine"
	"github.com/dockfleet/dockfleet/pkg/permission"
	"github.com/dockfleet/dockfleet/pkg/types"
)

// ListContainers lists containers on a host; all includes stopped ones
func (e *Executor) ListContainers(ctx context.Context, user *types.User, hostID string, all bool) ([]types.ContainerSummary, error) {
	var out []types.ContainerSummary
	err := e.run(ctx, user, permission.ActionContainerList, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		out, err = cli.ListContainers(ctx, all)
		return err
	})
	return out, err
}

// InspectContainer returns the detailed record for one container
func (e *Executor) InspectContainer(ctx context.Context, user *types.User, hostID, containerID string) (*types.ContainerDetail, error) {
	var out *types.ContainerDetail
	err := e.run(ctx, user, permission.ActionContainerInspect, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		out, err = cli.InspectContainer(ctx, containerID)
		return err
	})
	return out, err
}

// CreateContainer creates a container and returns its id
func (e *Executor) CreateContainer(ctx context.Context, user *types.User, hostID string, spec *types.ContainerSpec) (string, error) {
	var id string
	err := e.run(ctx, user, permission.ActionContainerCreate, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		id, err = cli.CreateContainer(ctx, spec)
		return err
	})
	return id, err
}

// StartContainer starts a container; starting a running one succeeds
func (e *Executor) StartContainer(ctx context.Context, user *types.User, hostID, containerID string) error {
	return e.run(ctx, user, permission.ActionContainerStart, hostID, func(ctx context.Context, cli *engine.Client) error {
		return cli.StartContainer(ctx, containerID)
	})
}

// StopContainer stops a container; stopping a stopped one succeeds
func (e *Executor) StopContainer(ctx context.Context, user *types.User, hostID, containerID string, timeout *int) error {
	return e.run(ctx, user, permission.ActionContainerStop, hostID, func(ctx context.Context, cli *engine.Client) error {
		return cli.StopContainer(ctx, containerID, timeout)
	})
}

// RestartContainer restarts a container
func (e *Executor) RestartContainer(ctx context.Context, user *types.User, hostID, containerID string, timeout *int) error {
	return e.run(ctx, user, permission.ActionContainerRestart, hostID, func(ctx context.Context, cli *engine.Client) error {
		return cli.RestartContainer(ctx, containerID, timeout)
	})
}

// PauseContainer pauses a container; requires the same level as stop
func (e *Executor) PauseContainer(ctx context.Context, user *types.User, hostID, containerID string) error {
	return e.run(ctx, user, permission.ActionContainerStop, hostID, func(ctx context.Context, cli *engine.Client) error {
		return cli.PauseContainer(ctx, containerID)
	})
}

// UnpauseContainer resumes a paused container
func (e *Executor) UnpauseContainer(ctx context.Context, user *types.User, hostID, containerID string) error {
	return e.run(ctx, user, permission.ActionContainerStart, hostID, func(ctx context.Context, cli *engine.Client) error {
		return cli.UnpauseContainer(ctx, containerID)
	})
}

// RemoveContainer removes a container, optionally forcing a running one
func (e *Executor) RemoveContainer(ctx context.Context, user *types.User, hostID, containerID string, force bool) error {
	return e.run(ctx, user, permission.ActionContainerRemove, hostID, func(ctx context.Context, cli *engine.Client) error {
		return cli.RemoveContainer(ctx, containerID, force)
	})
}
