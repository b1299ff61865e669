package executor

import (
	"context"

	"github.com/dockfleet/dockfleet/pkg/engine"
	"github.com/dockfleet/dockfleet/pkg/permission"
	"github.com/dockfleet/dockfleet/pkg/types"
)

// Images

func (e *Executor) ListImages(ctx context.Context, user *types.User, hostID string) ([]types.ImageSummary, error) {
	var out []types.ImageSummary
	err := e.run(ctx, user, permission.ActionImageList, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		out, err = cli.ListImages(ctx)
		return err
	})
	return out, err
}

// PullImage pulls an image by reference, blocking until complete
func (e *Executor) PullImage(ctx context.Context, user *types.User, hostID, ref string) error {
	return e.run(ctx, user, permission.ActionImagePull, hostID, func(ctx context.Context, cli *engine.Client) error {
		return cli.PullImage(ctx, ref)
	})
}

func (e *Executor) RemoveImage(ctx context.Context, user *types.User, hostID, imageID string, force bool) error {
	return e.run(ctx, user, permission.ActionImageRemove, hostID, func(ctx context.Context, cli *engine.Client) error {
		return cli.RemoveImage(ctx, imageID, force)
	})
}

// PruneImages removes dangling images, returning bytes reclaimed
func (e *Executor) PruneImages(ctx context.Context, user *types.User, hostID string) (uint64, error) {
	var reclaimed uint64
	err := e.run(ctx, user, permission.ActionImagePrune, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		reclaimed, err = cli.PruneImages(ctx)
		return err
	})
	return reclaimed, err
}

// Volumes

func (e *Executor) ListVolumes(ctx context.Context, user *types.User, hostID string) ([]types.VolumeSummary, error) {
	var out []types.VolumeSummary
	err := e.run(ctx, user, permission.ActionVolumeList, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		out, err = cli.ListVolumes(ctx)
		return err
	})
	return out, err
}

func (e *Executor) CreateVolume(ctx context.Context, user *types.User, hostID, name string, labels map[string]string) (*types.VolumeSummary, error) {
	var out *types.VolumeSummary
	err := e.run(ctx, user, permission.ActionVolumeCreate, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		out, err = cli.CreateVolume(ctx, name, labels)
		return err
	})
	return out, err
}

func (e *Executor) RemoveVolume(ctx context.Context, user *types.User, hostID, name string, force bool) error {
	return e.run(ctx, user, permission.ActionVolumeRemove, hostID, func(ctx context.Context, cli *engine.Client) error {
		return cli.RemoveVolume(ctx, name, force)
	})
}

func (e *Executor) PruneVolumes(ctx context.Context, user *types.User, hostID string) (uint64, error) {
	var reclaimed uint64
	err := e.run(ctx, user, permission.ActionVolumePrune, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		reclaimed, err = cli.PruneVolumes(ctx)
		return err
	})
	return reclaimed, err
}

// Networks

func (e *Executor) ListNetworks(ctx context.Context, user *types.User, hostID string) ([]types.NetworkSummary, error) {
	var out []types.NetworkSummary
	err := e.run(ctx, user, permission.ActionNetworkList, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		out, err = cli.ListNetworks(ctx)
		return err
	})
	return out, err
}

func (e *Executor) CreateNetwork(ctx context.Context, user *types.User, hostID, name, driver string) (string, error) {
	var id string
	err := e.run(ctx, user, permission.ActionNetworkCreate, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		id, err = cli.CreateNetwork(ctx, name, driver)
		return err
	})
	return id, err
}

func (e *Executor) RemoveNetwork(ctx context.Context, user *types.User, hostID, networkID string) error {
	return e.run(ctx, user, permission.ActionNetworkRemove, hostID, func(ctx context.Context, cli *engine.Client) error {
		return cli.RemoveNetwork(ctx, networkID)
	})
}

func (e *Executor) PruneNetworks(ctx context.Context, user *types.User, hostID string) ([]string, error) {
	var removed []string
	err := e.run(ctx, user, permission.ActionNetworkPrune, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		removed, err = cli.PruneNetworks(ctx)
		return err
	})
	return removed, err
}

// System

func (e *Executor) SystemInfo(ctx context.Context, user *types.User, hostID string) (*types.SystemInfo, error) {
	var out *types.SystemInfo
	err := e.run(ctx, user, permission.ActionSystemInfo, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		out, err = cli.SystemInfo(ctx)
		return err
	})
	return out, err
}

func (e *Executor) ServerVersion(ctx context.Context, user *types.User, hostID string) (string, error) {
	var version string
	err := e.run(ctx, user, permission.ActionSystemVersion, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		version, err = cli.ServerVersion(ctx)
		return err
	})
	return version, err
}

func (e *Executor) DiskUsage(ctx context.Context, user *types.User, hostID string) (*types.DiskUsage, error) {
	var out *types.DiskUsage
	err := e.run(ctx, user, permission.ActionSystemDiskUsage, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		out, err = cli.DiskUsage(ctx)
		return err
	})
	return out, err
}

// PruneContainers removes stopped containers, returning bytes reclaimed
func (e *Executor) PruneContainers(ctx context.Context, user *types.User, hostID string) (uint64, error) {
	var reclaimed uint64
	err := e.run(ctx, user, permission.ActionSystemPrune, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		reclaimed, err = cli.PruneContainers(ctx)
		return err
	})
	return reclaimed, err
}
