package engine

import (
	"context"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"

	"github.com/dockfleet/dockfleet/pkg/errdefs"
	"github.com/dockfleet/dockfleet/pkg/types"
)

// SystemInfo returns the normalized system record, including observed
// swarm membership.
func (c *Client) SystemInfo(ctx context.Context) (*types.SystemInfo, error) {
	info, err := c.cli.Info(ctx)
	if err != nil {
		return nil, errdefs.FromEngine(err)
	}

	out := &types.SystemInfo{
		HostID:            c.hostID,
		Hostname:          info.Name,
		ServerVersion:     info.ServerVersion,
		OperatingSystem:   info.OperatingSystem,
		KernelVersion:     info.KernelVersion,
		Containers:        info.Containers,
		ContainersRunning: info.ContainersRunning,
		Images:            info.Images,
		NCPU:              info.NCPU,
		MemTotal:          info.MemTotal,
		SwarmRole:         types.SwarmRoleStandalone,
	}

	status, err := c.SwarmStatus(ctx)
	if err == nil {
		out.SwarmRole = status.Role
		out.ClusterID = status.ClusterID
		out.IsLeader = status.IsLeader
	}
	return out, nil
}

// ServerVersion returns the engine version string
func (c *Client) ServerVersion(ctx context.Context) (string, error) {
	v, err := c.cli.ServerVersion(ctx)
	if err != nil {
		return "", errdefs.FromEngine(err)
	}
	return v.Version, nil
}

// DiskUsage returns the aggregate space used by images, containers, and
// volumes on the host.
func (c *Client) DiskUsage(ctx context.Context) (*types.DiskUsage, error) {
	du, err := c.cli.DiskUsage(ctx, dockertypes.DiskUsageOptions{})
	if err != nil {
		return nil, errdefs.FromEngine(err)
	}

	usage := &types.DiskUsage{
		HostID:     c.hostID,
		LayersSize: du.LayersSize,
	}
	for _, ct := range du.Containers {
		usage.ContainersSize += ct.SizeRw
	}
	for _, v := range du.Volumes {
		if v.UsageData != nil {
			usage.VolumesSize += v.UsageData.Size
		}
	}
	return usage, nil
}

// PruneContainers removes stopped containers and reports the space reclaimed
func (c *Client) PruneContainers(ctx context.Context) (uint64, error) {
	report, err := c.cli.ContainersPrune(ctx, filters.NewArgs())
	if err != nil {
		return 0, errdefs.FromEngine(err)
	}
	return report.SpaceReclaimed, nil
}
