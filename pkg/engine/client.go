package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/dockfleet/dockfleet/pkg/errdefs"
	"github.com/dockfleet/dockfleet/pkg/types"
)

// Client wraps a connected Docker SDK client for one host
type Client struct {
	hostID string
	cli    *client.Client
}

// New wraps an established SDK client. The engine does not own the
// connection; the connection manager does.
func New(hostID string, cli *client.Client) *Client {
	return &Client{hostID: hostID, cli: cli}
}

// HostID returns the host this client talks to
func (c *Client) HostID() string {
	return c.hostID
}

// Raw returns the underlying SDK client for callers that need direct
// access, such as the exec mediator.
func (c *Client) Raw() *client.Client {
	return c.cli
}

// Ping probes the engine and returns its reported version
func (c *Client) Ping(ctx context.Context) (string, error) {
	pong, err := c.cli.Ping(ctx)
	if err != nil {
		return "", errdefs.FromEngine(err)
	}
	return pong.APIVersion, nil
}

// ListContainers returns all containers on the host, including stopped
// ones when all is set.
func (c *Client) ListContainers(ctx context.Context, all bool) ([]types.ContainerSummary, error) {
	list, err := c.cli.ContainerList(ctx, container.ListOptions{All: all})
	if err != nil {
		return nil, errdefs.FromEngine(err)
	}
	out := make([]types.ContainerSummary, 0, len(list))
	for _, ct := range list {
		out = append(out, containerSummary(c.hostID, ct))
	}
	return out, nil
}

// InspectContainer returns the detailed record for one container
func (c *Client) InspectContainer(ctx context.Context, containerID string) (*types.ContainerDetail, error) {
	inspect, err := c.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, errdefs.FromEngine(err)
	}
	return containerDetail(c.hostID, inspect), nil
}

// CreateContainer creates a container from the given spec and returns its id.
// The image is not pulled implicitly; a missing image surfaces as not_found.
func (c *Client) CreateContainer(ctx context.Context, spec *types.ContainerSpec) (string, error) {
	if spec.Image == "" {
		return "", errdefs.New(errdefs.KindValidation, "container spec requires an image")
	}

	cfg := &container.Config{
		Image:  spec.Image,
		Cmd:    spec.Cmd,
		Env:    spec.Env,
		Labels: spec.Labels,
	}
	hostCfg := &container.HostConfig{
		Binds: spec.Volumes,
	}

	if len(spec.Ports) > 0 {
		cfg.ExposedPorts = nat.PortSet{}
		hostCfg.PortBindings = nat.PortMap{}
		for _, pb := range spec.Ports {
			proto := pb.Protocol
			if proto == "" {
				proto = "tcp"
			}
			port := nat.Port(fmt.Sprintf("%d/%s", pb.ContainerPort, proto))
			cfg.ExposedPorts[port] = struct{}{}
			hostCfg.PortBindings[port] = append(hostCfg.PortBindings[port], nat.PortBinding{
				HostPort: fmt.Sprintf("%d", pb.HostPort),
			})
		}
	}

	resp, err := c.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return "", errdefs.FromEngine(err)
	}
	return resp.ID, nil
}

// StartContainer starts a container. Starting a running container is a no-op.
func (c *Client) StartContainer(ctx context.Context, containerID string) error {
	if err := c.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return errdefs.FromEngine(err)
	}
	return nil
}

// StopContainer stops a container with the given grace period. Stopping a
// stopped container is a no-op.
func (c *Client) StopContainer(ctx context.Context, containerID string, timeout *int) error {
	if err := c.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: timeout}); err != nil {
		return errdefs.FromEngine(err)
	}
	return nil
}

// RestartContainer restarts a container
func (c *Client) RestartContainer(ctx context.Context, containerID string, timeout *int) error {
	if err := c.cli.ContainerRestart(ctx, containerID, container.StopOptions{Timeout: timeout}); err != nil {
		return errdefs.FromEngine(err)
	}
	return nil
}

// PauseContainer pauses all processes in a container
func (c *Client) PauseContainer(ctx context.Context, containerID string) error {
	if err := c.cli.ContainerPause(ctx, containerID); err != nil {
		return errdefs.FromEngine(err)
	}
	return nil
}

// UnpauseContainer resumes a paused container
func (c *Client) UnpauseContainer(ctx context.Context, containerID string) error {
	if err := c.cli.ContainerUnpause(ctx, containerID); err != nil {
		return errdefs.FromEngine(err)
	}
	return nil
}

// RemoveContainer removes a container, optionally forcing a running one
func (c *Client) RemoveContainer(ctx context.Context, containerID string, force bool) error {
	opts := container.RemoveOptions{Force: force, RemoveVolumes: false}
	if err := c.cli.ContainerRemove(ctx, containerID, opts); err != nil {
		return errdefs.FromEngine(err)
	}
	return nil
}

// ContainerLogs opens a raw log stream. The caller owns the reader; for
// TTY-less containers the stream is stdcopy-multiplexed.
func (c *Client) ContainerLogs(ctx context.Context, containerID string, opts types.LogOptions) (io.ReadCloser, bool, error) {
	inspect, err := c.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, false, errdefs.FromEngine(err)
	}
	tty := inspect.Config != nil && inspect.Config.Tty

	logOpts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Timestamps: true,
	}
	if opts.Tail > 0 {
		logOpts.Tail = fmt.Sprintf("%d", opts.Tail)
	}
	if !opts.Since.IsZero() {
		logOpts.Since = opts.Since.Format(time.RFC3339Nano)
	}
	if !opts.Until.IsZero() {
		logOpts.Until = opts.Until.Format(time.RFC3339Nano)
	}

	rc, err := c.cli.ContainerLogs(ctx, containerID, logOpts)
	if err != nil {
		return nil, false, errdefs.FromEngine(err)
	}
	return rc, tty, nil
}

// ServiceLogs opens a raw log stream for a swarm service. Service log
// streams are always stdcopy-multiplexed.
func (c *Client) ServiceLogs(ctx context.Context, serviceID string, opts types.LogOptions) (io.ReadCloser, error) {
	logOpts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Timestamps: true,
	}
	if opts.Tail > 0 {
		logOpts.Tail = fmt.Sprintf("%d", opts.Tail)
	}
	if !opts.Since.IsZero() {
		logOpts.Since = opts.Since.Format(time.RFC3339Nano)
	}

	rc, err := c.cli.ServiceLogs(ctx, serviceID, logOpts)
	if err != nil {
		return nil, errdefs.FromEngine(err)
	}
	return rc, nil
}

// ContainerStats opens a raw stats stream. The body yields one JSON
// document per sample until closed.
func (c *Client) ContainerStats(ctx context.Context, containerID string, stream bool) (io.ReadCloser, error) {
	resp, err := c.cli.ContainerStats(ctx, containerID, stream)
	if err != nil {
		return nil, errdefs.FromEngine(err)
	}
	return resp.Body, nil
}

// Events opens the engine event stream with server-side type filtering
func (c *Client) Events(ctx context.Context, eventTypes []string) (<-chan events.Message, <-chan error) {
	opts := events.ListOptions{}
	if len(eventTypes) > 0 {
		args := filters.NewArgs()
		for _, t := range eventTypes {
			args.Add("type", t)
		}
		opts.Filters = args
	}
	return c.cli.Events(ctx, opts)
}

// ExecCreate creates an exec instance inside a running container
func (c *Client) ExecCreate(ctx context.Context, containerID string, cmd []string, workingDir string, tty bool) (string, error) {
	resp, err := c.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   workingDir,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          tty,
		Env:          []string{"TERM=xterm-256color"},
	})
	if err != nil {
		return "", errdefs.FromEngine(err)
	}
	return resp.ID, nil
}

// ExecAttach attaches to an exec instance and starts it
func (c *Client) ExecAttach(ctx context.Context, execID string, tty bool) (dockertypes.HijackedResponse, error) {
	resp, err := c.cli.ContainerExecAttach(ctx, execID, container.ExecAttachOptions{Tty: tty})
	if err != nil {
		return dockertypes.HijackedResponse{}, errdefs.FromEngine(err)
	}
	return resp, nil
}

// ExecResize resizes the TTY of a running exec instance
func (c *Client) ExecResize(ctx context.Context, execID string, rows, cols uint) error {
	err := c.cli.ContainerExecResize(ctx, execID, container.ResizeOptions{
		Height: rows,
		Width:  cols,
	})
	if err != nil {
		return errdefs.FromEngine(err)
	}
	return nil
}

// ExecInspect reports whether an exec instance is still running and its
// exit code once finished.
func (c *Client) ExecInspect(ctx context.Context, execID string) (running bool, exitCode int, err error) {
	inspect, err := c.cli.ContainerExecInspect(ctx, execID)
	if err != nil {
		return false, 0, errdefs.FromEngine(err)
	}
	return inspect.Running, inspect.ExitCode, nil
}

// ListImages returns the images present on the host
func (c *Client) ListImages(ctx context.Context) ([]types.ImageSummary, error) {
	list, err := c.cli.ImageList(ctx, image.ListOptions{All: false})
	if err != nil {
		return nil, errdefs.FromEngine(err)
	}
	out := make([]types.ImageSummary, 0, len(list))
	for _, img := range list {
		out = append(out, types.ImageSummary{
			ID:      img.ID,
			HostID:  c.hostID,
			Tags:    img.RepoTags,
			Size:    img.Size,
			Created: time.Unix(img.Created, 0).UTC(),
		})
	}
	return out, nil
}

// PullImage pulls an image and blocks until the pull completes
func (c *Client) PullImage(ctx context.Context, ref string) error {
	rc, err := c.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return errdefs.FromEngine(err)
	}
	defer rc.Close()
	// The pull only completes once the progress stream is drained
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return errdefs.FromEngine(err)
	}
	return nil
}

// RemoveImage removes an image by id or reference
func (c *Client) RemoveImage(ctx context.Context, imageID string, force bool) error {
	_, err := c.cli.ImageRemove(ctx, imageID, image.RemoveOptions{Force: force})
	if err != nil {
		return errdefs.FromEngine(err)
	}
	return nil
}

// PruneImages removes dangling images and reports the space reclaimed
func (c *Client) PruneImages(ctx context.Context) (uint64, error) {
	report, err := c.cli.ImagesPrune(ctx, filters.NewArgs())
	if err != nil {
		return 0, errdefs.FromEngine(err)
	}
	return report.SpaceReclaimed, nil
}

// ListVolumes returns the volumes on the host
func (c *Client) ListVolumes(ctx context.Context) ([]types.VolumeSummary, error) {
	resp, err := c.cli.VolumeList(ctx, volume.ListOptions{})
	if err != nil {
		return nil, errdefs.FromEngine(err)
	}
	out := make([]types.VolumeSummary, 0, len(resp.Volumes))
	for _, v := range resp.Volumes {
		out = append(out, types.VolumeSummary{
			Name:       v.Name,
			HostID:     c.hostID,
			Driver:     v.Driver,
			Mountpoint: v.Mountpoint,
			Labels:     v.Labels,
		})
	}
	return out, nil
}

// CreateVolume creates a named volume
func (c *Client) CreateVolume(ctx context.Context, name string, labels map[string]string) (*types.VolumeSummary, error) {
	v, err := c.cli.VolumeCreate(ctx, volume.CreateOptions{Name: name, Labels: labels})
	if err != nil {
		return nil, errdefs.FromEngine(err)
	}
	return &types.VolumeSummary{
		Name:       v.Name,
		HostID:     c.hostID,
		Driver:     v.Driver,
		Mountpoint: v.Mountpoint,
		Labels:     v.Labels,
	}, nil
}

// RemoveVolume removes a volume
func (c *Client) RemoveVolume(ctx context.Context, name string, force bool) error {
	if err := c.cli.VolumeRemove(ctx, name, force); err != nil {
		return errdefs.FromEngine(err)
	}
	return nil
}

// PruneVolumes removes unused anonymous volumes
func (c *Client) PruneVolumes(ctx context.Context) (uint64, error) {
	report, err := c.cli.VolumesPrune(ctx, filters.NewArgs())
	if err != nil {
		return 0, errdefs.FromEngine(err)
	}
	return report.SpaceReclaimed, nil
}

// ListNetworks returns the networks on the host
func (c *Client) ListNetworks(ctx context.Context) ([]types.NetworkSummary, error) {
	list, err := c.cli.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return nil, errdefs.FromEngine(err)
	}
	out := make([]types.NetworkSummary, 0, len(list))
	for _, nw := range list {
		out = append(out, types.NetworkSummary{
			ID:     nw.ID,
			HostID: c.hostID,
			Name:   nw.Name,
			Driver: nw.Driver,
			Scope:  nw.Scope,
		})
	}
	return out, nil
}

// CreateNetwork creates a network with the given driver
func (c *Client) CreateNetwork(ctx context.Context, name, driver string) (string, error) {
	resp, err := c.cli.NetworkCreate(ctx, name, network.CreateOptions{Driver: driver})
	if err != nil {
		return "", errdefs.FromEngine(err)
	}
	return resp.ID, nil
}

// RemoveNetwork removes a network
func (c *Client) RemoveNetwork(ctx context.Context, networkID string) error {
	if err := c.cli.NetworkRemove(ctx, networkID); err != nil {
		return errdefs.FromEngine(err)
	}
	return nil
}

// PruneNetworks removes unused networks and returns their names
func (c *Client) PruneNetworks(ctx context.Context) ([]string, error) {
	report, err := c.cli.NetworksPrune(ctx, filters.NewArgs())
	if err != nil {
		return nil, errdefs.FromEngine(err)
	}
	return report.NetworksDeleted, nil
}

// containerName strips the leading slash the engine puts on names
func containerName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}
