package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/dockfleet/dockfleet/pkg/engine"
	"github.com/dockfleet/dockfleet/pkg/errdefs"
	"github.com/dockfleet/dockfleet/pkg/types"
)

// Provider adapts one kind of engine stream into normalized frames.
// Open returns a channel that closes when the upstream ends; a non-nil
// terminal error is reported through the returned errFn.
type Provider interface {
	// SourceType identifies the stream key namespace this provider serves
	SourceType() types.SourceType

	// Metadata returns descriptive fields about the resource, used in
	// the connected frame.
	Metadata(ctx context.Context, cli *engine.Client, resourceID string) (map[string]string, error)

	// Open starts the native stream and returns a frame channel. The
	// channel closes when the upstream ends; Err reports why.
	Open(ctx context.Context, cli *engine.Client, resourceID string, opts types.LogOptions) (Upstream, error)
}

// Upstream is a running native stream normalized into frames
type Upstream interface {
	Frames() <-chan *types.Frame
	// Err returns the terminal error after Frames is closed; nil on a
	// clean EOF.
	Err() error
}

type upstream struct {
	frames chan *types.Frame
	err    error
}

func (u *upstream) Frames() <-chan *types.Frame { return u.frames }
func (u *upstream) Err() error                  { return u.err }

// ContainerLogProvider streams one container's log output
type ContainerLogProvider struct{}

func (ContainerLogProvider) SourceType() types.SourceType { return types.SourceContainer }

func (ContainerLogProvider) Metadata(ctx context.Context, cli *engine.Client, resourceID string) (map[string]string, error) {
	detail, err := cli.InspectContainer(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"container_id":   shortID(detail.ID),
		"container_name": detail.Name,
		"image":          detail.Image,
		"state":          detail.State,
	}, nil
}

func (p ContainerLogProvider) Open(ctx context.Context, cli *engine.Client, resourceID string, opts types.LogOptions) (Upstream, error) {
	rc, tty, err := cli.ContainerLogs(ctx, resourceID, opts)
	if err != nil {
		return nil, err
	}

	u := &upstream{frames: make(chan *types.Frame)}
	go func() {
		defer close(u.frames)
		defer rc.Close()

		reader := rc
		if !tty {
			reader = demux(ctx, rc)
		}
		u.err = scanLines(ctx, reader, types.SourceContainer, resourceID, cli.HostID(), u.frames)
	}()
	return u, nil
}

// ServiceLogProvider streams a swarm service's aggregated log output
type ServiceLogProvider struct{}

func (ServiceLogProvider) SourceType() types.SourceType { return types.SourceService }

func (ServiceLogProvider) Metadata(ctx context.Context, cli *engine.Client, resourceID string) (map[string]string, error) {
	svc, err := cli.GetService(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"service_id":   svc.ID,
		"service_name": svc.Name,
		"image":        svc.Image,
	}, nil
}

func (p ServiceLogProvider) Open(ctx context.Context, cli *engine.Client, resourceID string, opts types.LogOptions) (Upstream, error) {
	rc, err := cli.ServiceLogs(ctx, resourceID, opts)
	if err != nil {
		return nil, err
	}

	u := &upstream{frames: make(chan *types.Frame)}
	go func() {
		defer close(u.frames)
		defer rc.Close()

		// Service log streams are always stdcopy-multiplexed
		reader := demux(ctx, rc)
		u.err = scanLines(ctx, reader, types.SourceService, resourceID, cli.HostID(), u.frames)
	}()
	return u, nil
}

// ContainerStatsProvider streams point-in-time resource samples
type ContainerStatsProvider struct{}

func (ContainerStatsProvider) SourceType() types.SourceType { return types.SourceContainerStats }

func (ContainerStatsProvider) Metadata(ctx context.Context, cli *engine.Client, resourceID string) (map[string]string, error) {
	detail, err := cli.InspectContainer(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"container_id":   shortID(detail.ID),
		"container_name": detail.Name,
	}, nil
}

func (p ContainerStatsProvider) Open(ctx context.Context, cli *engine.Client, resourceID string, opts types.LogOptions) (Upstream, error) {
	body, err := cli.ContainerStats(ctx, resourceID, opts.Follow)
	if err != nil {
		return nil, err
	}

	u := &upstream{frames: make(chan *types.Frame)}
	go func() {
		defer close(u.frames)
		defer body.Close()

		decoder := json.NewDecoder(body)
		for {
			var stat container.StatsResponse
			if err := decoder.Decode(&stat); err != nil {
				if err != io.EOF && ctx.Err() == nil {
					u.err = errdefs.Wrap(errdefs.KindStream, "stats stream failed", err)
				}
				return
			}

			sample := engine.NormalizeStats(cli.HostID(), resourceID, &stat)
			frame := &types.Frame{
				Type:      types.FrameStats,
				Timestamp: sample.Timestamp,
				Payload:   sample,
			}
			select {
			case u.frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return u, nil
}

// scanLines normalizes raw log lines into frames until the reader ends
func scanLines(ctx context.Context, r io.Reader, source types.SourceType, resourceID, hostID string, out chan<- *types.Frame) error {
	scanner := bufio.NewScanner(r)
	// Single log lines can be large; raise the scanner limit
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		entry := NormalizeLine(line, source, resourceID, hostID)
		frame := &types.Frame{
			Type:      types.FrameLog,
			Timestamp: entry.Timestamp,
			Payload:   entry,
		}
		select {
		case out <- frame:
		case <-ctx.Done():
			return nil
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return errdefs.Wrap(errdefs.KindStream, "log stream failed", err)
	}
	return nil
}

// demux strips the 8-byte stdcopy headers from a multiplexed stream,
// merging stdout and stderr into one line-oriented reader.
func demux(ctx context.Context, rc io.ReadCloser) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, rc)
		pw.CloseWithError(err)
	}()
	go func() {
		// Unblock StdCopy when the caller goes away
		<-ctx.Done()
		rc.Close()
	}()
	return pr
}

// heartbeatFrame builds a heartbeat at the given instant
func heartbeatFrame(at time.Time) *types.Frame {
	return &types.Frame{Type: types.FrameHeartbeat, Timestamp: at.UTC()}
}
