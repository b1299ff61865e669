package shell

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	dockertypes "github.com/docker/docker/api/types"
	"golang.org/x/sync/errgroup"

	"github.com/dockfleet/dockfleet/pkg/errdefs"
	"github.com/dockfleet/dockfleet/pkg/log"
	"github.com/dockfleet/dockfleet/pkg/metrics"
	"github.com/dockfleet/dockfleet/pkg/types"
)

// shellProbe is the fixed candidate list tried when no command is given
var shellProbe = []string{"/bin/bash", "/bin/sh", "bash", "sh"}

// Execer is the slice of the engine client a session needs
type Execer interface {
	ExecCreate(ctx context.Context, containerID string, cmd []string, workingDir string, tty bool) (string, error)
	ExecAttach(ctx context.Context, execID string, tty bool) (dockertypes.HijackedResponse, error)
	ExecResize(ctx context.Context, execID string, rows, cols uint) error
}

// CallerConn is the caller's bidirectional frame channel, implemented by
// the API layer's websocket connection. ReadFrame blocks until the next
// frame; binary reports the framing.
type CallerConn interface {
	ReadFrame() (data []byte, binary bool, err error)
	WriteBinary(data []byte) error
}

// controlMessage is the JSON shape of a text frame from the caller
type controlMessage struct {
	Type string `json:"type"`
	Rows uint   `json:"rows"`
	Cols uint   `json:"cols"`
}

// Mediator runs interactive exec sessions
type Mediator struct{}

// NewMediator creates a mediator
func NewMediator() *Mediator {
	return &Mediator{}
}

// Run creates an exec inside the container and proxies between caller
// and engine until either side closes. Blocking; returns after the
// session is fully torn down.
func (m *Mediator) Run(ctx context.Context, execer Execer, hostID string, spec types.ExecSpec, conn CallerConn) error {
	cmd := spec.Command
	if len(cmd) == 0 {
		cmd = probeCommand()
	}

	execID, err := execer.ExecCreate(ctx, spec.ContainerID, cmd, spec.WorkingDir, true)
	if err != nil {
		return err
	}

	hijacked, err := execer.ExecAttach(ctx, execID, true)
	if err != nil {
		return err
	}
	defer hijacked.Close()

	metrics.ExecSessionsActive.Inc()
	defer metrics.ExecSessionsActive.Dec()

	logger := log.WithHostID(hostID)
	logger.Info().
		Str("container_id", shortID(spec.ContainerID)).
		Str("exec_id", execID).
		Msg("exec session started")

	if spec.TTYRows > 0 && spec.TTYCols > 0 {
		if err := execer.ExecResize(ctx, execID, spec.TTYRows, spec.TTYCols); err != nil {
			logger.Debug().Err(err).Msg("initial exec resize failed")
		}
	}

	// A newline after start triggers the shell prompt
	if _, err := hijacked.Conn.Write([]byte("\n")); err != nil {
		return errdefs.Wrap(errdefs.KindStream, "exec socket write failed", err)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, sessionCtx := errgroup.WithContext(sessionCtx)

	// Engine → caller: raw terminal bytes verbatim
	g.Go(func() error {
		defer cancel()
		buf := make([]byte, 4096)
		for {
			n, err := hijacked.Reader.Read(buf)
			if n > 0 {
				if werr := conn.WriteBinary(buf[:n]); werr != nil {
					return errdefs.Wrap(errdefs.KindStream, "caller write failed", werr)
				}
			}
			if err != nil {
				if err == io.EOF || sessionCtx.Err() != nil {
					return nil
				}
				return errdefs.Wrap(errdefs.KindStream, "exec socket read failed", err)
			}
		}
	})

	// Caller → engine: binary verbatim, text parsed as control
	g.Go(func() error {
		defer cancel()
		defer hijacked.CloseWrite()
		for {
			data, binary, err := conn.ReadFrame()
			if err != nil {
				if sessionCtx.Err() != nil {
					return nil
				}
				// Caller hung up; normal session end
				return nil
			}

			if !binary {
				var ctrl controlMessage
				if jsonErr := json.Unmarshal(data, &ctrl); jsonErr == nil && ctrl.Type == "resize" {
					if rerr := execer.ExecResize(sessionCtx, execID, ctrl.Rows, ctrl.Cols); rerr != nil {
						logger.Debug().Err(rerr).Msg("exec resize failed")
					}
					continue
				}
				// Unrecognized text is forwarded as if binary
			}

			if _, err := hijacked.Conn.Write(data); err != nil {
				if sessionCtx.Err() != nil {
					return nil
				}
				return errdefs.Wrap(errdefs.KindStream, "exec socket write failed", err)
			}
		}
	})

	// Unblock both reads when the session context ends
	go func() {
		<-sessionCtx.Done()
		hijacked.Close()
	}()

	err = g.Wait()
	logger.Info().
		Str("exec_id", execID).
		Msg("exec session ended")
	return err
}

// probeCommand builds a single shell invocation that execs the first
// available candidate from the probe list.
func probeCommand() []string {
	var b strings.Builder
	for i, candidate := range shellProbe {
		if i > 0 {
			b.WriteString("el")
		}
		fmt.Fprintf(&b, "if command -v %s >/dev/null 2>&1; then exec %s; ", candidate, candidate)
	}
	b.WriteString("else exec sh; fi")
	return []string{"/bin/sh", "-c", b.String()}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
