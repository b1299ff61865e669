package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockfleet/dockfleet/pkg/types"
)

// fakeExecer hands out one side of a pipe as the exec socket and
// records resize calls interleaved with the bytes the engine receives.
type fakeExecer struct {
	mu     sync.Mutex
	events []string

	createdCmd []string
	engineSide net.Conn
	callerSide net.Conn
}

func newFakeExecer() *fakeExecer {
	engineSide, callerSide := net.Pipe()
	return &fakeExecer{engineSide: engineSide, callerSide: callerSide}
}

func (f *fakeExecer) record(event string) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

func (f *fakeExecer) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeExecer) ExecCreate(ctx context.Context, containerID string, cmd []string, workingDir string, tty bool) (string, error) {
	f.createdCmd = cmd
	return "exec-1", nil
}

func (f *fakeExecer) ExecAttach(ctx context.Context, execID string, tty bool) (dockertypes.HijackedResponse, error) {
	return dockertypes.HijackedResponse{
		Conn:   f.callerSide,
		Reader: bufio.NewReader(f.callerSide),
	}, nil
}

func (f *fakeExecer) ExecResize(ctx context.Context, execID string, rows, cols uint) error {
	f.record(fmt.Sprintf("resize %dx%d", rows, cols))
	return nil
}

// readEngine drains the engine side of the pipe, recording each chunk
func (f *fakeExecer) readEngine() {
	buf := make([]byte, 4096)
	for {
		n, err := f.engineSide.Read(buf)
		if n > 0 {
			f.record("data " + string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// scriptedConn replays caller frames, then reports EOF
type scriptedConn struct {
	frames []scriptedFrame
	idx    int

	mu       sync.Mutex
	received [][]byte
}

type scriptedFrame struct {
	data   []byte
	binary bool
}

func (c *scriptedConn) ReadFrame() ([]byte, bool, error) {
	if c.idx >= len(c.frames) {
		// Give in-flight engine output a moment, then hang up
		time.Sleep(50 * time.Millisecond)
		return nil, false, io.EOF
	}
	frame := c.frames[c.idx]
	c.idx++
	return frame.data, frame.binary, nil
}

func (c *scriptedConn) WriteBinary(data []byte) error {
	c.mu.Lock()
	c.received = append(c.received, append([]byte(nil), data...))
	c.mu.Unlock()
	return nil
}

func TestSessionForwardsBytesAndResize(t *testing.T) {
	execer := newFakeExecer()
	go execer.readEngine()

	conn := &scriptedConn{frames: []scriptedFrame{
		{data: []byte("ls\n"), binary: true},
		{data: []byte(`{"type":"resize","rows":40,"cols":132}`), binary: false},
		{data: []byte("echo hi\n"), binary: true},
	}}

	m := NewMediator()
	err := m.Run(context.Background(), execer, "host-1", types.ExecSpec{ContainerID: "c1"}, conn)
	require.NoError(t, err)

	events := execer.recorded()
	require.Equal(t, []string{
		"data \n", // prompt trigger injected after start
		"data ls\n",
		"resize 40x132",
		"data echo hi\n",
	}, events)
}

func TestSessionAutoDetectsShell(t *testing.T) {
	execer := newFakeExecer()
	go execer.readEngine()

	conn := &scriptedConn{}
	m := NewMediator()
	err := m.Run(context.Background(), execer, "host-1", types.ExecSpec{ContainerID: "c1"}, conn)
	require.NoError(t, err)

	require.Len(t, execer.createdCmd, 3)
	assert.Equal(t, "/bin/sh", execer.createdCmd[0])
	assert.Equal(t, "-c", execer.createdCmd[1])
	for _, candidate := range shellProbe {
		assert.Contains(t, execer.createdCmd[2], candidate)
	}
}

func TestSessionExplicitCommand(t *testing.T) {
	execer := newFakeExecer()
	go execer.readEngine()

	conn := &scriptedConn{}
	m := NewMediator()
	err := m.Run(context.Background(), execer, "host-1", types.ExecSpec{
		ContainerID: "c1",
		Command:     []string{"/usr/bin/top"},
		WorkingDir:  "/tmp",
	}, conn)
	require.NoError(t, err)

	assert.Equal(t, []string{"/usr/bin/top"}, execer.createdCmd)
}

func TestSessionUnrecognizedTextForwarded(t *testing.T) {
	execer := newFakeExecer()
	go execer.readEngine()

	conn := &scriptedConn{frames: []scriptedFrame{
		{data: []byte("not json at all"), binary: false},
	}}

	m := NewMediator()
	err := m.Run(context.Background(), execer, "host-1", types.ExecSpec{ContainerID: "c1"}, conn)
	require.NoError(t, err)

	events := execer.recorded()
	require.Len(t, events, 2)
	assert.Equal(t, "data not json at all", events[1])
}

func TestSessionEngineOutputReachesCaller(t *testing.T) {
	execer := newFakeExecer()

	// The engine emits a prompt once it sees the injected newline
	go func() {
		buf := make([]byte, 16)
		if _, err := execer.engineSide.Read(buf); err != nil {
			return
		}
		execer.engineSide.Write([]byte("$ "))
		io.Copy(io.Discard, execer.engineSide)
	}()

	conn := &scriptedConn{}
	m := NewMediator()
	err := m.Run(context.Background(), execer, "host-1", types.ExecSpec{ContainerID: "c1"}, conn)
	require.NoError(t, err)

	conn.mu.Lock()
	defer conn.mu.Unlock()
	require.NotEmpty(t, conn.received)
	assert.Equal(t, "$ ", string(conn.received[0]))
}
