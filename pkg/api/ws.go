package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/dockfleet/dockfleet/pkg/errdefs"
	"github.com/dockfleet/dockfleet/pkg/log"
	"github.com/dockfleet/dockfleet/pkg/types"
)

const (
	wsPingInterval = 30 * time.Second
	wsPongWait     = 90 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The API authenticates with bearer tokens, not cookies, so
	// cross-origin upgrades carry no ambient authority.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsConn serializes writes to one websocket and bounds how long a slow
// reader can block the server. Implements shell.CallerConn.
type wsConn struct {
	conn        *websocket.Conn
	sendTimeout time.Duration

	writeMu sync.Mutex
}

func newWSConn(conn *websocket.Conn, sendTimeout time.Duration) *wsConn {
	if sendTimeout <= 0 {
		sendTimeout = 5 * time.Second
	}
	return &wsConn{conn: conn, sendTimeout: sendTimeout}
}

func (c *wsConn) WriteBinary(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.sendTimeout))
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *wsConn) writeFrame(frame *types.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.sendTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.sendTimeout))
}

func (c *wsConn) ReadFrame() ([]byte, bool, error) {
	mt, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, false, err
	}
	return data, mt == websocket.BinaryMessage, nil
}

// frameSource is the common slice of stream and event subscriptions
type frameSource interface {
	C() <-chan *types.Frame
	Close()
}

// eventFrames adapts an event subscription to the frame protocol
type eventFrames struct {
	c     chan *types.Frame
	close func()
}

func (e *eventFrames) C() <-chan *types.Frame { return e.c }
func (e *eventFrames) Close()                 { e.close() }

// handleContainerLogs streams a container's shared log stream
func (s *Server) handleContainerLogs(w http.ResponseWriter, r *http.Request) {
	sub, err := s.exec.StreamContainerLogs(r.Context(), userFrom(r), hostParam(r), chi.URLParam(r, "id"), logOptions(r))
	if err != nil {
		writeError(w, err)
		return
	}
	s.serveFrames(w, r, sub)
}

// handleServiceLogs streams a swarm service's shared log stream
func (s *Server) handleServiceLogs(w http.ResponseWriter, r *http.Request) {
	sub, err := s.exec.StreamServiceLogs(r.Context(), userFrom(r), hostParam(r), chi.URLParam(r, "id"), logOptions(r))
	if err != nil {
		writeError(w, err)
		return
	}
	s.serveFrames(w, r, sub)
}

// handleContainerStats streams normalized stats samples
func (s *Server) handleContainerStats(w http.ResponseWriter, r *http.Request) {
	sub, err := s.exec.StreamContainerStats(r.Context(), userFrom(r), hostParam(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	s.serveFrames(w, r, sub)
}

// handleEvents streams filtered engine events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sub, err := s.exec.SubscribeEvents(r.Context(), userFrom(r), hostParam(r), eventFilter(r))
	if err != nil {
		writeError(w, err)
		return
	}

	frames := make(chan *types.Frame, 1)
	go func() {
		defer close(frames)
		for ev := range sub.C() {
			frames <- &types.Frame{Type: types.FrameEvent, Timestamp: ev.Timestamp, Payload: ev}
		}
	}()
	s.serveFrames(w, r, &eventFrames{c: frames, close: sub.Close})
}

// serveFrames upgrades the connection and pumps frames until the
// subscription ends or the caller hangs up.
func (s *Server) serveFrames(w http.ResponseWriter, r *http.Request, sub frameSource) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		return
	}
	defer conn.Close()
	defer sub.Close()

	wsc := newWSConn(conn, s.cfg.SendTimeout)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader: detect hangup and answer application-level pings
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer cancel()
		for {
			data, binary, err := wsc.ReadFrame()
			if err != nil {
				return
			}
			if !binary && isPingFrame(data) {
				_ = wsc.writeFrame(&types.Frame{Type: types.FramePong, Timestamp: time.Now().UTC()})
			}
		}
	}()

	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case frame, ok := <-sub.C():
			if !ok {
				return
			}
			if err := wsc.writeFrame(frame); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := wsc.ping(); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// handleExec runs an interactive exec session over the websocket
func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	spec := types.ExecSpec{
		ContainerID: chi.URLParam(r, "id"),
		WorkingDir:  r.URL.Query().Get("workdir"),
	}
	if rows, err := strconv.Atoi(r.URL.Query().Get("rows")); err == nil && rows > 0 {
		spec.TTYRows = uint(rows)
	}
	if cols, err := strconv.Atoi(r.URL.Query().Get("cols")); err == nil && cols > 0 {
		spec.TTYCols = uint(cols)
	}
	if cmd := r.URL.Query().Get("cmd"); cmd != "" {
		spec.Command = []string{"/bin/sh", "-c", cmd}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	wsc := newWSConn(conn, s.cfg.SendTimeout)
	if err := s.exec.Exec(r.Context(), userFrom(r), hostParam(r), spec, wsc); err != nil {
		// The session never started or died mid-flight; tell the caller
		// before closing.
		_ = wsc.writeFrame(&types.Frame{
			Type:      types.FrameError,
			Timestamp: time.Now().UTC(),
			Message:   string(errdefs.KindOf(err)),
		})
		log.WithComponent("api").Debug().Err(err).Msg("exec session error")
	}
}

func isPingFrame(data []byte) bool {
	var frame struct {
		Type types.FrameType `json:"type"`
	}
	return json.Unmarshal(data, &frame) == nil && frame.Type == types.FramePing
}

// logOptions parses follow and tail from the query string. Timestamps
// are always requested upstream, so the parameter is accepted but
// ignored.
func logOptions(r *http.Request) types.LogOptions {
	opts := types.LogOptions{Follow: true}
	if v := r.URL.Query().Get("follow"); v == "false" {
		opts.Follow = false
	}
	if v := r.URL.Query().Get("tail"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Tail = n
		}
	}
	return opts
}

// eventFilter parses the optional event filter from the query string
func eventFilter(r *http.Request) *types.EventFilter {
	q := r.URL.Query()
	filter := &types.EventFilter{
		NameSubstr: q.Get("name"),
	}
	if v := q.Get("type"); v != "" {
		filter.Types = []string{v}
	}
	if v := q.Get("action"); v != "" {
		filter.Actions = []string{v}
	}
	if filter.NameSubstr == "" && len(filter.Types) == 0 && len(filter.Actions) == 0 {
		return nil
	}
	return filter
}
