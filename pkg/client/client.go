// Package client is the Go client for the Dockfleet API, used by the
// CLI. REST calls return the same normalized records the server emits;
// streaming endpoints deliver decoded frames over a callback.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dockfleet/dockfleet/pkg/errdefs"
	"github.com/dockfleet/dockfleet/pkg/types"
)

// Client talks to one Dockfleet server
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client. token may be empty for Login.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// SetToken replaces the bearer token after a login
func (c *Client) SetToken(token string) {
	c.token = token
}

// apiError mirrors the server's error body
type apiError struct {
	Error string       `json:"error"`
	Kind  errdefs.Kind `json:"kind"`
}

// do runs one REST call. query may be nil; in/out may be nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errdefs.Wrap(errdefs.KindTransport, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Kind != "" {
			return errdefs.New(apiErr.Kind, apiErr.Error)
		}
		return errdefs.Newf(errdefs.KindInternal, "unexpected status %d", resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func hostQuery(host string) url.Values {
	q := url.Values{}
	if host != "" {
		q.Set("host", host)
	}
	return q
}

// Login exchanges credentials for a bearer token and installs it
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/api/auth/login", nil,
		map[string]string{"username": username, "password": password}, &out)
	if err != nil {
		return "", err
	}
	c.token = out.Token
	return out.Token, nil
}

// Hosts

type HostRequest struct {
	Name        string                          `json:"name,omitempty"`
	Kind        types.ConnectionKind            `json:"kind,omitempty"`
	Endpoint    string                          `json:"endpoint,omitempty"`
	Default     bool                            `json:"default,omitempty"`
	Credentials map[types.CredentialKind][]byte `json:"credentials,omitempty"`
}

func (c *Client) ListHosts(ctx context.Context) ([]*types.Host, error) {
	var out []*types.Host
	err := c.do(ctx, http.MethodGet, "/api/hosts", nil, nil, &out)
	return out, err
}

func (c *Client) GetHost(ctx context.Context, hostID string) (*types.Host, error) {
	var out types.Host
	err := c.do(ctx, http.MethodGet, "/api/hosts/"+hostID, nil, nil, &out)
	return &out, err
}

func (c *Client) CreateHost(ctx context.Context, req *HostRequest) (*types.Host, error) {
	var out types.Host
	err := c.do(ctx, http.MethodPost, "/api/hosts", nil, req, &out)
	return &out, err
}

func (c *Client) DeleteHost(ctx context.Context, hostID string) error {
	return c.do(ctx, http.MethodDelete, "/api/hosts/"+hostID, nil, nil, nil)
}

// TestHost dials the host and returns its engine version
func (c *Client) TestHost(ctx context.Context, hostID string) (string, error) {
	var out struct {
		EngineVersion string `json:"engine_version"`
	}
	err := c.do(ctx, http.MethodPost, "/api/hosts/"+hostID+"/test", nil, nil, &out)
	return out.EngineVersion, err
}

func (c *Client) BreakerSnapshot(ctx context.Context, hostID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.do(ctx, http.MethodGet, "/api/hosts/"+hostID+"/breaker", nil, nil, &out)
	return out, err
}

func (c *Client) ResetBreaker(ctx context.Context, hostID string) error {
	return c.do(ctx, http.MethodPost, "/api/hosts/"+hostID+"/breaker/reset", nil, nil, nil)
}

// Grants

func (c *Client) PutGrant(ctx context.Context, grant *types.Grant) error {
	return c.do(ctx, http.MethodPut, "/api/grants", nil, grant, nil)
}

func (c *Client) DeleteGrant(ctx context.Context, userID, hostID string) error {
	return c.do(ctx, http.MethodDelete, "/api/grants/"+userID+"/"+hostID, nil, nil, nil)
}

// Containers

func (c *Client) ListContainers(ctx context.Context, host string, all bool) ([]types.ContainerSummary, error) {
	q := hostQuery(host)
	if all {
		q.Set("all", "true")
	}
	var out []types.ContainerSummary
	err := c.do(ctx, http.MethodGet, "/api/containers", q, nil, &out)
	return out, err
}

func (c *Client) InspectContainer(ctx context.Context, host, containerID string) (*types.ContainerDetail, error) {
	var out types.ContainerDetail
	err := c.do(ctx, http.MethodGet, "/api/containers/"+containerID, hostQuery(host), nil, &out)
	return &out, err
}

func (c *Client) StartContainer(ctx context.Context, host, containerID string) error {
	return c.do(ctx, http.MethodPost, "/api/containers/"+containerID+"/start", hostQuery(host), nil, nil)
}

func (c *Client) StopContainer(ctx context.Context, host, containerID string, timeout *int) error {
	q := hostQuery(host)
	if timeout != nil {
		q.Set("timeout", strconv.Itoa(*timeout))
	}
	return c.do(ctx, http.MethodPost, "/api/containers/"+containerID+"/stop", q, nil, nil)
}

func (c *Client) RestartContainer(ctx context.Context, host, containerID string) error {
	return c.do(ctx, http.MethodPost, "/api/containers/"+containerID+"/restart", hostQuery(host), nil, nil)
}

func (c *Client) RemoveContainer(ctx context.Context, host, containerID string, force bool) error {
	q := hostQuery(host)
	if force {
		q.Set("force", "true")
	}
	return c.do(ctx, http.MethodDelete, "/api/containers/"+containerID, q, nil, nil)
}

// Images

func (c *Client) ListImages(ctx context.Context, host string) ([]types.ImageSummary, error) {
	var out []types.ImageSummary
	err := c.do(ctx, http.MethodGet, "/api/images", hostQuery(host), nil, &out)
	return out, err
}

func (c *Client) PullImage(ctx context.Context, host, ref string) error {
	return c.do(ctx, http.MethodPost, "/api/images/pull", hostQuery(host), map[string]string{"ref": ref}, nil)
}

// System

func (c *Client) SystemInfo(ctx context.Context, host string) (*types.SystemInfo, error) {
	var out types.SystemInfo
	err := c.do(ctx, http.MethodGet, "/api/system/info", hostQuery(host), nil, &out)
	return &out, err
}

// Streaming

// StreamLogs follows a container's log stream, invoking fn per frame
// until the stream ends or ctx is cancelled.
func (c *Client) StreamLogs(ctx context.Context, host, containerID string, tail int, fn func(*types.Frame) error) error {
	q := hostQuery(host)
	if tail > 0 {
		q.Set("tail", strconv.Itoa(tail))
	}
	return c.streamFrames(ctx, "/api/containers/"+containerID+"/logs", q, fn)
}

// StreamStats follows a container's stats stream
func (c *Client) StreamStats(ctx context.Context, host, containerID string, fn func(*types.Frame) error) error {
	return c.streamFrames(ctx, "/api/containers/"+containerID+"/stats", hostQuery(host), fn)
}

// StreamEvents follows a host's engine events
func (c *Client) StreamEvents(ctx context.Context, host string, fn func(*types.Frame) error) error {
	return c.streamFrames(ctx, "/api/events", hostQuery(host), fn)
}

func (c *Client) streamFrames(ctx context.Context, path string, query url.Values, fn func(*types.Frame) error) error {
	query.Set("token", c.token)
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + path + "?" + query.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			var apiErr apiError
			if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Kind != "" {
				resp.Body.Close()
				return errdefs.New(apiErr.Kind, apiErr.Error)
			}
			resp.Body.Close()
		}
		return errdefs.Wrap(errdefs.KindTransport, "websocket dial failed", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errdefs.Wrap(errdefs.KindStream, "stream read failed", err)
		}

		var frame types.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		switch frame.Type {
		case types.FrameStreamEnd:
			return nil
		case types.FrameError:
			return errdefs.Newf(errdefs.KindStream, "stream failed: %s", frame.Message)
		case types.FrameHeartbeat, types.FramePong:
			continue
		}
		if err := fn(&frame); err != nil {
			return err
		}
	}
}

// FormatFrame renders a frame for terminal output
func FormatFrame(frame *types.Frame) string {
	switch frame.Type {
	case types.FrameLog:
		data, _ := json.Marshal(frame.Payload)
		var entry types.LogEntry
		if json.Unmarshal(data, &entry) == nil && entry.Message != "" {
			return fmt.Sprintf("%s [%s] %s",
				entry.Timestamp.Format(time.RFC3339), entry.Level, entry.Message)
		}
	case types.FrameStats, types.FrameEvent:
		data, _ := json.Marshal(frame.Payload)
		return string(data)
	}
	return ""
}
