package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dockfleet/dockfleet/pkg/breaker"
	"github.com/dockfleet/dockfleet/pkg/config"
	"github.com/dockfleet/dockfleet/pkg/connmgr"
	"github.com/dockfleet/dockfleet/pkg/errdefs"
	"github.com/dockfleet/dockfleet/pkg/events"
	"github.com/dockfleet/dockfleet/pkg/executor"
	"github.com/dockfleet/dockfleet/pkg/permission"
	"github.com/dockfleet/dockfleet/pkg/security"
	"github.com/dockfleet/dockfleet/pkg/selfref"
	"github.com/dockfleet/dockfleet/pkg/shell"
	"github.com/dockfleet/dockfleet/pkg/storage"
	"github.com/dockfleet/dockfleet/pkg/stream"
	"github.com/dockfleet/dockfleet/pkg/transport"
	"github.com/dockfleet/dockfleet/pkg/types"
)

type testServer struct {
	srv   *httptest.Server
	store storage.Store
	api   *Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.EncryptionKey = ""

	key := bytes.Repeat([]byte{0x17}, 32)
	creds, err := security.NewCredentialStore(key, store)
	require.NoError(t, err)

	perms := permission.NewResolver(store, cfg.PermissionCacheTTL)
	conns := connmgr.NewManager(store, creds, transport.NewDialer(), connmgr.Config{
		Breaker: breaker.Config{FailureThreshold: 3},
	})
	t.Cleanup(conns.Shutdown)

	mux := stream.NewMultiplexer(stream.Config{})
	t.Cleanup(mux.Shutdown)
	broadcaster := events.NewBroadcaster(0)
	t.Cleanup(broadcaster.Shutdown)

	exec := executor.New(store, creds, perms, conns, mux, broadcaster,
		selfref.NewDetector(cfg.SelfMonitorLabels, cfg.SelfMonitorNames), shell.NewMediator())

	api := NewServer(cfg, exec, store)
	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, store: store, api: api}
}

func (ts *testServer) addUser(t *testing.T, username, password string, role types.Role) *types.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &types.User{
		ID:           "user-" + username,
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, ts.store.CreateUser(user))
	return user
}

func (ts *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := http.Post(ts.srv.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out loginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Token
}

func (ts *testServer) request(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestLoginAndAuthorizedRequest(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser(t, "alice", "s3cret", types.RoleAdmin)

	token := ts.login(t, "alice", "s3cret")
	require.NotEmpty(t, token)

	resp := ts.request(t, http.MethodGet, "/api/hosts", token, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser(t, "alice", "s3cret", types.RoleAdmin)

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "wrong"})
	resp, err := http.Post(ts.srv.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Unknown usernames answer identically
	body, _ = json.Marshal(map[string]string{"username": "nobody", "password": "wrong"})
	resp2, err := http.Post(ts.srv.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp2.StatusCode)
}

func TestMissingTokenRejected(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodGet, "/api/hosts", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDeletedUserTokenRejected(t *testing.T) {
	ts := newTestServer(t)
	user := ts.addUser(t, "alice", "s3cret", types.RoleAdmin)
	token := ts.login(t, "alice", "s3cret")

	require.NoError(t, ts.store.DeleteUser(user.ID))

	resp := ts.request(t, http.MethodGet, "/api/hosts", token, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHostLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser(t, "root", "pw", types.RoleAdmin)
	token := ts.login(t, "root", "pw")

	// Create
	resp := ts.request(t, http.MethodPost, "/api/hosts", token, map[string]interface{}{
		"name":     "prod-1",
		"kind":     "unix_socket",
		"endpoint": "/var/run/docker.sock",
		"default":  true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var host types.Host
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&host))
	resp.Body.Close()
	require.NotEmpty(t, host.ID)

	// Duplicate name conflicts
	resp = ts.request(t, http.MethodPost, "/api/hosts", token, map[string]interface{}{
		"name": "prod-1", "kind": "unix_socket", "endpoint": "/var/run/docker.sock",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Get
	resp = ts.request(t, http.MethodGet, "/api/hosts/"+host.ID, token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Delete
	resp = ts.request(t, http.MethodDelete, "/api/hosts/"+host.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = ts.request(t, http.MethodGet, "/api/hosts/"+host.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestViewerForbiddenFromMutations(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser(t, "bob", "pw", types.RoleViewer)
	token := ts.login(t, "bob", "pw")

	resp := ts.request(t, http.MethodPost, "/api/hosts", token, map[string]interface{}{
		"name": "x", "kind": "unix_socket", "endpoint": "/var/run/docker.sock",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, errdefs.KindForbidden, body.Kind)
}

func TestOperationWithoutHostsIsNotFound(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser(t, "root", "pw", types.RoleAdmin)
	token := ts.login(t, "root", "pw")

	// No hosts registered and none named: default resolution fails
	resp := ts.request(t, http.MethodGet, "/api/containers", token, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		kind errdefs.Kind
		want int
	}{
		{errdefs.KindForbidden, http.StatusForbidden},
		{errdefs.KindNotFound, http.StatusNotFound},
		{errdefs.KindConflict, http.StatusConflict},
		{errdefs.KindValidation, http.StatusBadRequest},
		{errdefs.KindBreakerOpen, http.StatusServiceUnavailable},
		{errdefs.KindTransport, http.StatusBadGateway},
		{errdefs.KindEngine, http.StatusBadGateway},
		{errdefs.KindCancelled, http.StatusRequestTimeout},
		{errdefs.KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			assert.Equal(t, tc.want, statusFor(errdefs.New(tc.kind, "boom")))
		})
	}
	assert.Equal(t, http.StatusInternalServerError, statusFor(fmt.Errorf("untagged")))
}

func TestHealthEndpointsUnauthenticated(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/healthz", "/livez", "/metrics"} {
		resp, err := http.Get(ts.srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.NotEqual(t, http.StatusForbidden, resp.StatusCode, path)
	}
}

func TestLogOptionsParsing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/containers/c1/logs?tail=200&follow=true", nil)
	opts := logOptions(r)
	assert.True(t, opts.Follow)
	assert.Equal(t, 200, opts.Tail)

	r = httptest.NewRequest(http.MethodGet, "/api/containers/c1/logs?follow=false", nil)
	opts = logOptions(r)
	assert.False(t, opts.Follow)
	assert.Equal(t, 0, opts.Tail)
}

func TestEventFilterParsing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	assert.Nil(t, eventFilter(r))

	q := url.Values{"type": {"container"}, "action": {"die"}, "name": {"web"}}
	r = httptest.NewRequest(http.MethodGet, "/api/events?"+q.Encode(), nil)
	filter := eventFilter(r)
	require.NotNil(t, filter)
	assert.Equal(t, []string{"container"}, filter.Types)
	assert.Equal(t, []string{"die"}, filter.Actions)
	assert.Equal(t, "web", filter.NameSubstr)
}

func TestBearerTokenFromQueryParam(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser(t, "alice", "s3cret", types.RoleAdmin)
	token := ts.login(t, "alice", "s3cret")

	resp, err := http.Get(ts.srv.URL + "/api/hosts?token=" + url.QueryEscape(token))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
