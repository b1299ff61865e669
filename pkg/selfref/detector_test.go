package selfref

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/docker/docker/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockfleet/dockfleet/pkg/engine"
)

// inspectJSON builds a minimal container inspect body
func inspectJSON(t *testing.T, id, name, hostname string, labels map[string]string) string {
	t.Helper()
	body := map[string]interface{}{
		"Id":      id,
		"Name":    name,
		"Created": "2026-08-24T10:00:00Z",
		"State":   map[string]interface{}{"Status": "running"},
		"Config": map[string]interface{}{
			"Image":    "nginx:latest",
			"Hostname": hostname,
			"Labels":   labels,
		},
		"HostConfig": map[string]interface{}{
			"RestartPolicy": map[string]interface{}{"Name": "no"},
		},
	}
	data, err := json.Marshal(body)
	require.NoError(t, err)
	return string(data)
}

// fakeInspect serves one container's inspect response. An empty body
// answers 404 for every container.
func fakeInspect(t *testing.T, body string, calls *atomic.Int64) *engine.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/containers/") && strings.HasSuffix(r.URL.Path, "/json") {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			if body == "" {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"message":"No such container"}`))
				return
			}
			_, _ = w.Write([]byte(body))
			return
		}
		w.Header().Set("Api-Version", "1.45")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	cli, err := client.NewClientWithOpts(
		client.WithHost("tcp://" + srv.Listener.Addr().String()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })
	return engine.New("host-1", cli)
}

func TestDetectsByLabel(t *testing.T) {
	var calls atomic.Int64
	cli := fakeInspect(t, inspectJSON(t, "c0ffee", "/some-name", "web-0",
		map[string]string{"io.dockfleet.control-plane": "true"}), &calls)

	d := NewDetector([]string{"io.dockfleet.control-plane"}, nil)
	assert.True(t, d.IsSelf(context.Background(), cli, "c0ffee"))
}

func TestDetectsByName(t *testing.T) {
	var calls atomic.Int64
	cli := fakeInspect(t, inspectJSON(t, "c0ffee", "/dockfleet", "web-0", nil), &calls)

	d := NewDetector(nil, []string{"dockfleet", "dockfleet-server"})
	assert.True(t, d.IsSelf(context.Background(), cli, "c0ffee"))
}

func TestOrdinaryContainerNotSelf(t *testing.T) {
	var calls atomic.Int64
	cli := fakeInspect(t, inspectJSON(t, "c0ffee", "/web", "web-0",
		map[string]string{"app": "web"}), &calls)

	d := NewDetector([]string{"io.dockfleet.control-plane"}, []string{"dockfleet"})
	assert.False(t, d.IsSelf(context.Background(), cli, "c0ffee"))
}

func TestResultMemoized(t *testing.T) {
	var calls atomic.Int64
	cli := fakeInspect(t, inspectJSON(t, "c0ffee", "/dockfleet", "web-0", nil), &calls)

	d := NewDetector(nil, []string{"dockfleet"})
	assert.True(t, d.IsSelf(context.Background(), cli, "c0ffee"))
	assert.True(t, d.IsSelf(context.Background(), cli, "c0ffee"))
	assert.Equal(t, int64(1), calls.Load())
}

func TestInvalidateForcesReinspect(t *testing.T) {
	var calls atomic.Int64
	cli := fakeInspect(t, inspectJSON(t, "c0ffee", "/dockfleet", "web-0", nil), &calls)

	d := NewDetector(nil, []string{"dockfleet"})
	assert.True(t, d.IsSelf(context.Background(), cli, "c0ffee"))

	d.Invalidate("host-1")
	assert.True(t, d.IsSelf(context.Background(), cli, "c0ffee"))
	assert.Equal(t, int64(2), calls.Load())
}

func TestInspectFailureReportsFalse(t *testing.T) {
	var calls atomic.Int64
	cli := fakeInspect(t, "", &calls)

	d := NewDetector([]string{"io.dockfleet.control-plane"}, []string{"dockfleet"})
	assert.False(t, d.IsSelf(context.Background(), cli, "gone"))
}
