package engine

import (
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/swarm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockfleet/dockfleet/pkg/types"
)

func TestContainerSummary(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	summary := containerSummary("host-1", container.Summary{
		ID:      "abc123",
		Names:   []string{"/web"},
		Image:   "nginx:1.27",
		State:   "running",
		Status:  "Up 2 hours",
		Labels:  map[string]string{"app": "web"},
		Created: created.Unix(),
	})

	assert.Equal(t, "abc123", summary.ID)
	assert.Equal(t, "host-1", summary.HostID)
	assert.Equal(t, "web", summary.Name)
	assert.Equal(t, "running", summary.State)
	assert.Equal(t, created, summary.Created)
}

func TestContainerName(t *testing.T) {
	assert.Equal(t, "web", containerName([]string{"/web", "/alias"}))
	assert.Equal(t, "", containerName(nil))
	assert.Equal(t, "plain", containerName([]string{"plain"}))
}

func TestParseEngineTime(t *testing.T) {
	parsed := parseEngineTime("2026-03-14T09:00:00.123456789Z")
	require.False(t, parsed.IsZero())
	assert.Equal(t, 2026, parsed.Year())

	assert.True(t, parseEngineTime("not a time").IsZero())
	assert.True(t, parseEngineTime("0001-01-01T00:00:00Z").IsZero())
}

func TestNormalizeStats(t *testing.T) {
	stat := &container.StatsResponse{}
	stat.Read = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	stat.CPUStats = container.CPUStats{
		CPUUsage:    container.CPUUsage{TotalUsage: 2_000_000},
		SystemUsage: 100_000_000,
		OnlineCPUs:  4,
	}
	stat.PreCPUStats = container.CPUStats{
		CPUUsage:    container.CPUUsage{TotalUsage: 1_000_000},
		SystemUsage: 90_000_000,
	}
	stat.MemoryStats = container.MemoryStats{Usage: 512, Limit: 1024}
	stat.Networks = map[string]container.NetworkStats{
		"eth0": {RxBytes: 100, TxBytes: 200},
		"eth1": {RxBytes: 10, TxBytes: 20},
	}

	sample := NormalizeStats("host-1", "abc123", stat)
	assert.Equal(t, "host-1", sample.HostID)
	assert.Equal(t, "abc123", sample.ContainerID)
	assert.InDelta(t, 40.0, sample.CPUPercent, 0.01)
	assert.InDelta(t, 50.0, sample.MemoryPercent, 0.01)
	assert.Equal(t, uint64(110), sample.NetworkRx)
	assert.Equal(t, uint64(220), sample.NetworkTx)
	assert.Equal(t, stat.Read, sample.Timestamp)
}

func TestNormalizeStatsFirstSample(t *testing.T) {
	// The first document has no previous reading; CPU must not go negative
	sample := NormalizeStats("host-1", "abc123", &container.StatsResponse{})
	assert.Equal(t, 0.0, sample.CPUPercent)
	assert.Equal(t, 0.0, sample.MemoryPercent)
	assert.False(t, sample.Timestamp.IsZero())
}

func TestServiceSummary(t *testing.T) {
	replicas := uint64(3)
	svc := swarm.Service{
		ID: "svc-1",
		Spec: swarm.ServiceSpec{
			Annotations: swarm.Annotations{Name: "api"},
			TaskTemplate: swarm.TaskSpec{
				ContainerSpec: &swarm.ContainerSpec{Image: "api:v2"},
			},
			Mode: swarm.ServiceMode{
				Replicated: &swarm.ReplicatedService{Replicas: &replicas},
			},
		},
	}

	summary := serviceSummary("host-1", svc)
	assert.Equal(t, "api", summary.Name)
	assert.Equal(t, "replicated", summary.Mode)
	assert.Equal(t, uint64(3), summary.Replicas)

	svc.Spec.Mode = swarm.ServiceMode{Global: &swarm.GlobalService{}}
	assert.Equal(t, "global", serviceSummary("host-1", svc).Mode)
}

func TestNodeSummary(t *testing.T) {
	n := swarm.Node{
		ID: "node-1",
		Spec: swarm.NodeSpec{
			Role:         swarm.NodeRoleManager,
			Availability: swarm.NodeAvailabilityActive,
		},
		Description:   swarm.NodeDescription{Hostname: "m1"},
		Status:        swarm.NodeStatus{State: swarm.NodeStateReady},
		ManagerStatus: &swarm.ManagerStatus{Leader: true},
	}

	summary := nodeSummary("host-1", n)
	assert.Equal(t, types.SwarmRoleManager, summary.Role)
	assert.True(t, summary.IsLeader)
	assert.Equal(t, "ready", summary.State)
	assert.Equal(t, "active", summary.Availability)
}
