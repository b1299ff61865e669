package engine

import (
	"time"

	"github.com/docker/docker/api/types/container"

	"github.com/dockfleet/dockfleet/pkg/types"
)

// NormalizeStats converts one raw stats document into a sample. The CPU
// percentage follows the same delta calculation `docker stats` uses.
func NormalizeStats(hostID, containerID string, stat *container.StatsResponse) *types.StatsSample {
	memUsage := stat.MemoryStats.Usage
	memLimit := stat.MemoryStats.Limit
	memPercent := 0.0
	if memLimit > 0 {
		memPercent = float64(memUsage) / float64(memLimit) * 100.0
	}

	var netRx, netTx uint64
	for _, nw := range stat.Networks {
		netRx += nw.RxBytes
		netTx += nw.TxBytes
	}

	ts := stat.Read
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return &types.StatsSample{
		ContainerID:   containerID,
		HostID:        hostID,
		CPUPercent:    cpuPercent(stat),
		MemoryUsage:   memUsage,
		MemoryLimit:   memLimit,
		MemoryPercent: memPercent,
		NetworkRx:     netRx,
		NetworkTx:     netTx,
		Timestamp:     ts.UTC(),
	}
}

func cpuPercent(stat *container.StatsResponse) float64 {
	cpuDelta := float64(stat.CPUStats.CPUUsage.TotalUsage) - float64(stat.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(stat.CPUStats.SystemUsage) - float64(stat.PreCPUStats.SystemUsage)
	if systemDelta <= 0.0 || cpuDelta <= 0.0 {
		return 0.0
	}

	numCPUs := float64(stat.CPUStats.OnlineCPUs)
	if numCPUs == 0 {
		numCPUs = float64(len(stat.CPUStats.CPUUsage.PercpuUsage))
	}
	if numCPUs == 0 {
		numCPUs = 1.0
	}
	return (cpuDelta / systemDelta) * numCPUs * 100.0
}
