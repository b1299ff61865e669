package engine

import (
	"time"

	"github.com/docker/docker/api/types/container"

	"github.com/dockfleet/dockfleet/pkg/types"
)

func containerSummary(hostID string, ct container.Summary) types.ContainerSummary {
	return types.ContainerSummary{
		ID:      ct.ID,
		HostID:  hostID,
		Name:    containerName(ct.Names),
		Image:   ct.Image,
		State:   ct.State,
		Status:  ct.Status,
		Labels:  ct.Labels,
		Created: time.Unix(ct.Created, 0).UTC(),
	}
}

func containerDetail(hostID string, inspect container.InspectResponse) *types.ContainerDetail {
	detail := &types.ContainerDetail{
		ContainerSummary: types.ContainerSummary{
			ID:      inspect.ID,
			HostID:  hostID,
			Name:    containerName([]string{inspect.Name}),
			Created: parseEngineTime(inspect.Created),
		},
	}

	if inspect.State != nil {
		detail.State = inspect.State.Status
		detail.Status = inspect.State.Status
		detail.StartedAt = parseEngineTime(inspect.State.StartedAt)
		detail.ExitCode = inspect.State.ExitCode
	}
	if inspect.Config != nil {
		detail.Image = inspect.Config.Image
		detail.Labels = inspect.Config.Labels
		detail.Hostname = inspect.Config.Hostname
		detail.Env = inspect.Config.Env
		detail.Cmd = inspect.Config.Cmd
		detail.Tty = inspect.Config.Tty
	}
	if inspect.HostConfig != nil {
		detail.RestartPolicy = string(inspect.HostConfig.RestartPolicy.Name)
	}
	return detail
}

// parseEngineTime parses the RFC3339Nano timestamps the engine reports.
// The engine's zero value ("0001-01-01T00:00:00Z") maps to a zero time.
func parseEngineTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
