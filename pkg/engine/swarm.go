package engine

import (
	"context"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/swarm"

	"github.com/dockfleet/dockfleet/pkg/errdefs"
	"github.com/dockfleet/dockfleet/pkg/types"
)

// SwarmStatus is the observed swarm membership of a host
type SwarmStatus struct {
	Role      types.SwarmRole
	ClusterID string
	NodeID    string
	IsLeader  bool
}

// SwarmInit initializes a new swarm with this host as the first manager
// and returns the node id.
func (c *Client) SwarmInit(ctx context.Context, advertiseAddr string) (string, error) {
	nodeID, err := c.cli.SwarmInit(ctx, swarm.InitRequest{
		ListenAddr:    "0.0.0.0:2377",
		AdvertiseAddr: advertiseAddr,
	})
	if err != nil {
		return "", errdefs.FromEngine(err)
	}
	return nodeID, nil
}

// SwarmJoin joins this host to an existing swarm
func (c *Client) SwarmJoin(ctx context.Context, remoteAddr, joinToken string) error {
	err := c.cli.SwarmJoin(ctx, swarm.JoinRequest{
		ListenAddr:  "0.0.0.0:2377",
		RemoteAddrs: []string{remoteAddr},
		JoinToken:   joinToken,
	})
	if err != nil {
		return errdefs.FromEngine(err)
	}
	return nil
}

// SwarmLeave removes this host from its swarm
func (c *Client) SwarmLeave(ctx context.Context, force bool) error {
	if err := c.cli.SwarmLeave(ctx, force); err != nil {
		return errdefs.FromEngine(err)
	}
	return nil
}

// SwarmJoinTokens returns the current worker and manager join tokens
func (c *Client) SwarmJoinTokens(ctx context.Context) (worker, manager string, err error) {
	sw, err := c.cli.SwarmInspect(ctx)
	if err != nil {
		return "", "", errdefs.FromEngine(err)
	}
	return sw.JoinTokens.Worker, sw.JoinTokens.Manager, nil
}

// SwarmStatus reports the swarm membership observed from system info.
// Leadership is resolved through the node list and is only available on
// managers; on workers IsLeader is always false.
func (c *Client) SwarmStatus(ctx context.Context) (*SwarmStatus, error) {
	info, err := c.cli.Info(ctx)
	if err != nil {
		return nil, errdefs.FromEngine(err)
	}

	status := &SwarmStatus{Role: types.SwarmRoleStandalone}
	if info.Swarm.LocalNodeState != swarm.LocalNodeStateActive {
		return status, nil
	}

	status.NodeID = info.Swarm.NodeID
	if info.Swarm.Cluster != nil {
		status.ClusterID = info.Swarm.Cluster.ID
	}
	if !info.Swarm.ControlAvailable {
		status.Role = types.SwarmRoleWorker
		return status, nil
	}

	status.Role = types.SwarmRoleManager
	nodes, err := c.cli.NodeList(ctx, dockertypes.NodeListOptions{})
	if err != nil {
		// Membership is still known; leadership stays unknown
		return status, nil
	}
	for _, n := range nodes {
		if n.ID == status.NodeID && n.ManagerStatus != nil {
			status.IsLeader = n.ManagerStatus.Leader
		}
	}
	return status, nil
}

// ListServices returns the services of the swarm this host manages
func (c *Client) ListServices(ctx context.Context) ([]types.ServiceSummary, error) {
	services, err := c.cli.ServiceList(ctx, dockertypes.ServiceListOptions{})
	if err != nil {
		return nil, errdefs.FromEngine(err)
	}
	out := make([]types.ServiceSummary, 0, len(services))
	for _, svc := range services {
		out = append(out, serviceSummary(c.hostID, svc))
	}
	return out, nil
}

// GetService returns one service by id or name
func (c *Client) GetService(ctx context.Context, serviceID string) (*types.ServiceSummary, error) {
	svc, _, err := c.cli.ServiceInspectWithRaw(ctx, serviceID, dockertypes.ServiceInspectOptions{})
	if err != nil {
		return nil, errdefs.FromEngine(err)
	}
	summary := serviceSummary(c.hostID, svc)
	return &summary, nil
}

// CreateService creates a replicated service from the given spec
func (c *Client) CreateService(ctx context.Context, spec *types.ServiceSpec) (string, error) {
	if spec.Image == "" {
		return "", errdefs.New(errdefs.KindValidation, "service spec requires an image")
	}
	replicas := spec.Replicas
	if replicas == 0 {
		replicas = 1
	}

	resp, err := c.cli.ServiceCreate(ctx, serviceSpec(spec, replicas), dockertypes.ServiceCreateOptions{})
	if err != nil {
		return "", errdefs.FromEngine(err)
	}
	return resp.ID, nil
}

// UpdateService replaces a service's spec at its current version
func (c *Client) UpdateService(ctx context.Context, serviceID string, spec *types.ServiceSpec) error {
	current, _, err := c.cli.ServiceInspectWithRaw(ctx, serviceID, dockertypes.ServiceInspectOptions{})
	if err != nil {
		return errdefs.FromEngine(err)
	}

	replicas := spec.Replicas
	if replicas == 0 && current.Spec.Mode.Replicated != nil && current.Spec.Mode.Replicated.Replicas != nil {
		replicas = *current.Spec.Mode.Replicated.Replicas
	}

	_, err = c.cli.ServiceUpdate(ctx, current.ID, current.Version, serviceSpec(spec, replicas), dockertypes.ServiceUpdateOptions{})
	if err != nil {
		return errdefs.FromEngine(err)
	}
	return nil
}

// ScaleService sets the replica count of a replicated service
func (c *Client) ScaleService(ctx context.Context, serviceID string, replicas uint64) error {
	current, _, err := c.cli.ServiceInspectWithRaw(ctx, serviceID, dockertypes.ServiceInspectOptions{})
	if err != nil {
		return errdefs.FromEngine(err)
	}
	if current.Spec.Mode.Replicated == nil {
		return errdefs.Newf(errdefs.KindValidation, "service %s is not replicated", serviceID)
	}

	spec := current.Spec
	spec.Mode.Replicated.Replicas = &replicas
	_, err = c.cli.ServiceUpdate(ctx, current.ID, current.Version, spec, dockertypes.ServiceUpdateOptions{})
	if err != nil {
		return errdefs.FromEngine(err)
	}
	return nil
}

// RemoveService removes a service
func (c *Client) RemoveService(ctx context.Context, serviceID string) error {
	if err := c.cli.ServiceRemove(ctx, serviceID); err != nil {
		return errdefs.FromEngine(err)
	}
	return nil
}

// ListTasks returns the tasks of one service
func (c *Client) ListTasks(ctx context.Context, serviceID string) ([]types.TaskSummary, error) {
	args := filters.NewArgs()
	args.Add("service", serviceID)
	tasks, err := c.cli.TaskList(ctx, dockertypes.TaskListOptions{Filters: args})
	if err != nil {
		return nil, errdefs.FromEngine(err)
	}
	out := make([]types.TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, types.TaskSummary{
			ID:           t.ID,
			HostID:       c.hostID,
			ServiceID:    t.ServiceID,
			NodeID:       t.NodeID,
			State:        string(t.Status.State),
			DesiredState: string(t.DesiredState),
			Message:      t.Status.Message,
			Timestamp:    t.Status.Timestamp.UTC(),
		})
	}
	return out, nil
}

// ListNodes returns the nodes of the swarm this host manages
func (c *Client) ListNodes(ctx context.Context) ([]types.NodeSummary, error) {
	nodes, err := c.cli.NodeList(ctx, dockertypes.NodeListOptions{})
	if err != nil {
		return nil, errdefs.FromEngine(err)
	}
	out := make([]types.NodeSummary, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, nodeSummary(c.hostID, n))
	}
	return out, nil
}

// GetNode returns one swarm node
func (c *Client) GetNode(ctx context.Context, nodeID string) (*types.NodeSummary, error) {
	n, _, err := c.cli.NodeInspectWithRaw(ctx, nodeID)
	if err != nil {
		return nil, errdefs.FromEngine(err)
	}
	summary := nodeSummary(c.hostID, n)
	return &summary, nil
}

// UpdateNodeAvailability sets a node's availability (active, pause, drain)
func (c *Client) UpdateNodeAvailability(ctx context.Context, nodeID, availability string) error {
	n, _, err := c.cli.NodeInspectWithRaw(ctx, nodeID)
	if err != nil {
		return errdefs.FromEngine(err)
	}

	switch availability {
	case "active", "pause", "drain":
	default:
		return errdefs.Newf(errdefs.KindValidation, "invalid availability %q", availability)
	}

	spec := n.Spec
	spec.Availability = swarm.NodeAvailability(availability)
	if err := c.cli.NodeUpdate(ctx, n.ID, n.Version, spec); err != nil {
		return errdefs.FromEngine(err)
	}
	return nil
}

// RemoveNode removes a node from the swarm
func (c *Client) RemoveNode(ctx context.Context, nodeID string, force bool) error {
	if err := c.cli.NodeRemove(ctx, nodeID, dockertypes.NodeRemoveOptions{Force: force}); err != nil {
		return errdefs.FromEngine(err)
	}
	return nil
}

// ListSecrets returns the swarm secrets. Secret payloads are never
// readable through the engine API.
func (c *Client) ListSecrets(ctx context.Context) ([]types.SecretSummary, error) {
	secrets, err := c.cli.SecretList(ctx, dockertypes.SecretListOptions{})
	if err != nil {
		return nil, errdefs.FromEngine(err)
	}
	out := make([]types.SecretSummary, 0, len(secrets))
	for _, s := range secrets {
		out = append(out, types.SecretSummary{
			ID:        s.ID,
			HostID:    c.hostID,
			Name:      s.Spec.Name,
			CreatedAt: s.CreatedAt.UTC(),
		})
	}
	return out, nil
}

// CreateSecret creates a swarm secret
func (c *Client) CreateSecret(ctx context.Context, name string, data []byte) (string, error) {
	resp, err := c.cli.SecretCreate(ctx, swarm.SecretSpec{
		Annotations: swarm.Annotations{Name: name},
		Data:        data,
	})
	if err != nil {
		return "", errdefs.FromEngine(err)
	}
	return resp.ID, nil
}

// RemoveSecret removes a swarm secret
func (c *Client) RemoveSecret(ctx context.Context, secretID string) error {
	if err := c.cli.SecretRemove(ctx, secretID); err != nil {
		return errdefs.FromEngine(err)
	}
	return nil
}

// ListConfigs returns the swarm configs
func (c *Client) ListConfigs(ctx context.Context) ([]types.ConfigSummary, error) {
	configs, err := c.cli.ConfigList(ctx, dockertypes.ConfigListOptions{})
	if err != nil {
		return nil, errdefs.FromEngine(err)
	}
	out := make([]types.ConfigSummary, 0, len(configs))
	for _, cf := range configs {
		out = append(out, types.ConfigSummary{
			ID:        cf.ID,
			HostID:    c.hostID,
			Name:      cf.Spec.Name,
			CreatedAt: cf.CreatedAt.UTC(),
		})
	}
	return out, nil
}

// CreateConfig creates a swarm config
func (c *Client) CreateConfig(ctx context.Context, name string, data []byte) (string, error) {
	resp, err := c.cli.ConfigCreate(ctx, swarm.ConfigSpec{
		Annotations: swarm.Annotations{Name: name},
		Data:        data,
	})
	if err != nil {
		return "", errdefs.FromEngine(err)
	}
	return resp.ID, nil
}

// RemoveConfig removes a swarm config
func (c *Client) RemoveConfig(ctx context.Context, configID string) error {
	if err := c.cli.ConfigRemove(ctx, configID); err != nil {
		return errdefs.FromEngine(err)
	}
	return nil
}

func serviceSummary(hostID string, svc swarm.Service) types.ServiceSummary {
	summary := types.ServiceSummary{
		ID:     svc.ID,
		HostID: hostID,
		Name:   svc.Spec.Name,
	}
	if svc.Spec.TaskTemplate.ContainerSpec != nil {
		summary.Image = svc.Spec.TaskTemplate.ContainerSpec.Image
	}
	switch {
	case svc.Spec.Mode.Replicated != nil:
		summary.Mode = "replicated"
		if svc.Spec.Mode.Replicated.Replicas != nil {
			summary.Replicas = *svc.Spec.Mode.Replicated.Replicas
		}
	case svc.Spec.Mode.Global != nil:
		summary.Mode = "global"
	}
	return summary
}

func serviceSpec(spec *types.ServiceSpec, replicas uint64) swarm.ServiceSpec {
	return swarm.ServiceSpec{
		Annotations: swarm.Annotations{
			Name:   spec.Name,
			Labels: spec.Labels,
		},
		TaskTemplate: swarm.TaskSpec{
			ContainerSpec: &swarm.ContainerSpec{
				Image: spec.Image,
				Env:   spec.Env,
			},
		},
		Mode: swarm.ServiceMode{
			Replicated: &swarm.ReplicatedService{Replicas: &replicas},
		},
	}
}

func nodeSummary(hostID string, n swarm.Node) types.NodeSummary {
	summary := types.NodeSummary{
		ID:           n.ID,
		HostID:       hostID,
		Hostname:     n.Description.Hostname,
		Availability: string(n.Spec.Availability),
		State:        string(n.Status.State),
	}
	switch n.Spec.Role {
	case swarm.NodeRoleManager:
		summary.Role = types.SwarmRoleManager
	default:
		summary.Role = types.SwarmRoleWorker
	}
	if n.ManagerStatus != nil {
		summary.IsLeader = n.ManagerStatus.Leader
	}
	return summary
}
