package executor

import (
	"context"

	"github.com/dockfleet/dockfleet/pkg/engine"
	"github.com/dockfleet/dockfleet/pkg/permission"
	"github.com/dockfleet/dockfleet/pkg/types"
)

// Swarm membership

// SwarmInit initializes a new swarm on the host and returns the node id
func (e *Executor) SwarmInit(ctx context.Context, user *types.User, hostID, advertiseAddr string) (string, error) {
	var nodeID string
	err := e.run(ctx, user, permission.ActionSwarmInit, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		nodeID, err = cli.SwarmInit(ctx, advertiseAddr)
		return err
	})
	return nodeID, err
}

// SwarmJoin joins the host to an existing swarm
func (e *Executor) SwarmJoin(ctx context.Context, user *types.User, hostID, remoteAddr, joinToken string) error {
	return e.run(ctx, user, permission.ActionSwarmJoin, hostID, func(ctx context.Context, cli *engine.Client) error {
		return cli.SwarmJoin(ctx, remoteAddr, joinToken)
	})
}

// SwarmLeave removes the host from its swarm
func (e *Executor) SwarmLeave(ctx context.Context, user *types.User, hostID string, force bool) error {
	return e.run(ctx, user, permission.ActionSwarmLeave, hostID, func(ctx context.Context, cli *engine.Client) error {
		return cli.SwarmLeave(ctx, force)
	})
}

// SwarmJoinTokens returns the worker and manager join tokens
func (e *Executor) SwarmJoinTokens(ctx context.Context, user *types.User, hostID string) (worker, manager string, err error) {
	err = e.run(ctx, user, permission.ActionSwarmUpdate, hostID, func(ctx context.Context, cli *engine.Client) error {
		var ierr error
		worker, manager, ierr = cli.SwarmJoinTokens(ctx)
		return ierr
	})
	return worker, manager, err
}

// Services

func (e *Executor) ListServices(ctx context.Context, user *types.User, hostID string) ([]types.ServiceSummary, error) {
	var out []types.ServiceSummary
	err := e.run(ctx, user, permission.ActionServiceList, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		out, err = cli.ListServices(ctx)
		return err
	})
	return out, err
}

func (e *Executor) GetService(ctx context.Context, user *types.User, hostID, serviceID string) (*types.ServiceSummary, error) {
	var out *types.ServiceSummary
	err := e.run(ctx, user, permission.ActionServiceGet, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		out, err = cli.GetService(ctx, serviceID)
		return err
	})
	return out, err
}

func (e *Executor) CreateService(ctx context.Context, user *types.User, hostID string, spec *types.ServiceSpec) (string, error) {
	var id string
	err := e.run(ctx, user, permission.ActionServiceCreate, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		id, err = cli.CreateService(ctx, spec)
		return err
	})
	return id, err
}

func (e *Executor) UpdateService(ctx context.Context, user *types.User, hostID, serviceID string, spec *types.ServiceSpec) error {
	return e.run(ctx, user, permission.ActionServiceUpdate, hostID, func(ctx context.Context, cli *engine.Client) error {
		return cli.UpdateService(ctx, serviceID, spec)
	})
}

func (e *Executor) ScaleService(ctx context.Context, user *types.User, hostID, serviceID string, replicas uint64) error {
	return e.run(ctx, user, permission.ActionServiceScale, hostID, func(ctx context.Context, cli *engine.Client) error {
		return cli.ScaleService(ctx, serviceID, replicas)
	})
}

func (e *Executor) RemoveService(ctx context.Context, user *types.User, hostID, serviceID string) error {
	return e.run(ctx, user, permission.ActionServiceRemove, hostID, func(ctx context.Context, cli *engine.Client) error {
		return cli.RemoveService(ctx, serviceID)
	})
}

func (e *Executor) ListTasks(ctx context.Context, user *types.User, hostID, serviceID string) ([]types.TaskSummary, error) {
	var out []types.TaskSummary
	err := e.run(ctx, user, permission.ActionServiceTasks, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		out, err = cli.ListTasks(ctx, serviceID)
		return err
	})
	return out, err
}

// Nodes

func (e *Executor) ListNodes(ctx context.Context, user *types.User, hostID string) ([]types.NodeSummary, error) {
	var out []types.NodeSummary
	err := e.run(ctx, user, permission.ActionNodeList, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		out, err = cli.ListNodes(ctx)
		return err
	})
	return out, err
}

func (e *Executor) GetNode(ctx context.Context, user *types.User, hostID, nodeID string) (*types.NodeSummary, error) {
	var out *types.NodeSummary
	err := e.run(ctx, user, permission.ActionNodeGet, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		out, err = cli.GetNode(ctx, nodeID)
		return err
	})
	return out, err
}

// UpdateNodeAvailability sets a node to active, pause, or drain
func (e *Executor) UpdateNodeAvailability(ctx context.Context, user *types.User, hostID, nodeID, availability string) error {
	return e.run(ctx, user, permission.ActionNodeUpdate, hostID, func(ctx context.Context, cli *engine.Client) error {
		return cli.UpdateNodeAvailability(ctx, nodeID, availability)
	})
}

func (e *Executor) RemoveNode(ctx context.Context, user *types.User, hostID, nodeID string, force bool) error {
	return e.run(ctx, user, permission.ActionNodeRemove, hostID, func(ctx context.Context, cli *engine.Client) error {
		return cli.RemoveNode(ctx, nodeID, force)
	})
}

// Secrets and configs

func (e *Executor) ListSecrets(ctx context.Context, user *types.User, hostID string) ([]types.SecretSummary, error) {
	var out []types.SecretSummary
	err := e.run(ctx, user, permission.ActionSecretList, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		out, err = cli.ListSecrets(ctx)
		return err
	})
	return out, err
}

func (e *Executor) CreateSecret(ctx context.Context, user *types.User, hostID, name string, data []byte) (string, error) {
	var id string
	err := e.run(ctx, user, permission.ActionSecretCreate, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		id, err = cli.CreateSecret(ctx, name, data)
		return err
	})
	return id, err
}

func (e *Executor) RemoveSecret(ctx context.Context, user *types.User, hostID, secretID string) error {
	return e.run(ctx, user, permission.ActionSecretRemove, hostID, func(ctx context.Context, cli *engine.Client) error {
		return cli.RemoveSecret(ctx, secretID)
	})
}

func (e *Executor) ListConfigs(ctx context.Context, user *types.User, hostID string) ([]types.ConfigSummary, error) {
	var out []types.ConfigSummary
	err := e.run(ctx, user, permission.ActionConfigList, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		out, err = cli.ListConfigs(ctx)
		return err
	})
	return out, err
}

func (e *Executor) CreateConfig(ctx context.Context, user *types.User, hostID, name string, data []byte) (string, error) {
	var id string
	err := e.run(ctx, user, permission.ActionConfigCreate, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		id, err = cli.CreateConfig(ctx, name, data)
		return err
	})
	return id, err
}

func (e *Executor) RemoveConfig(ctx context.Context, user *types.User, hostID, configID string) error {
	return e.run(ctx, user, permission.ActionConfigRemove, hostID, func(ctx context.Context, cli *engine.Client) error {
		return cli.RemoveConfig(ctx, configID)
	})
}
