package permission

import (
	"github.com/dockfleet/dockfleet/pkg/types"
)

// Action names one operation a caller can perform against a host. The
// fixed action → minimum-level table below is the whole authorization
// vocabulary; anything absent from the table is denied.
type Action string

const (
	// Read operations
	ActionContainerList    Action = "container.list"
	ActionContainerInspect Action = "container.inspect"
	ActionContainerLogs    Action = "container.logs"
	ActionContainerStats   Action = "container.stats"
	ActionImageList        Action = "image.list"
	ActionVolumeList       Action = "volume.list"
	ActionNetworkList      Action = "network.list"
	ActionServiceList      Action = "service.list"
	ActionServiceGet       Action = "service.get"
	ActionServiceLogs      Action = "service.logs"
	ActionServiceTasks     Action = "service.tasks"
	ActionNodeList         Action = "node.list"
	ActionNodeGet          Action = "node.get"
	ActionSecretList       Action = "secret.list"
	ActionConfigList       Action = "config.list"
	ActionSystemInfo       Action = "system.info"
	ActionSystemVersion    Action = "system.version"
	ActionSystemDiskUsage  Action = "system.disk_usage"
	ActionSystemEvents     Action = "system.events"
	ActionHostGet          Action = "host.get"
	ActionHostList         Action = "host.list"
	ActionBreakerInspect   Action = "breaker.inspect"

	// Lifecycle mutations
	ActionContainerCreate  Action = "container.create"
	ActionContainerStart   Action = "container.start"
	ActionContainerStop    Action = "container.stop"
	ActionContainerRestart Action = "container.restart"
	ActionContainerRemove  Action = "container.remove"
	ActionContainerExec    Action = "container.exec"
	ActionImagePull        Action = "image.pull"
	ActionImageRemove      Action = "image.remove"
	ActionVolumeCreate     Action = "volume.create"
	ActionVolumeRemove     Action = "volume.remove"
	ActionNetworkCreate    Action = "network.create"
	ActionNetworkRemove    Action = "network.remove"
	ActionServiceCreate    Action = "service.create"
	ActionServiceUpdate    Action = "service.update"
	ActionServiceScale     Action = "service.scale"
	ActionServiceRemove    Action = "service.remove"
	ActionSecretCreate     Action = "secret.create"
	ActionSecretRemove     Action = "secret.remove"
	ActionConfigCreate     Action = "config.create"
	ActionConfigRemove     Action = "config.remove"

	// Administrative
	ActionHostCreate     Action = "host.create"
	ActionHostUpdate     Action = "host.update"
	ActionHostDelete     Action = "host.delete"
	ActionHostTest       Action = "host.test"
	ActionGrantWrite     Action = "grant.write"
	ActionSwarmInit      Action = "swarm.init"
	ActionSwarmJoin      Action = "swarm.join"
	ActionSwarmLeave     Action = "swarm.leave"
	ActionSwarmUpdate    Action = "swarm.update"
	ActionNodeUpdate     Action = "node.update"
	ActionNodeRemove     Action = "node.remove"
	ActionImagePrune     Action = "image.prune"
	ActionVolumePrune    Action = "volume.prune"
	ActionNetworkPrune   Action = "network.prune"
	ActionSystemPrune    Action = "system.prune"
	ActionBreakerReset   Action = "breaker.reset"
)

// minLevel maps every action to the minimum role that may perform it
var minLevel = map[Action]types.Role{
	ActionContainerList:    types.RoleViewer,
	ActionContainerInspect: types.RoleViewer,
	ActionContainerLogs:    types.RoleViewer,
	ActionContainerStats:   types.RoleViewer,
	ActionImageList:        types.RoleViewer,
	ActionVolumeList:       types.RoleViewer,
	ActionNetworkList:      types.RoleViewer,
	ActionServiceList:      types.RoleViewer,
	ActionServiceGet:       types.RoleViewer,
	ActionServiceLogs:      types.RoleViewer,
	ActionServiceTasks:     types.RoleViewer,
	ActionNodeList:         types.RoleViewer,
	ActionNodeGet:          types.RoleViewer,
	ActionSecretList:       types.RoleViewer,
	ActionConfigList:       types.RoleViewer,
	ActionSystemInfo:       types.RoleViewer,
	ActionSystemVersion:    types.RoleViewer,
	ActionSystemDiskUsage:  types.RoleViewer,
	ActionSystemEvents:     types.RoleViewer,
	ActionHostGet:          types.RoleViewer,
	ActionHostList:         types.RoleViewer,
	ActionBreakerInspect:   types.RoleViewer,

	ActionContainerCreate:  types.RoleOperator,
	ActionContainerStart:   types.RoleOperator,
	ActionContainerStop:    types.RoleOperator,
	ActionContainerRestart: types.RoleOperator,
	ActionContainerRemove:  types.RoleOperator,
	ActionContainerExec:    types.RoleOperator,
	ActionImagePull:        types.RoleOperator,
	ActionImageRemove:      types.RoleOperator,
	ActionVolumeCreate:     types.RoleOperator,
	ActionVolumeRemove:     types.RoleOperator,
	ActionNetworkCreate:    types.RoleOperator,
	ActionNetworkRemove:    types.RoleOperator,
	ActionServiceCreate:    types.RoleOperator,
	ActionServiceUpdate:    types.RoleOperator,
	ActionServiceScale:     types.RoleOperator,
	ActionServiceRemove:    types.RoleOperator,
	ActionSecretCreate:     types.RoleOperator,
	ActionSecretRemove:     types.RoleOperator,
	ActionConfigCreate:     types.RoleOperator,
	ActionConfigRemove:     types.RoleOperator,

	ActionHostCreate:   types.RoleAdmin,
	ActionHostUpdate:   types.RoleAdmin,
	ActionHostDelete:   types.RoleAdmin,
	ActionHostTest:     types.RoleAdmin,
	ActionGrantWrite:   types.RoleAdmin,
	ActionSwarmInit:    types.RoleAdmin,
	ActionSwarmJoin:    types.RoleAdmin,
	ActionSwarmLeave:   types.RoleAdmin,
	ActionSwarmUpdate:  types.RoleAdmin,
	ActionNodeUpdate:   types.RoleAdmin,
	ActionNodeRemove:   types.RoleAdmin,
	ActionImagePrune:   types.RoleAdmin,
	ActionVolumePrune:  types.RoleAdmin,
	ActionNetworkPrune: types.RoleAdmin,
	ActionSystemPrune:  types.RoleAdmin,
	ActionBreakerReset: types.RoleAdmin,
}

// MinLevel returns the minimum role required for an action. Unknown
// actions require admin so that a missing table entry fails closed.
func MinLevel(action Action) types.Role {
	if level, ok := minLevel[action]; ok {
		return level
	}
	return types.RoleAdmin
}
