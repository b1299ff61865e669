package types

import (
	"time"
)

// Host is the configuration record that identifies and authenticates access
// to a remote Docker engine. The host id is opaque and stable across renames.
type Host struct {
	ID            string
	Name          string
	Kind          ConnectionKind
	Endpoint      string // socket path, tcp://host:port, or ssh://user@host:port
	Active        bool
	Default       bool
	Health        HostHealth
	EngineVersion string // last-seen engine version, informational

	// Swarm membership (observed, never enforced)
	ClusterID string
	SwarmRole SwarmRole
	IsLeader  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConnectionKind defines the transport used to reach an engine
type ConnectionKind string

const (
	ConnectionUnixSocket ConnectionKind = "unix_socket"
	ConnectionTCPPlain   ConnectionKind = "tcp_plain"
	ConnectionTCPTLS     ConnectionKind = "tcp_tls"
	ConnectionSSH        ConnectionKind = "ssh"
)

// HostHealth represents the last observed health of an engine
type HostHealth string

const (
	HostHealthy   HostHealth = "healthy"
	HostUnhealthy HostHealth = "unhealthy"
	HostUnknown   HostHealth = "unknown"
)

// SwarmRole is the observed role of a host within a Swarm cluster
type SwarmRole string

const (
	SwarmRoleStandalone SwarmRole = "standalone"
	SwarmRoleManager    SwarmRole = "manager"
	SwarmRoleWorker     SwarmRole = "worker"
)

// CredentialKind identifies one piece of per-host connection material
type CredentialKind string

const (
	CredentialTLSCA         CredentialKind = "tls_ca"
	CredentialTLSCert       CredentialKind = "tls_cert"
	CredentialTLSKey        CredentialKind = "tls_key"
	CredentialSSHPrivateKey CredentialKind = "ssh_private_key"
	CredentialSSHPassphrase CredentialKind = "ssh_passphrase"
	CredentialSSHPassword   CredentialKind = "ssh_password"
	CredentialSSHUser       CredentialKind = "ssh_user"
	CredentialSSHKnownHosts CredentialKind = "ssh_known_hosts"
)

// Credential is an encrypted per-host credential item. Data is always
// ciphertext; plaintext exists only inside the transport dialer.
type Credential struct {
	HostID    string
	Kind      CredentialKind
	Data      []byte // AES-256-GCM, nonce prepended
	CreatedAt time.Time
}

// User is an operator account
type User struct {
	ID           string
	Username     string
	PasswordHash []byte
	Role         Role
	CreatedAt    time.Time
}

// Role attaches globally to a user and is also used as a per-host grant level
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// Covers reports whether a role satisfies a minimum required level
func (r Role) Covers(min Role) bool {
	return roleRank(r) >= roleRank(min)
}

func roleRank(r Role) int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleOperator:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// Grant is a per-host permission level for a user
type Grant struct {
	UserID    string
	HostID    string
	Level     Role
	CreatedAt time.Time
}

// SourceType identifies the kind of resource a stream reads from
type SourceType string

const (
	SourceContainer      SourceType = "container"
	SourceService        SourceType = "service"
	SourceContainerStats SourceType = "container_stats"
)

// StreamKey identifies at most one active upstream per resource
type StreamKey struct {
	Source     SourceType
	ResourceID string
}

// LogLevel is the normalized severity of a log entry
type LogLevel string

const (
	LevelDebug    LogLevel = "debug"
	LevelInfo     LogLevel = "info"
	LevelWarning  LogLevel = "warning"
	LevelError    LogLevel = "error"
	LevelCritical LogLevel = "critical"
	LevelUnknown  LogLevel = "unknown"
)

// LogEntry is a normalized line produced by a stream provider
type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Source    SourceType        `json:"source_type"`
	SourceID  string            `json:"source_id"`
	HostID    string            `json:"host_id"`
	Level     LogLevel          `json:"level"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Raw       string            `json:"-"`
}

// FrameType tags a message on a caller-facing stream channel
type FrameType string

const (
	FrameConnected FrameType = "connected"
	FrameLog       FrameType = "log"
	FrameStats     FrameType = "stats"
	FrameEvent     FrameType = "event"
	FrameStreamEnd FrameType = "stream_end"
	FrameError     FrameType = "error"
	FrameHeartbeat FrameType = "heartbeat"
	FramePing      FrameType = "ping"
	FramePong      FrameType = "pong"
)

// Frame is the tagged record delivered to streaming callers
type Frame struct {
	Type      FrameType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// Event is an engine event enriched with the originating host
type Event struct {
	HostID     string            `json:"host_id"`
	Type       string            `json:"type"`   // container, image, network, volume, ...
	Action     string            `json:"action"` // start, stop, die, destroy, ...
	ActorID    string            `json:"actor_id"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// EventFilter selects which events a subscriber receives. Empty fields
// match everything.
type EventFilter struct {
	Types      []string
	Actions    []string
	Labels     map[string]string
	NameSubstr string // matches container or image name
}

// Matches reports whether an event passes the filter
func (f *EventFilter) Matches(ev *Event) bool {
	if f == nil {
		return true
	}
	if len(f.Types) > 0 && !containsString(f.Types, ev.Type) {
		return false
	}
	if len(f.Actions) > 0 && !containsString(f.Actions, ev.Action) {
		return false
	}
	for k, v := range f.Labels {
		if ev.Attributes[k] != v {
			return false
		}
	}
	if f.NameSubstr != "" {
		if !containsSubstr(ev.Attributes["name"], f.NameSubstr) &&
			!containsSubstr(ev.Attributes["image"], f.NameSubstr) {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsSubstr(s, substr string) bool {
	if s == "" || len(substr) > len(s) {
		return false
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// ContainerSummary is the normalized record returned by container operations
type ContainerSummary struct {
	ID      string            `json:"id"`
	HostID  string            `json:"host_id"`
	Name    string            `json:"name"`
	Image   string            `json:"image"`
	State   string            `json:"state"`  // created, running, paused, exited, removing
	Status  string            `json:"status"` // human-readable, e.g. "Up 2 hours"
	Labels  map[string]string `json:"labels,omitempty"`
	Created time.Time         `json:"created"`
}

// ContainerDetail carries the fields inspect exposes beyond the summary
type ContainerDetail struct {
	ContainerSummary
	Hostname      string    `json:"hostname"`
	Env           []string  `json:"env,omitempty"`
	Cmd           []string  `json:"cmd,omitempty"`
	RestartPolicy string    `json:"restart_policy,omitempty"`
	Tty           bool      `json:"tty"`
	StartedAt     time.Time `json:"started_at"`
	ExitCode      int       `json:"exit_code"`
}

// ContainerSpec describes a container to create
type ContainerSpec struct {
	Name    string            `json:"name"`
	Image   string            `json:"image"`
	Cmd     []string          `json:"cmd,omitempty"`
	Env     []string          `json:"env,omitempty"`
	Labels  map[string]string `json:"labels,omitempty"`
	Ports   []PortBinding     `json:"ports,omitempty"`
	Volumes []string          `json:"volumes,omitempty"` // "volume:/path[:ro]"
}

// PortBinding maps a host port to a container port
type PortBinding struct {
	HostPort      int    `json:"host_port"`
	ContainerPort int    `json:"container_port"`
	Protocol      string `json:"protocol"` // tcp or udp
}

// ImageSummary is the normalized record returned by image operations
type ImageSummary struct {
	ID      string    `json:"id"`
	HostID  string    `json:"host_id"`
	Tags    []string  `json:"tags,omitempty"`
	Size    int64     `json:"size"`
	Created time.Time `json:"created"`
}

// VolumeSummary is the normalized record returned by volume operations
type VolumeSummary struct {
	Name       string            `json:"name"`
	HostID     string            `json:"host_id"`
	Driver     string            `json:"driver"`
	Mountpoint string            `json:"mountpoint"`
	Labels     map[string]string `json:"labels,omitempty"`
}

// NetworkSummary is the normalized record returned by network operations
type NetworkSummary struct {
	ID     string `json:"id"`
	HostID string `json:"host_id"`
	Name   string `json:"name"`
	Driver string `json:"driver"`
	Scope  string `json:"scope"`
}

// ServiceSummary is the normalized record returned by swarm service operations
type ServiceSummary struct {
	ID       string `json:"id"`
	HostID   string `json:"host_id"`
	Name     string `json:"name"`
	Image    string `json:"image"`
	Mode     string `json:"mode"` // replicated or global
	Replicas uint64 `json:"replicas"`
}

// ServiceSpec describes a swarm service to create or update
type ServiceSpec struct {
	Name     string            `json:"name"`
	Image    string            `json:"image"`
	Replicas uint64            `json:"replicas"`
	Env      []string          `json:"env,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
}

// TaskSummary is a running instance of a swarm service
type TaskSummary struct {
	ID           string    `json:"id"`
	HostID       string    `json:"host_id"`
	ServiceID    string    `json:"service_id"`
	NodeID       string    `json:"node_id"`
	State        string    `json:"state"`
	DesiredState string    `json:"desired_state"`
	Message      string    `json:"message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NodeSummary is the normalized record returned by swarm node operations
type NodeSummary struct {
	ID           string    `json:"id"`
	HostID       string    `json:"host_id"`
	Hostname     string    `json:"hostname"`
	Role         SwarmRole `json:"role"`
	Availability string    `json:"availability"`
	State        string    `json:"state"`
	IsLeader     bool      `json:"is_leader"`
}

// SecretSummary is the normalized record returned by swarm secret operations
type SecretSummary struct {
	ID        string    `json:"id"`
	HostID    string    `json:"host_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ConfigSummary is the normalized record returned by swarm config operations
type ConfigSummary struct {
	ID        string    `json:"id"`
	HostID    string    `json:"host_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// SystemInfo is the normalized record returned by system info
type SystemInfo struct {
	HostID            string    `json:"host_id"`
	Hostname          string    `json:"hostname"`
	ServerVersion     string    `json:"server_version"`
	OperatingSystem   string    `json:"operating_system"`
	KernelVersion     string    `json:"kernel_version"`
	Containers        int       `json:"containers"`
	ContainersRunning int       `json:"containers_running"`
	Images            int       `json:"images"`
	NCPU              int       `json:"ncpu"`
	MemTotal          int64     `json:"mem_total"`
	SwarmRole         SwarmRole `json:"swarm_role"`
	ClusterID         string    `json:"cluster_id,omitempty"`
	IsLeader          bool      `json:"is_leader"`
}

// DiskUsage is the normalized record returned by system disk usage
type DiskUsage struct {
	HostID         string `json:"host_id"`
	LayersSize     int64  `json:"layers_size"`
	ContainersSize int64  `json:"containers_size"`
	VolumesSize    int64  `json:"volumes_size"`
}

// StatsSample is a normalized point-in-time resource reading for a container
type StatsSample struct {
	ContainerID   string    `json:"container_id"`
	HostID        string    `json:"host_id"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryUsage   uint64    `json:"memory_usage"`
	MemoryLimit   uint64    `json:"memory_limit"`
	MemoryPercent float64   `json:"memory_percent"`
	NetworkRx     uint64    `json:"network_rx"`
	NetworkTx     uint64    `json:"network_tx"`
	Timestamp     time.Time `json:"timestamp"`
}

// ExecSpec describes an interactive exec session to open
type ExecSpec struct {
	ContainerID string   `json:"container_id"`
	Command     []string `json:"command,omitempty"` // auto-detected shell when empty
	WorkingDir  string   `json:"working_dir,omitempty"`
	TTYRows     uint     `json:"tty_rows,omitempty"`
	TTYCols     uint     `json:"tty_cols,omitempty"`
}

// LogOptions controls a log stream request
type LogOptions struct {
	Follow     bool
	Tail       int
	Since      time.Time
	Until      time.Time
	Timestamps bool
}
