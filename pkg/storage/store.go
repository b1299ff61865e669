package storage

import (
	"github.com/dockfleet/dockfleet/pkg/types"
)

// Store defines the interface for control plane state storage.
// Implemented by the BoltDB-backed store; the connection and streaming
// plane only ever reads host, user, grant, and credential records
// through this interface.
type Store interface {
	// Hosts
	CreateHost(host *types.Host) error
	GetHost(id string) (*types.Host, error)
	GetHostByName(name string) (*types.Host, error)
	ListHosts() ([]*types.Host, error)
	UpdateHost(host *types.Host) error
	DeleteHost(id string) error

	// Users
	CreateUser(user *types.User) error
	GetUser(id string) (*types.User, error)
	GetUserByUsername(username string) (*types.User, error)
	ListUsers() ([]*types.User, error)
	UpdateUser(user *types.User) error
	DeleteUser(id string) error

	// Grants
	PutGrant(grant *types.Grant) error
	GetGrant(userID, hostID string) (*types.Grant, error)
	ListGrantsForUser(userID string) ([]*types.Grant, error)
	DeleteGrant(userID, hostID string) error

	// Credentials (ciphertext only)
	PutCredential(cred *types.Credential) error
	GetCredentials(hostID string) ([]*types.Credential, error)
	DeleteCredentials(hostID string) error

	// Utility
	Close() error
}
