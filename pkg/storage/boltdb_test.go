package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockfleet/dockfleet/pkg/errdefs"
	"github.com/dockfleet/dockfleet/pkg/types"
)

func testStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testHost(id, name string) *types.Host {
	return &types.Host{
		ID:        id,
		Name:      name,
		Kind:      types.ConnectionUnixSocket,
		Endpoint:  "/var/run/docker.sock",
		Active:    true,
		Health:    types.HostUnknown,
		CreatedAt: time.Now().UTC(),
	}
}

func TestHostCRUD(t *testing.T) {
	store := testStore(t)

	host := testHost("h1", "prod-1")
	require.NoError(t, store.CreateHost(host))

	got, err := store.GetHost("h1")
	require.NoError(t, err)
	assert.Equal(t, "prod-1", got.Name)
	assert.Equal(t, types.ConnectionUnixSocket, got.Kind)

	byName, err := store.GetHostByName("prod-1")
	require.NoError(t, err)
	assert.Equal(t, "h1", byName.ID)

	got.Health = types.HostHealthy
	got.EngineVersion = "27.0.1"
	require.NoError(t, store.UpdateHost(got))
	got, err = store.GetHost("h1")
	require.NoError(t, err)
	assert.Equal(t, types.HostHealthy, got.Health)
	assert.Equal(t, "27.0.1", got.EngineVersion)

	require.NoError(t, store.DeleteHost("h1"))
	_, err = store.GetHost("h1")
	assert.True(t, errdefs.IsNotFound(err))
}

func TestCreateHostConflict(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.CreateHost(testHost("h1", "prod-1")))
	err := store.CreateHost(testHost("h1", "prod-2"))
	assert.True(t, errdefs.IsConflict(err))
}

func TestUpdateMissingHost(t *testing.T) {
	store := testStore(t)
	err := store.UpdateHost(testHost("ghost", "ghost"))
	assert.True(t, errdefs.IsNotFound(err))
}

func TestListHosts(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.CreateHost(testHost("h1", "prod-1")))
	require.NoError(t, store.CreateHost(testHost("h2", "prod-2")))

	hosts, err := store.ListHosts()
	require.NoError(t, err)
	assert.Len(t, hosts, 2)
}

func TestUserCRUD(t *testing.T) {
	store := testStore(t)

	user := &types.User{ID: "u1", Username: "alice", Role: types.RoleOperator}
	require.NoError(t, store.CreateUser(user))
	assert.True(t, errdefs.IsConflict(store.CreateUser(user)))

	got, err := store.GetUserByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
	assert.Equal(t, types.RoleOperator, got.Role)

	got.Role = types.RoleAdmin
	require.NoError(t, store.UpdateUser(got))
	got, err = store.GetUser("u1")
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, got.Role)

	require.NoError(t, store.DeleteUser("u1"))
	_, err = store.GetUser("u1")
	assert.True(t, errdefs.IsNotFound(err))
}

func TestGrantsKeyedByUserAndHost(t *testing.T) {
	store := testStore(t)

	require.NoError(t, store.PutGrant(&types.Grant{UserID: "u1", HostID: "h1", Level: types.RoleViewer}))
	require.NoError(t, store.PutGrant(&types.Grant{UserID: "u1", HostID: "h2", Level: types.RoleOperator}))
	require.NoError(t, store.PutGrant(&types.Grant{UserID: "u2", HostID: "h1", Level: types.RoleAdmin}))

	g, err := store.GetGrant("u1", "h2")
	require.NoError(t, err)
	assert.Equal(t, types.RoleOperator, g.Level)

	mine, err := store.ListGrantsForUser("u1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	// Replacing a grant keeps one row per (user, host)
	require.NoError(t, store.PutGrant(&types.Grant{UserID: "u1", HostID: "h1", Level: types.RoleAdmin}))
	mine, err = store.ListGrantsForUser("u1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	require.NoError(t, store.DeleteGrant("u1", "h1"))
	_, err = store.GetGrant("u1", "h1")
	assert.True(t, errdefs.IsNotFound(err))
}

func TestCredentialsScopedToHost(t *testing.T) {
	store := testStore(t)

	require.NoError(t, store.PutCredential(&types.Credential{HostID: "h1", Kind: types.CredentialTLSCA, Data: []byte{0x01}}))
	require.NoError(t, store.PutCredential(&types.Credential{HostID: "h1", Kind: types.CredentialTLSCert, Data: []byte{0x02}}))
	require.NoError(t, store.PutCredential(&types.Credential{HostID: "h2", Kind: types.CredentialSSHPrivateKey, Data: []byte{0x03}}))

	creds, err := store.GetCredentials("h1")
	require.NoError(t, err)
	assert.Len(t, creds, 2)

	require.NoError(t, store.DeleteCredentials("h1"))
	creds, err = store.GetCredentials("h1")
	require.NoError(t, err)
	assert.Empty(t, creds)

	// The other host's material is untouched
	creds, err = store.GetCredentials("h2")
	require.NoError(t, err)
	assert.Len(t, creds, 1)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.CreateHost(testHost("h1", "prod-1")))
	require.NoError(t, store.Close())

	reopened, err := NewBoltStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetHost("h1")
	require.NoError(t, err)
	assert.Equal(t, "prod-1", got.Name)
}
