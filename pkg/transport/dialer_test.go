package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockfleet/dockfleet/pkg/errdefs"
	"github.com/dockfleet/dockfleet/pkg/types"
)

func TestDialUnknownKindRejected(t *testing.T) {
	d := NewDialer()
	host := &types.Host{ID: "h1", Kind: "carrier_pigeon", Endpoint: "somewhere"}

	_, err := d.Dial(context.Background(), host, nil)
	assert.True(t, errdefs.IsValidation(err))
}

func TestDialUnreachableEngineIsTransportError(t *testing.T) {
	d := &Dialer{ProbeTimeout: 200 * time.Millisecond}
	host := &types.Host{
		ID:       "h1",
		Kind:     types.ConnectionUnixSocket,
		Endpoint: "unix:///nonexistent/docker.sock",
	}

	_, err := d.Dial(context.Background(), host, nil)
	require.Error(t, err)
	assert.True(t, errdefs.IsTransport(err))
}

func TestHandleCloseRunsClosersLIFO(t *testing.T) {
	h := &Handle{HostID: "h1"}
	var order []string
	h.addCloser(func() error { order = append(order, "tunnel"); return nil })
	h.addCloser(func() error { order = append(order, "forward"); return nil })

	require.NoError(t, h.Close())
	assert.Equal(t, []string{"forward", "tunnel"}, order)

	// Second close is a no-op
	order = nil
	require.NoError(t, h.Close())
	assert.Empty(t, order)
}

func TestHandleCloseReturnsFirstError(t *testing.T) {
	h := &Handle{HostID: "h1"}
	boom := errors.New("tunnel already gone")
	h.addCloser(func() error { return boom })
	h.addCloser(func() error { return nil })

	assert.Equal(t, boom, h.Close())
}

func TestHandleHealthTimestamps(t *testing.T) {
	h := &Handle{HostID: "h1"}
	assert.True(t, h.LastHealthOK().IsZero())

	now := time.Now()
	h.MarkHealthy(now)
	assert.Equal(t, now, h.LastHealthOK())
}

func TestSSHRequiresUser(t *testing.T) {
	d := NewDialer()
	host := &types.Host{ID: "h1", Kind: types.ConnectionSSH, Endpoint: "ssh://10.0.0.5:22"}
	creds := map[types.CredentialKind][]byte{
		types.CredentialSSHPassword: []byte("hunter2"),
	}

	_, err := d.dialSSH(context.Background(), host, creds, &Handle{HostID: "h1"})
	assert.True(t, errdefs.IsValidation(err))
}

func TestSSHAuthMethods(t *testing.T) {
	t.Run("no key or password", func(t *testing.T) {
		_, err := sshAuthMethods("h1", nil)
		assert.True(t, errdefs.IsValidation(err))
	})

	t.Run("unparsable private key", func(t *testing.T) {
		_, err := sshAuthMethods("h1", map[types.CredentialKind][]byte{
			types.CredentialSSHPrivateKey: []byte("not a pem block"),
		})
		require.Error(t, err)
		assert.True(t, errdefs.IsValidation(err))
		// The key material itself must not leak into the error
		assert.NotContains(t, err.Error(), "not a pem block")
	})

	t.Run("password only", func(t *testing.T) {
		methods, err := sshAuthMethods("h1", map[types.CredentialKind][]byte{
			types.CredentialSSHPassword: []byte("hunter2"),
		})
		require.NoError(t, err)
		assert.Len(t, methods, 1)
	})
}

func TestSSHHostKeyCallback(t *testing.T) {
	t.Run("absent known_hosts accepts any key", func(t *testing.T) {
		cb, err := sshHostKeyCallback(nil)
		require.NoError(t, err)
		assert.NotNil(t, cb)
	})

	t.Run("garbage known_hosts rejected", func(t *testing.T) {
		_, err := sshHostKeyCallback(map[types.CredentialKind][]byte{
			types.CredentialSSHKnownHosts: []byte("complete nonsense\n"),
		})
		assert.True(t, errdefs.IsValidation(err))
	})
}
