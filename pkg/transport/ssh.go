package transport

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/docker/docker/client"
	"golang.org/x/crypto/ssh"

	"github.com/dockfleet/dockfleet/pkg/errdefs"
	"github.com/dockfleet/dockfleet/pkg/types"
)

// remoteDockerSocket is where the engine listens on the far side of the
// tunnel. Hosts with a relocated socket can encode it in the endpoint
// query string, e.g. ssh://user@host:22?socket=/run/user/1000/docker.sock
const remoteDockerSocket = "/var/run/docker.sock"

// dialSSH establishes an SSH transport to the host and returns a Docker
// client whose connections are tunnelled through it. Both the SSH
// handshake and a daemon probe must succeed before the handle is usable;
// the SSH client is attached to the handle for teardown.
func (d *Dialer) dialSSH(ctx context.Context, host *types.Host, creds map[types.CredentialKind][]byte, handle *Handle) (*client.Client, error) {
	endpoint, err := url.Parse(host.Endpoint)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindValidation, "invalid ssh endpoint", err)
	}

	addr := endpoint.Host
	if endpoint.Port() == "" {
		addr = net.JoinHostPort(endpoint.Hostname(), "22")
	}

	username := ""
	if endpoint.User != nil {
		username = endpoint.User.Username()
	}
	if u, ok := creds[types.CredentialSSHUser]; ok {
		username = string(u)
	}
	if username == "" {
		return nil, errdefs.Newf(errdefs.KindValidation, "host %s has no ssh user", host.ID)
	}

	auth, err := sshAuthMethods(host.ID, creds)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := sshHostKeyCallback(creds)
	if err != nil {
		return nil, err
	}

	sshConfig := &ssh.ClientConfig{
		User:            username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         d.probeTimeout(),
	}

	// Probe 1: the SSH handshake itself
	sshClient, err := dialSSHClient(ctx, addr, sshConfig)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindTransport, fmt.Sprintf("ssh unreachable for host %s", host.ID), err)
	}
	handle.addCloser(sshClient.Close)

	// Probe 2: the remote socket must accept a connection before we hand
	// the tunnel to the Docker client. The daemon Ping in Dial follows.
	socketPath := remoteDockerSocket
	if s := endpoint.Query().Get("socket"); s != "" {
		socketPath = s
	}
	probeConn, err := sshClient.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindTransport, fmt.Sprintf("docker socket unreachable over ssh for host %s", host.ID), err)
	}
	probeConn.Close()

	cli, err := client.NewClientWithOpts(
		client.WithHost("unix://"+socketPath),
		client.WithAPIVersionNegotiation(),
		client.WithDialContext(func(ctx context.Context, network, addr string) (net.Conn, error) {
			return sshClient.DialContext(ctx, "unix", socketPath)
		}),
	)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindTransport, "failed to create client over ssh tunnel", err)
	}
	return cli, nil
}

// dialSSHClient performs a context-aware TCP dial followed by the SSH
// handshake. ssh.Dial alone would ignore ctx cancellation.
func dialSSHClient(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(cfg.Timeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

// sshAuthMethods builds the authentication chain: private key (with
// optional passphrase) preferred, password as fallback.
func sshAuthMethods(hostID string, creds map[types.CredentialKind][]byte) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if keyPEM, ok := creds[types.CredentialSSHPrivateKey]; ok {
		var (
			signer ssh.Signer
			err    error
		)
		if passphrase, hasPass := creds[types.CredentialSSHPassphrase]; hasPass && len(passphrase) > 0 {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyPEM, passphrase)
		} else {
			signer, err = ssh.ParsePrivateKey(keyPEM)
		}
		if err != nil {
			return nil, errdefs.Newf(errdefs.KindValidation, "unusable ssh private key for host %s", hostID)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if password, ok := creds[types.CredentialSSHPassword]; ok && len(password) > 0 {
		methods = append(methods, ssh.Password(string(password)))
	}

	if len(methods) == 0 {
		return nil, errdefs.Newf(errdefs.KindValidation, "host %s has no ssh key or password", hostID)
	}
	return methods, nil
}

// sshHostKeyCallback verifies the server key against stored known_hosts
// material when present. Without known_hosts the server key is accepted,
// matching ssh -o StrictHostKeyChecking=no.
func sshHostKeyCallback(creds map[types.CredentialKind][]byte) (ssh.HostKeyCallback, error) {
	knownHosts, ok := creds[types.CredentialSSHKnownHosts]
	if !ok || len(knownHosts) == 0 {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	var trusted []ssh.PublicKey
	rest := knownHosts
	for len(rest) > 0 {
		_, _, pubKey, _, remaining, err := ssh.ParseKnownHosts(rest)
		if err != nil {
			break
		}
		trusted = append(trusted, pubKey)
		rest = remaining
	}
	if len(trusted) == 0 {
		return nil, errdefs.New(errdefs.KindValidation, "ssh_known_hosts credential contains no parsable keys")
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		presented := key.Marshal()
		for _, t := range trusted {
			if t.Type() == key.Type() && bytes.Equal(t.Marshal(), presented) {
				return nil
			}
		}
		return fmt.Errorf("ssh host key mismatch for %s", hostname)
	}, nil
}
