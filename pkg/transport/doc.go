/*
Package transport dials remote Docker engines over heterogeneous
transports and owns the resulting native resources.

Supported connection kinds:

  - unix_socket: the Docker API over a local socket path
  - tcp_plain:   HTTP over TCP
  - tcp_tls:     HTTPS with a required CA and optional client cert/key
  - ssh:         a tunnel over golang.org/x/crypto/ssh, with the engine
    socket dialed through the tunnel

Every Dial probes the engine (and, for SSH, the tunnel and remote socket
first) before returning; a handle whose probe failed is never returned.
The SSH client is attached to the handle so the connection manager can
tear it down together with the Docker client. Decrypted credentials live
only on the stack of Dial.
*/
package transport
