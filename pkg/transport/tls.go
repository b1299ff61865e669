package transport

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"time"

	"github.com/docker/docker/client"

	"github.com/dockfleet/dockfleet/pkg/errdefs"
	"github.com/dockfleet/dockfleet/pkg/types"
)

// dialTLS opens the Docker API over TCP with TLS. A CA is required; a
// client certificate and key are used when both are present. The peer is
// always verified against the CA.
func (d *Dialer) dialTLS(host *types.Host, creds map[types.CredentialKind][]byte) (*client.Client, error) {
	caPEM, ok := creds[types.CredentialTLSCA]
	if !ok || len(caPEM) == 0 {
		return nil, errdefs.Newf(errdefs.KindValidation, "host %s requires a tls_ca credential", host.ID)
	}

	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caPEM) {
		return nil, errdefs.Newf(errdefs.KindValidation, "failed to parse CA certificate for host %s", host.ID)
	}

	tlsConfig := &tls.Config{
		RootCAs:    caPool,
		MinVersion: tls.VersionTLS12,
	}

	certPEM, hasCert := creds[types.CredentialTLSCert]
	keyPEM, hasKey := creds[types.CredentialTLSKey]
	if hasCert && hasKey {
		clientCert, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, errdefs.Wrap(errdefs.KindValidation, "failed to parse client certificate/key", err)
		}
		tlsConfig.Certificates = []tls.Certificate{clientCert}
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext:           keepaliveDialer(),
			TLSClientConfig:       tlsConfig,
			TLSHandshakeTimeout:   10 * time.Second,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
		},
	}

	cli, err := client.NewClientWithOpts(
		client.WithHost(host.Endpoint),
		client.WithAPIVersionNegotiation(),
		client.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindTransport, "failed to create tls client", err)
	}
	return cli, nil
}
