package executor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dockfleet/dockfleet/pkg/breaker"
	"github.com/dockfleet/dockfleet/pkg/engine"
	"github.com/dockfleet/dockfleet/pkg/errdefs"
	"github.com/dockfleet/dockfleet/pkg/log"
	"github.com/dockfleet/dockfleet/pkg/metrics"
	"github.com/dockfleet/dockfleet/pkg/permission"
	"github.com/dockfleet/dockfleet/pkg/types"
)

// HostSpec describes a host to register. Credentials are plaintext on
// input and encrypted before they touch the store; the spec must not be
// retained after CreateHost returns.
type HostSpec struct {
	Name        string
	Kind        types.ConnectionKind
	Endpoint    string
	Default     bool
	Credentials map[types.CredentialKind][]byte
}

// HostUpdate carries the mutable host fields; nil means unchanged
type HostUpdate struct {
	Name        *string
	Kind        *types.ConnectionKind
	Endpoint    *string
	Active      *bool
	Default     *bool
	Credentials map[types.CredentialKind][]byte // nil means unchanged
}

// ListHosts returns the hosts the caller may see: all of them for
// admins, granted hosts for everyone else.
func (e *Executor) ListHosts(ctx context.Context, user *types.User) ([]*types.Host, error) {
	hosts, err := e.store.ListHosts()
	if err != nil {
		return nil, err
	}

	visible := make([]*types.Host, 0, len(hosts))
	for _, h := range hosts {
		if e.perms.Authorize(user, permission.ActionHostList, h.ID) == nil {
			visible = append(visible, h)
		}
	}
	return visible, nil
}

// GetHost returns one host record
func (e *Executor) GetHost(ctx context.Context, user *types.User, hostID string) (*types.Host, error) {
	host, err := e.resolveHost(user, hostID)
	if err != nil {
		return nil, err
	}
	if err := e.perms.Authorize(user, permission.ActionHostGet, host.ID); err != nil {
		return nil, err
	}
	return host, nil
}

// CreateHost registers a host and encrypts its credentials. The record
// starts active with unknown health; the first Get dials it.
func (e *Executor) CreateHost(ctx context.Context, user *types.User, spec *HostSpec) (*types.Host, error) {
	if err := e.perms.Authorize(user, permission.ActionHostCreate, ""); err != nil {
		metrics.OperationsTotal.WithLabelValues(string(permission.ActionHostCreate), "forbidden").Inc()
		return nil, err
	}
	if err := validateHostSpec(spec); err != nil {
		return nil, err
	}
	if existing, err := e.store.GetHostByName(spec.Name); err == nil && existing != nil {
		return nil, errdefs.Newf(errdefs.KindConflict, "host name %q already in use", spec.Name)
	}

	now := time.Now().UTC()
	host := &types.Host{
		ID:        uuid.NewString(),
		Name:      spec.Name,
		Kind:      spec.Kind,
		Endpoint:  spec.Endpoint,
		Active:    true,
		Default:   spec.Default,
		Health:    types.HostUnknown,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if spec.Default {
		if err := e.clearDefaultFlag(); err != nil {
			return nil, err
		}
	}
	if err := e.store.CreateHost(host); err != nil {
		return nil, err
	}

	for kind, plaintext := range spec.Credentials {
		if err := e.creds.Put(host.ID, kind, plaintext); err != nil {
			// Roll back the half-registered host
			_ = e.creds.Delete(host.ID)
			_ = e.store.DeleteHost(host.ID)
			return nil, err
		}
	}

	metrics.OperationsTotal.WithLabelValues(string(permission.ActionHostCreate), "ok").Inc()
	log.WithComponent("executor").Info().
		Str("host_id", host.ID).
		Str("name", host.Name).
		Str("kind", string(host.Kind)).
		Msg("host registered")
	return host, nil
}

// UpdateHost applies a partial update. Changing the endpoint, kind, or
// credentials, or deactivating the host, evicts its live handle.
func (e *Executor) UpdateHost(ctx context.Context, user *types.User, hostID string, update *HostUpdate) (*types.Host, error) {
	if err := e.perms.Authorize(user, permission.ActionHostUpdate, hostID); err != nil {
		metrics.OperationsTotal.WithLabelValues(string(permission.ActionHostUpdate), "forbidden").Inc()
		return nil, err
	}
	host, err := e.store.GetHost(hostID)
	if err != nil {
		return nil, err
	}

	evict := false
	if update.Name != nil && *update.Name != host.Name {
		if existing, err := e.store.GetHostByName(*update.Name); err == nil && existing != nil && existing.ID != host.ID {
			return nil, errdefs.Newf(errdefs.KindConflict, "host name %q already in use", *update.Name)
		}
		host.Name = *update.Name
	}
	if update.Kind != nil && *update.Kind != host.Kind {
		if !validKind(*update.Kind) {
			return nil, errdefs.Newf(errdefs.KindValidation, "unknown connection kind %q", *update.Kind)
		}
		host.Kind = *update.Kind
		evict = true
	}
	if update.Endpoint != nil && *update.Endpoint != host.Endpoint {
		host.Endpoint = *update.Endpoint
		evict = true
	}
	if update.Active != nil && *update.Active != host.Active {
		host.Active = *update.Active
		if !host.Active {
			evict = true
		}
	}
	if update.Default != nil && *update.Default != host.Default {
		if *update.Default {
			if err := e.clearDefaultFlag(); err != nil {
				return nil, err
			}
		}
		host.Default = *update.Default
	}
	if update.Credentials != nil {
		if err := e.creds.Delete(host.ID); err != nil {
			return nil, err
		}
		for kind, plaintext := range update.Credentials {
			if err := e.creds.Put(host.ID, kind, plaintext); err != nil {
				return nil, err
			}
		}
		evict = true
	}

	host.UpdatedAt = time.Now().UTC()
	if err := e.store.UpdateHost(host); err != nil {
		return nil, err
	}

	if evict {
		e.evictHostState(host.ID)
	}
	metrics.OperationsTotal.WithLabelValues(string(permission.ActionHostUpdate), "ok").Inc()
	return host, nil
}

// DeleteHost removes a host, its credentials, and its live handle
func (e *Executor) DeleteHost(ctx context.Context, user *types.User, hostID string) error {
	if err := e.perms.Authorize(user, permission.ActionHostDelete, hostID); err != nil {
		metrics.OperationsTotal.WithLabelValues(string(permission.ActionHostDelete), "forbidden").Inc()
		return err
	}
	if _, err := e.store.GetHost(hostID); err != nil {
		return err
	}

	e.evictHostState(hostID)
	if err := e.creds.Delete(hostID); err != nil {
		return err
	}
	if err := e.store.DeleteHost(hostID); err != nil {
		return err
	}

	metrics.OperationsTotal.WithLabelValues(string(permission.ActionHostDelete), "ok").Inc()
	log.WithComponent("executor").Info().Str("host_id", hostID).Msg("host deleted")
	return nil
}

// TestConnection dials the host and reports the engine version it
// answered with. Runs through the breaker like any other operation.
func (e *Executor) TestConnection(ctx context.Context, user *types.User, hostID string) (string, error) {
	var version string
	err := e.run(ctx, user, permission.ActionHostTest, hostID, func(ctx context.Context, cli *engine.Client) error {
		var err error
		version, err = cli.Ping(ctx)
		return err
	})
	return version, err
}

// Grants

// PutGrant creates or replaces a per-host grant and invalidates the
// user's cached decisions so the change is observed immediately.
func (e *Executor) PutGrant(ctx context.Context, user *types.User, grant *types.Grant) error {
	if err := e.perms.Authorize(user, permission.ActionGrantWrite, grant.HostID); err != nil {
		return err
	}
	switch grant.Level {
	case types.RoleViewer, types.RoleOperator, types.RoleAdmin:
	default:
		return errdefs.Newf(errdefs.KindValidation, "unknown grant level %q", grant.Level)
	}
	if _, err := e.store.GetHost(grant.HostID); err != nil {
		return err
	}
	if _, err := e.store.GetUser(grant.UserID); err != nil {
		return err
	}

	if grant.CreatedAt.IsZero() {
		grant.CreatedAt = time.Now().UTC()
	}
	if err := e.store.PutGrant(grant); err != nil {
		return err
	}
	e.perms.Invalidate(grant.UserID)
	return nil
}

// DeleteGrant revokes a per-host grant
func (e *Executor) DeleteGrant(ctx context.Context, user *types.User, userID, hostID string) error {
	if err := e.perms.Authorize(user, permission.ActionGrantWrite, hostID); err != nil {
		return err
	}
	if err := e.store.DeleteGrant(userID, hostID); err != nil {
		return err
	}
	e.perms.Invalidate(userID)
	return nil
}

// Breaker introspection

// BreakerSnapshot reports a host's breaker state
func (e *Executor) BreakerSnapshot(ctx context.Context, user *types.User, hostID string) (breaker.Snapshot, error) {
	if err := e.perms.Authorize(user, permission.ActionBreakerInspect, hostID); err != nil {
		return breaker.Snapshot{}, err
	}
	return e.conns.BreakerSnapshot(hostID), nil
}

// ResetBreaker manually closes a host's breaker
func (e *Executor) ResetBreaker(ctx context.Context, user *types.User, hostID string) error {
	if err := e.perms.Authorize(user, permission.ActionBreakerReset, hostID); err != nil {
		return err
	}
	e.conns.ResetBreaker(hostID)
	log.WithComponent("executor").Info().Str("host_id", hostID).Msg("breaker reset")
	return nil
}

// evictHostState drops every piece of live state tied to a host
func (e *Executor) evictHostState(hostID string) {
	e.conns.Close(hostID)
	e.events.CloseHost(hostID)
	e.detector.Invalidate(hostID)
}

// clearDefaultFlag unsets Default on whichever host currently holds it
func (e *Executor) clearDefaultFlag() error {
	hosts, err := e.store.ListHosts()
	if err != nil {
		return err
	}
	for _, h := range hosts {
		if !h.Default {
			continue
		}
		h.Default = false
		h.UpdatedAt = time.Now().UTC()
		if err := e.store.UpdateHost(h); err != nil {
			return err
		}
	}
	return nil
}

func validateHostSpec(spec *HostSpec) error {
	if spec.Name == "" {
		return errdefs.New(errdefs.KindValidation, "host name is required")
	}
	if spec.Endpoint == "" {
		return errdefs.New(errdefs.KindValidation, "host endpoint is required")
	}
	if !validKind(spec.Kind) {
		return errdefs.Newf(errdefs.KindValidation, "unknown connection kind %q", spec.Kind)
	}
	return nil
}

func validKind(kind types.ConnectionKind) bool {
	switch kind {
	case types.ConnectionUnixSocket, types.ConnectionTCPPlain, types.ConnectionTCPTLS, types.ConnectionSSH:
		return true
	}
	return false
}
