package permission

import (
	"sync"
	"time"

	"github.com/dockfleet/dockfleet/pkg/errdefs"
	"github.com/dockfleet/dockfleet/pkg/storage"
	"github.com/dockfleet/dockfleet/pkg/types"
)

// Resolver answers "may user U perform action A against host H" and
// resolves a caller's default host. Decisions are cached for a bounded
// TTL and invalidated explicitly whenever a grant changes.
type Resolver struct {
	store storage.Store

	cacheTTL time.Duration
	clock    func() time.Time

	mu    sync.RWMutex
	cache map[cacheKey]cacheEntry
}

type cacheKey struct {
	userID string
	action Action
	hostID string
}

type cacheEntry struct {
	allowed   bool
	expiresAt time.Time
}

// NewResolver creates a resolver with the given decision cache TTL
func NewResolver(store storage.Store, cacheTTL time.Duration) *Resolver {
	return &Resolver{
		store:    store,
		cacheTTL: cacheTTL,
		clock:    time.Now,
		cache:    make(map[cacheKey]cacheEntry),
	}
}

// Authorize returns nil when the user may perform action against the host,
// and a forbidden error otherwise. Rules in order: global admin allows
// everything; otherwise the per-host grant level applies; absence denies.
func (r *Resolver) Authorize(user *types.User, action Action, hostID string) error {
	if user == nil {
		return errdefs.New(errdefs.KindForbidden, "no authenticated user")
	}
	if user.Role == types.RoleAdmin {
		return nil
	}

	key := cacheKey{userID: user.ID, action: action, hostID: hostID}
	if allowed, ok := r.cached(key); ok {
		if allowed {
			return nil
		}
		return errdefs.Newf(errdefs.KindForbidden, "user %s may not %s on host %s", user.Username, action, hostID)
	}

	allowed := r.resolve(user, action, hostID)
	r.put(key, allowed)

	if !allowed {
		return errdefs.Newf(errdefs.KindForbidden, "user %s may not %s on host %s", user.Username, action, hostID)
	}
	return nil
}

// resolve consults the grant table without the cache
func (r *Resolver) resolve(user *types.User, action Action, hostID string) bool {
	grant, err := r.store.GetGrant(user.ID, hostID)
	if err != nil {
		return false
	}
	return grant.Level.Covers(MinLevel(action))
}

// DefaultHost resolves the host used when a caller names none: the host
// flagged default if the user holds a grant on it, otherwise any granted
// host, otherwise not_found. Global admins fall back to the fleet-wide
// default host, then to any active host.
func (r *Resolver) DefaultHost(user *types.User) (*types.Host, error) {
	if user == nil {
		return nil, errdefs.New(errdefs.KindForbidden, "no authenticated user")
	}

	hosts, err := r.store.ListHosts()
	if err != nil {
		return nil, err
	}

	if user.Role == types.RoleAdmin {
		var fallback *types.Host
		for _, h := range hosts {
			if !h.Active {
				continue
			}
			if h.Default {
				return h, nil
			}
			if fallback == nil {
				fallback = h
			}
		}
		if fallback != nil {
			return fallback, nil
		}
		return nil, errdefs.New(errdefs.KindNotFound, "no host available")
	}

	grants, err := r.store.ListGrantsForUser(user.ID)
	if err != nil {
		return nil, err
	}
	granted := make(map[string]bool, len(grants))
	for _, g := range grants {
		granted[g.HostID] = true
	}

	var fallback *types.Host
	for _, h := range hosts {
		if !h.Active || !granted[h.ID] {
			continue
		}
		if h.Default {
			return h, nil
		}
		if fallback == nil {
			fallback = h
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, errdefs.New(errdefs.KindNotFound, "no host available for user")
}

// Invalidate drops every cached decision for a user. Called whenever a
// grant for that user changes so the change is observed immediately.
func (r *Resolver) Invalidate(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.cache {
		if key.userID == userID {
			delete(r.cache, key)
		}
	}
}

// InvalidateAll drops the whole decision cache
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[cacheKey]cacheEntry)
}

func (r *Resolver) cached(key cacheKey) (bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[key]
	if !ok || r.clock().After(entry.expiresAt) {
		return false, false
	}
	return entry.allowed, true
}

func (r *Resolver) put(key cacheKey, allowed bool) {
	if r.cacheTTL <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key] = cacheEntry{
		allowed:   allowed,
		expiresAt: r.clock().Add(r.cacheTTL),
	}
}
