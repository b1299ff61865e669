// Package permission resolves role- and host-scoped authorization.
// A user's global role and per-host grants combine under a fixed
// action → minimum-level table; decisions are cached per
// (user, action, host) with a bounded TTL and invalidated on any
// grant change.
package permission
