/*
Package types defines the core data structures used throughout Dockfleet.

This package contains all fundamental types that represent Dockfleet's domain
model: host records and their connection kinds, encrypted credential items,
users and per-host permission grants, normalized log entries and stream keys,
engine events with filters, and the normalized records returned by every
Docker operation.

All types are designed to be:
  - Serializable (JSON for the API and BoltDB storage)
  - Free of behavior beyond small pure helpers (Role.Covers, EventFilter.Matches)
  - The only vocabulary shared between packages; no package leaks Docker SDK
    types past the engine adapter
*/
package types
