/*
Package connmgr owns every live engine connection in the process.

For each host id the manager holds at most one engine handle, created
lazily on first use: credentials are decrypted, the transport dialer
probes the engine, and the handle is inserted into the registry. A
global mutex protects the registry map and a per-host mutex serializes
creation, so concurrent first-time callers never race to a duplicate
handle.

Every outbound engine call runs through the host's circuit breaker via
Do. Only transport errors count against the breaker; a not-found or
validation error from the engine is the caller's problem, not a health
signal.

A background loop re-pings handles whose last successful health check
is older than the configured interval. A failed ping evicts the handle
and marks the host unhealthy in storage; the next caller redials.
*/
package connmgr
