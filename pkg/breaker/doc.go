// Package breaker implements the per-host circuit breaker gating all
// outbound engine calls: closed → open after consecutive transport
// failures, open → half_open after the recovery timeout, half_open →
// closed after consecutive probe successes. Engine-level errors never
// move the state machine.
package breaker
