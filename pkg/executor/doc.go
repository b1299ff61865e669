/*
Package executor is the single entry point for every operation a caller
can perform against the fleet. Each operation follows the same path:
resolve the target host (falling back to the caller's default host when
none is named), authorize the caller for the specific action, then run
the engine call through the connection manager's circuit breaker.

Authorization happens here and only here. The connection manager,
multiplexer, and stream providers all assume their caller has already
been authorized; a forbidden caller never reaches an engine socket.

Streaming operations do not return values; they hand back a live
subscription from the multiplexer or event broadcaster, and interactive
exec sessions block inside the shell mediator until torn down.
*/
package executor
