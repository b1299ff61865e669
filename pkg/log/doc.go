// Package log wraps zerolog with a process-wide logger and child-logger
// helpers carrying the fields Dockfleet cares about (component, host_id,
// user_id, stream key). Credential plaintext must never be passed to any
// function in this package.
package log
