// Package engine wraps the Docker SDK client for a single host. Every
// operation returns normalized records carrying the originating host id,
// and every engine error is translated into the shared error taxonomy.
// Raw log, stats, and event streams are exposed for the streaming layer
// to consume; the engine never buffers them itself.
package engine
