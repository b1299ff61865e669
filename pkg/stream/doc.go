/*
Package stream multiplexes engine log and stats streams to many callers.

For each (source type, resource id) key there is at most one upstream:
a provider goroutine reading the engine's native stream and normalizing
it into tagged frames. Subscribers attach to the active stream and
receive a replay of the most recent buffered entries followed by live
entries, exactly once and in production order. A fixed-size ring buffer
per stream caps replay memory; a bounded per-subscriber queue decouples
slow consumers, which are evicted rather than allowed to stall the
upstream.

When the last subscriber leaves, the stream idles and is torn down by a
janitor after the configured TTL. When the upstream fails mid-flight,
subscribers receive one terminal error frame and are closed. Streams
that target the control plane's own container are degraded to a single
informational entry plus heartbeats; no upstream is opened for them.
*/
package stream
