/*
Package shell mediates interactive exec sessions between a caller's
bidirectional frame channel and an engine exec socket.

The caller speaks two framings on one channel: binary frames are raw
terminal bytes forwarded verbatim in both directions, and text frames
are JSON control messages. The only recognized control is resize, which
is translated to the engine's exec-resize call out-of-band; unrecognized
text is forwarded to the engine as if it were binary.

A session runs one read goroutine per direction. Either side closing
cancels both directions and disposes of the exec socket.
*/
package shell
