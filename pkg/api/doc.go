/*
Package api exposes the control plane over HTTP. REST endpoints cover
host, container, image, volume, network, and swarm operations; log and
stats streaming, engine events, and interactive exec ride websockets
speaking the frame protocol defined in pkg/types.

Every authenticated request resolves its target host from the "host"
query parameter, falling back to the caller's default host when absent.
Authorization itself lives in the executor; the API layer only
authenticates and translates error kinds to HTTP statuses.
*/
package api
