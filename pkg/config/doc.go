// Package config loads control plane configuration from a YAML file with
// environment variable overrides. Defaults match the documented knobs:
// ring buffer 1000, stream idle TTL 300s, health check 300s, breaker
// 3 failures / 30s recovery / 2 successes.
package config
