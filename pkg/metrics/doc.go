/*
Package metrics provides Prometheus metrics collection and exposition for
Dockfleet.

All metrics are registered on the default registry at package init and
exposed through Handler for scraping. Gauges track instant state (live
engine handles, active streams, breaker modes), counters track monotonic
totals (dial attempts, evictions, delivered entries), and histograms
track API and executor latency.

The package also carries the component health registry behind /health,
/ready, and /live: long-running components report their status through
RegisterComponent and UpdateComponent, and readiness requires the
storage, connection manager, and API components to be healthy.
*/
package metrics
