package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet metrics
	HostsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dockfleet_hosts_total",
			Help: "Total number of hosts by health status",
		},
		[]string{"health"},
	)

	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dockfleet_connections_active",
			Help: "Number of live engine handles held by the connection manager",
		},
	)

	ConnectionsDialed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dockfleet_connections_dialed_total",
			Help: "Total number of dial attempts by connection kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	ConnectionsEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dockfleet_connections_evicted_total",
			Help: "Total number of engine handles evicted after failed health checks",
		},
	)

	// Breaker metrics
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dockfleet_breaker_state",
			Help: "Circuit breaker state per host (0 = closed, 1 = half_open, 2 = open)",
		},
		[]string{"host"},
	)

	BreakerRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dockfleet_breaker_rejections_total",
			Help: "Total number of calls rejected while a breaker was open",
		},
	)

	// Streaming metrics
	StreamsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dockfleet_streams_active",
			Help: "Number of active upstreams by source type",
		},
		[]string{"source"},
	)

	StreamSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dockfleet_stream_subscribers",
			Help: "Total number of attached stream subscribers",
		},
	)

	SubscribersEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dockfleet_stream_subscribers_evicted_total",
			Help: "Total number of subscribers evicted for not keeping up",
		},
	)

	EntriesDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dockfleet_stream_entries_delivered_total",
			Help: "Total number of normalized entries delivered to subscribers",
		},
	)

	ExecSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dockfleet_exec_sessions_active",
			Help: "Number of open interactive exec sessions",
		},
	)

	EventsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dockfleet_events_delivered_total",
			Help: "Total number of engine events delivered to subscribers",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dockfleet_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dockfleet_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Executor metrics
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dockfleet_operations_total",
			Help: "Total number of executor operations by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dockfleet_operation_duration_seconds",
			Help:    "Executor operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(HostsTotal)
	prometheus.MustRegister(ConnectionsActive)
	prometheus.MustRegister(ConnectionsDialed)
	prometheus.MustRegister(ConnectionsEvicted)
	prometheus.MustRegister(BreakerState)
	prometheus.MustRegister(BreakerRejections)
	prometheus.MustRegister(StreamsActive)
	prometheus.MustRegister(StreamSubscribers)
	prometheus.MustRegister(SubscribersEvicted)
	prometheus.MustRegister(EntriesDelivered)
	prometheus.MustRegister(ExecSessionsActive)
	prometheus.MustRegister(EventsDelivered)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(OperationsTotal)
	prometheus.MustRegister(OperationDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
