package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "HTTP request duration, WebSocket sessions excluded",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Connection metrics
	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_live_connections",
			Help: "Connections currently registered",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_online_users",
			Help: "Users with at least one live connection",
		},
	)

	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_auth_failures_total",
			Help: "Rejected connection attempts",
		},
		[]string{"code"},
	)

	// Business metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_sent_total",
			Help: "Messages accepted and stored",
		},
		[]string{"channel_type"},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Per-connection pushes of fan-out events",
		},
		[]string{"result"}, // "ok" or "failed"
	)

	FanoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_fanout_duration_seconds",
			Help:    "Time to push one message to every live member connection",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	PagesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_pages_served_total",
			Help: "History pages returned",
		},
	)

	// Retention metrics
	RetentionEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_retention_evictions_total",
			Help: "Messages deleted to honour retention caps",
		},
		[]string{"scope"}, // "user" or "channel"
	)

	RetentionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_retention_failures_total",
			Help: "Retention passes that failed and were only logged",
		},
		[]string{"scope"},
	)

	ErrorsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_error_events_total",
			Help: "Error events sent to clients",
		},
		[]string{"code"},
	)

	// Process metrics
	ProcessCPUPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_process_cpu_percent",
			Help: "CPU usage of the relay process",
		},
	)

	ProcessMemoryPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_process_memory_percent",
			Help: "RAM usage of the relay process",
		},
	)
)
