package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "securechat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "securechat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "securechat_messages_appended_total",
			Help: "Total messages appended",
		},
		[]string{"type"}, // "text", "image" or "survey-reference"
	)

	RoomsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "securechat_rooms_created_total",
			Help: "Total rooms created",
		},
		[]string{"type"}, // "direct" or "case"
	)

	Reconciliations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "securechat_reconciliations_total",
			Help: "Total room-open reconciliations",
		},
	)

	UnreadSweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "securechat_unread_sweeps_total",
			Help: "Total background unread counter sweeps",
		},
	)

	Heartbeats = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "securechat_presence_heartbeats_total",
			Help: "Total presence heartbeats",
		},
	)

	// Sync layer metrics
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "securechat_active_sessions",
			Help: "Currently connected realtime sessions",
		},
	)

	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "securechat_active_subscriptions",
			Help: "Currently live sync subscriptions",
		},
	)

	DroppedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "securechat_dropped_frames_total",
			Help: "Frames dropped on slow websocket clients",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "securechat_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	// Infrastructure metrics
	MongoLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "securechat_mongo_latency_seconds",
			Help:    "MongoDB operation latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)

	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "securechat_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)
)
