package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// gRPC metrics
	GRPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "status"},
	)

	// Dunning metrics
	DunningOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dunning_outcomes_total",
			Help: "Total number of dunning runs by outcome",
		},
		[]string{"outcome"},
	)

	DunningRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dunning_run_duration_seconds",
			Help:    "Duration of one dunning run including downstream calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"failure_class"},
	)

	// Settings cache metrics
	SettingsCacheHit = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "settings_cache_hit_total",
			Help: "Total number of dunning settings cache hits",
		},
	)

	SettingsCacheMiss = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "settings_cache_miss_total",
			Help: "Total number of dunning settings cache misses",
		},
	)

	// Commerce API metrics
	CommerceAPICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commerce_api_calls_total",
			Help: "Total number of commerce API calls",
		},
		[]string{"operation", "status"},
	)

	CommerceAPIDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "commerce_api_duration_seconds",
			Help:    "Commerce API call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Notification metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of notification sends",
		},
		[]string{"audience", "template", "status"},
	)

	// Webhook metrics
	WebhookReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_received_total",
			Help: "Total number of webhooks received",
		},
		[]string{"topic", "status"},
	)

	// Store metrics
	TrackerStoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracker_store_duration_seconds",
			Help:    "Dunning tracker store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Redis metrics
	RedisOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total number of Redis operations",
		},
		[]string{"operation", "status"},
	)

	// Event metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of outcome events published",
		},
		[]string{"topic", "status"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors",
		},
		[]string{"type", "component"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordGRPCRequest records a gRPC request
func RecordGRPCRequest(method, status string) {
	GRPCRequestsTotal.WithLabelValues(method, status).Inc()
}

// RecordDunningOutcome records the outcome of one dunning run
func RecordDunningOutcome(outcome, failureClass string, duration time.Duration) {
	DunningOutcomes.WithLabelValues(outcome).Inc()
	DunningRunDuration.WithLabelValues(failureClass).Observe(duration.Seconds())
}

// RecordSettingsCacheHit records a settings cache hit
func RecordSettingsCacheHit() {
	SettingsCacheHit.Inc()
}

// RecordSettingsCacheMiss records a settings cache miss
func RecordSettingsCacheMiss() {
	SettingsCacheMiss.Inc()
}

// RecordCommerceAPICall records a commerce API call
func RecordCommerceAPICall(operation, status string, duration time.Duration) {
	CommerceAPICalls.WithLabelValues(operation, status).Inc()
	CommerceAPIDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordNotification records a customer or merchant notification
func RecordNotification(audience, template, status string) {
	NotificationsSent.WithLabelValues(audience, template, status).Inc()
}

// RecordWebhookReceived records a webhook reception
func RecordWebhookReceived(topic, status string) {
	WebhookReceived.WithLabelValues(topic, status).Inc()
}

// RecordTrackerStoreOperation records a tracker store call
func RecordTrackerStoreOperation(operation string, duration time.Duration) {
	TrackerStoreDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRedisOperation records a Redis operation
func RecordRedisOperation(operation, status string) {
	RedisOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordEventPublished records an outcome event publish
func RecordEventPublished(topic, status string) {
	EventsPublished.WithLabelValues(topic, status).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	ErrorsTotal.WithLabelValues(errorType, component).Inc()
}
