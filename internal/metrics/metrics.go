package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commshub_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "commshub_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	messagesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commshub_messages_created_total",
			Help: "Total messages created by channel and origin (compose, api, automation)",
		},
		[]string{"channel", "origin"},
	)

	messageTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commshub_message_transitions_total",
			Help: "Total message status transitions by target status",
		},
		[]string{"status"},
	)

	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commshub_webhook_events_total",
			Help: "Total provider webhook callbacks by reported status",
		},
		[]string{"status"},
	)

	automationExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commshub_automation_executions_total",
			Help: "Total automation executions resolved by outcome",
		},
		[]string{"outcome"},
	)

	campaignTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commshub_campaign_transitions_total",
			Help: "Total campaign status transitions by target status",
		},
		[]string{"status"},
	)

	idempotencyHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "commshub_idempotency_hits_total",
			Help: "Send requests served from the idempotency cache",
		},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commshub_rate_limit_rejections_total",
			Help: "Requests rejected by the per-tenant rate limiter",
		},
		[]string{"tenant_id"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordMessageCreated records a new outbound message
func RecordMessageCreated(channel, origin string) {
	messagesCreated.WithLabelValues(channel, origin).Inc()
}

// RecordMessageTransition records a message status change
func RecordMessageTransition(status string) {
	messageTransitions.WithLabelValues(status).Inc()
}

// RecordWebhookEvent records an inbound provider callback
func RecordWebhookEvent(status string) {
	webhookEvents.WithLabelValues(status).Inc()
}

// RecordAutomationExecution records an automation firing outcome
func RecordAutomationExecution(outcome string) {
	automationExecutions.WithLabelValues(outcome).Inc()
}

// RecordCampaignTransition records a campaign status change
func RecordCampaignTransition(status string) {
	campaignTransitions.WithLabelValues(status).Inc()
}

// RecordIdempotencyHit records a cache hit for idempotency
func RecordIdempotencyHit() {
	idempotencyHits.Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection(tenantID string) {
	rateLimitRejections.WithLabelValues(tenantID).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
