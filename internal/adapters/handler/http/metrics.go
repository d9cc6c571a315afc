package http

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agenthud.router/internal/core/domain"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Action metrics
	actionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenthud_actions_total",
			Help: "Action requests by action, source and result code",
		},
		[]string{"action", "source", "result"},
	)

	authFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenthud_auth_failures_total",
			Help: "Requests rejected for a bad token",
		},
		[]string{"transport"},
	)

	// Hub metrics
	subscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agenthud_subscribers_active",
			Help: "Number of connected websocket subscribers",
		},
	)

	broadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agenthud_broadcasts_total",
			Help: "Agent updates fanned out to subscribers",
		},
	)

	subscribersPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agenthud_subscribers_pruned_total",
			Help: "Subscribers dropped because their send queue was full",
		},
	)

	// Registry metrics
	agentsRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agenthud_agents",
			Help: "Number of agents in the registry",
		},
	)

	agentsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agenthud_agents_by_status",
			Help: "Number of agents per status",
		},
		[]string{"status"},
	)

	staleAgents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agenthud_agents_stale",
			Help: "Agents that stopped reporting",
		},
	)

	// Mirror metrics
	mirrorErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenthud_mirror_errors_total",
			Help: "Failed publishes to external mirrors",
		},
		[]string{"sink"},
	)

	mirrorDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agenthud_mirror_dropped_total",
			Help: "Agent updates dropped because the mirror queue was full",
		},
	)
)

// MetricsMiddleware records HTTP request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip metrics for WebSocket upgrade requests
		if r.Header.Get("Upgrade") == "websocket" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()

		// Wrap ResponseWriter to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// MetricsHandler returns the Prometheus metrics handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordAction counts an action request by its result code.
func RecordAction(action, source, result string) {
	actionsTotal.WithLabelValues(action, source, result).Inc()
}

func recordAuthFailure(transport string) {
	authFailuresTotal.WithLabelValues(transport).Inc()
}

func setSubscribers(n int) {
	subscribersActive.Set(float64(n))
}

func recordBroadcast() {
	broadcastsTotal.Inc()
}

func recordPruned() {
	subscribersPrunedTotal.Inc()
}

// SetRegistryCounts publishes the registry size and per-status counts.
func SetRegistryCounts(total int, byStatus map[string]int) {
	agentsRegistered.Set(float64(total))
	for status, n := range byStatus {
		agentsByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// SetStaleAgents sets the number of agents considered stale.
func SetStaleAgents(n int) {
	staleAgents.Set(float64(n))
}

// RecordMirrorError counts a failed mirror publish.
func RecordMirrorError(sink string) {
	mirrorErrorsTotal.WithLabelValues(sink).Inc()
}

// RecordMirrorDropped counts an update dropped by the mirror queue.
func RecordMirrorDropped() {
	mirrorDroppedTotal.Inc()
}

// RegistryMetrics observes the registry and keeps the agent gauges
// current. It tracks statuses itself because observers may not read the
// registry while it is locked.
type RegistryMetrics struct {
	mu     sync.Mutex
	status map[string]string
}

func NewRegistryMetrics() *RegistryMetrics {
	return &RegistryMetrics{status: make(map[string]string)}
}

func (m *RegistryMetrics) OnAgentChange(agent domain.Agent) {
	m.mu.Lock()
	m.status[agent.ID] = string(agent.Status)
	byStatus := make(map[string]int, len(domain.Statuses))
	for _, s := range domain.Statuses {
		byStatus[string(s)] = 0
	}
	for _, s := range m.status {
		byStatus[s]++
	}
	total := len(m.status)
	m.mu.Unlock()

	SetRegistryCounts(total, byStatus)
}
