package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a centralized interface for the Conductor's Prometheus
// counters and histograms: task throughput, retry/replan rate, tool
// latency, LLM gateway latency, and HTTP/WS surface traffic.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.TaskCompleted("success")
//	defer metrics.ToolExecutionDuration.WithLabelValues("write_file").Observe(time.Since(start).Seconds())
type Metrics struct {
	// MissionsStarted counts missions dispatched.
	MissionsStarted prometheus.Counter

	// MissionsFinished counts missions reaching a terminal state.
	// Labels: outcome (success|failure|stopped)
	MissionsFinished *prometheus.CounterVec

	// MissionTasksTotal counts tasks completed per outcome.
	// Labels: outcome (success|failure)
	MissionTasksTotal *prometheus.CounterVec

	// MissionRetriesTotal counts per-task retry attempts.
	MissionRetriesTotal prometheus.Counter

	// MissionReplansTotal counts Replanner invocations.
	MissionReplansTotal prometheus.Counter

	// ToolExecutionCounter counts tool invocations by tool name and status.
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution latency.
	ToolExecutionDuration *prometheus.HistogramVec

	// LLMRequestDuration measures Gateway round-trip latency by role.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts Gateway calls by role and status.
	LLMRequestCounter *prometheus.CounterVec

	// NotificationsDropped counts events dropped due to client backpressure.
	NotificationsDropped prometheus.Counter

	// ActiveConnections tracks currently registered client connections.
	ActiveConnections prometheus.Gauge

	// HTTPRequestDuration measures Core API latency.
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts Core API requests.
	HTTPRequestCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus collectors. Call once at
// startup.
func NewMetrics() *Metrics {
	return &Metrics{
		MissionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aura_missions_started_total",
			Help: "Total number of missions dispatched",
		}),
		MissionsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aura_missions_finished_total",
			Help: "Total number of missions reaching a terminal state",
		}, []string{"outcome"}),
		MissionTasksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aura_mission_tasks_total",
			Help: "Total number of tasks completed by outcome",
		}, []string{"outcome"}),
		MissionRetriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aura_mission_retries_total",
			Help: "Total number of per-task retry attempts",
		}),
		MissionReplansTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aura_mission_replans_total",
			Help: "Total number of Replanner invocations",
		}),
		ToolExecutionCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aura_tool_executions_total",
			Help: "Total number of tool executions by tool name and status",
		}, []string{"tool_name", "status"}),
		ToolExecutionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aura_tool_execution_duration_seconds",
			Help:    "Duration of tool executions in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"tool_name"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aura_llm_request_duration_seconds",
			Help:    "Duration of LLM Gateway calls in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"role"}),
		LLMRequestCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aura_llm_requests_total",
			Help: "Total number of LLM Gateway calls by role and status",
		}, []string{"role", "status"}),
		NotificationsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aura_notifications_dropped_total",
			Help: "Total number of events dropped due to client backpressure",
		}),
		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "aura_active_connections",
			Help: "Current number of registered client connections",
		}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aura_http_request_duration_seconds",
			Help:    "Duration of Core API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "path", "status_code"}),
		HTTPRequestCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aura_http_requests_total",
			Help: "Total number of Core API requests",
		}, []string{"method", "path", "status_code"}),
	}
}

// TaskCompleted records a task's terminal outcome for this attempt.
func (m *Metrics) TaskCompleted(outcome string) {
	m.MissionTasksTotal.WithLabelValues(outcome).Inc()
}

// MissionFinished records a mission reaching a terminal state.
func (m *Metrics) MissionFinished(outcome string) {
	m.MissionsFinished.WithLabelValues(outcome).Inc()
}

// RecordToolExecution records one tool invocation's outcome and latency.
func (m *Metrics) RecordToolExecution(toolName, status string, duration time.Duration) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(duration.Seconds())
}

// RecordLLMRequest records one Gateway call's outcome and latency.
func (m *Metrics) RecordLLMRequest(role, status string, duration time.Duration) {
	m.LLMRequestCounter.WithLabelValues(role, status).Inc()
	m.LLMRequestDuration.WithLabelValues(role).Observe(duration.Seconds())
}

// RecordHTTPRequest records one Core API request's outcome and latency.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, duration time.Duration) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(duration.Seconds())
}
