// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// PipelineDuration tracks end-to-end processing time of one inbound message.
	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_duration_seconds",
			Help:    "Inbound message processing duration",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"channel", "outcome"},
	)

	// LockWait tracks time spent waiting for the per-sender lock. It is not
	// part of PipelineDuration.
	LockWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_lock_wait_seconds",
			Help:    "Time waiting for the per-sender lock",
			Buckets: []float64{.001, .01, .05, .1, .5, 1, 5, 10, 30},
		},
	)

	// PipelineFailures counts messages that ended in the failed state, by the stage that broke.
	PipelineFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_failures_total",
			Help: "Inbound messages that failed, by stage",
		},
		[]string{"stage"},
	)

	// FallbacksTotal counts fixed fallback replies, by who produced them.
	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_responses_total",
			Help: "Fallback replies sent instead of a generated answer",
		},
		[]string{"source"},
	)

	// EscalationsTotal counts replies flagged for human handover.
	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalations_total",
			Help: "Replies carrying the escalate action",
		},
		[]string{"channel"},
	)

	// LeadUpdatesTotal counts lead status transitions.
	LeadUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_status_updates_total",
			Help: "Lead status transitions",
		},
		[]string{"from", "to"},
	)

	// UsersCreated counts first contacts.
	UsersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "users_created_total",
			Help: "Users created on first contact",
		},
		[]string{"channel"},
	)

	// ConversationsTotal tracks total conversations created.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"channel"},
	)

	// MessagesTotal tracks transcript appends.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total transcript messages written",
		},
		[]string{"channel", "role"},
	)

	// LLMDuration tracks generation call duration.
	LLMDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Language model call duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// RetrievalResults tracks how many snippets a knowledge search returns.
	RetrievalResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "knowledge_retrieval_results",
			Help:    "Snippets returned per knowledge search",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
	)

	// RetrievalFailures counts knowledge searches that degraded to empty.
	RetrievalFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "knowledge_retrieval_failures_total",
			Help: "Knowledge searches that failed and returned no context",
		},
	)

	// DispatchQueueDepth tracks pending tasks in the in-process dispatcher.
	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_depth",
			Help: "Inbound messages waiting for a worker",
		},
	)

	// DispatchTasksTotal counts background tasks by result.
	DispatchTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_tasks_total",
			Help: "Background message tasks by result",
		},
		[]string{"backend", "result"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMCall records metrics for a language model call.
func RecordLLMCall(provider, model, status string, duration float64, tokensIn, tokensOut int) {
	LLMDuration.WithLabelValues(provider, status).Observe(duration)
	if model == "" {
		return
	}
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}
