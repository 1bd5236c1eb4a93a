// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the orchestrator.
//
// # Description
//
// Metrics cover the chat request surface, session cache behavior, and
// answer streaming:
//   - Request counters (by endpoint, status, error kind)
//   - Session cache gauges and construction/eviction counters
//   - Latency histograms (answer generation, stream duration)
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "shelterchat"

// Subsystem for orchestrator metrics
const orchestratorSubsystem = "orchestrator"

// ChatMetrics holds all Prometheus metrics for chat operations.
//
// Initialize once at startup via InitMetrics(); duplicate registration
// panics.
type ChatMetrics struct {
	// RequestsTotal counts chat requests by endpoint and status.
	// Labels: endpoint (create_chat, user_question, get_history,
	// delete_history), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// ErrorsTotal counts errors by endpoint and kind.
	// Labels: endpoint, error_code (unauthorized, validation,
	// construction, retrieval, memory_append, llm_error, internal)
	ErrorsTotal *prometheus.CounterVec

	// ActiveSessions tracks the number of cached session states.
	ActiveSessions prometheus.Gauge

	// SessionsBuiltTotal counts successful session constructions.
	SessionsBuiltTotal prometheus.Counter

	// SessionsEvictedTotal counts sessions dropped by invalidation or the
	// idle reaper.
	SessionsEvictedTotal prometheus.Counter

	// AnswerLatencySeconds measures full answer generation latency,
	// retrieval and persistence included.
	AnswerLatencySeconds prometheus.Histogram

	// StreamDurationSeconds measures the paced delivery phase by status.
	// Labels: status (success, client_disconnect)
	StreamDurationSeconds *prometheus.HistogramVec

	// StreamChunksTotal counts answer chunks written to clients.
	StreamChunksTotal prometheus.Counter

	// ClientDisconnectsTotal counts clients that went away mid-stream.
	ClientDisconnectsTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance of ChatMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *ChatMetrics

// InitMetrics creates and registers all Prometheus metrics. Call once at
// application startup.
func InitMetrics() *ChatMetrics {
	DefaultMetrics = &ChatMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "requests_total",
				Help:      "Total chat requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "errors_total",
				Help:      "Total chat errors by endpoint and kind",
			},
			[]string{"endpoint", "error_code"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "active_sessions",
				Help:      "Number of currently cached session states",
			},
		),

		SessionsBuiltTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "sessions_built_total",
				Help:      "Total successful session constructions",
			},
		),

		SessionsEvictedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "sessions_evicted_total",
				Help:      "Total sessions dropped by invalidation or idle eviction",
			},
		),

		AnswerLatencySeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "answer_latency_seconds",
				Help:      "Full answer generation latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
		),

		StreamDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Paced answer delivery duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"status"},
		),

		StreamChunksTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "stream_chunks_total",
				Help:      "Total answer chunks written to clients",
			},
		),

		ClientDisconnectsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total clients that disconnected mid-stream",
			},
		),
	}

	return DefaultMetrics
}

// ErrorCode represents a categorized error kind for metrics.
type ErrorCode string

const (
	// ErrorCodeUnauthorized indicates a rejected credential.
	ErrorCodeUnauthorized ErrorCode = "unauthorized"

	// ErrorCodeValidation indicates request validation failure.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeConstruction indicates a failed session build.
	ErrorCodeConstruction ErrorCode = "construction"

	// ErrorCodeRetrieval indicates a retrieval backend failure.
	ErrorCodeRetrieval ErrorCode = "retrieval"

	// ErrorCodeMemoryAppend indicates the answer could not be persisted.
	ErrorCodeMemoryAppend ErrorCode = "memory_append"

	// ErrorCodeLLMError indicates a model API failure.
	ErrorCodeLLMError ErrorCode = "llm_error"

	// ErrorCodeInternal indicates an internal server error.
	ErrorCodeInternal ErrorCode = "internal"
)

// Endpoint represents a chat endpoint for metrics labeling.
type Endpoint string

const (
	EndpointCreateChat    Endpoint = "create_chat"
	EndpointUserQuestion  Endpoint = "user_question"
	EndpointGetHistory    Endpoint = "get_history"
	EndpointDeleteHistory Endpoint = "delete_history"
)
