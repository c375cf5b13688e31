// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the dispute service.
//
// # Description
//
// This package implements Prometheus metrics for monitoring dispute analysis
// turns. Metrics include:
//   - Turn counters (by outcome status)
//   - Decision counters (by verdict, forced or agent-made)
//   - Refund counters (by trigger path and result)
//   - Turn latency histograms
//   - Live session gauge and expiry counter
//
// # Integration
//
// Metrics are exposed via /metrics endpoint. Use with Prometheus + Grafana
// for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// All recorder methods are nil-safe so collaborators can run without metrics
// in tests.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "coinchase"

// Subsystem for dispute metrics
const disputeSubsystem = "dispute"

// DisputeMetrics holds all Prometheus metrics for dispute analysis.
//
// Initialize once at startup via InitMetrics(); duplicate registration
// panics.
type DisputeMetrics struct {
	// TurnsTotal counts analysis turns by outcome status.
	// Labels: status (needs_evidence, completed, analyzing)
	TurnsTotal *prometheus.CounterVec

	// DecisionsTotal counts final verdicts.
	// Labels: decision (APPROVE_REFUND, DENY_REFUND), forced (true, false)
	DecisionsTotal *prometheus.CounterVec

	// RefundsTotal counts refund attempts by trigger path and result.
	// Labels: trigger (decision, analyzing), result (success, error)
	RefundsTotal *prometheus.CounterVec

	// TurnDurationSeconds measures wall time of one analysis turn,
	// agent call included.
	// Labels: status
	TurnDurationSeconds *prometheus.HistogramVec

	// ActiveSessions tracks currently live negotiation sessions.
	ActiveSessions prometheus.Gauge

	// SessionsExpiredTotal counts sessions removed by TTL expiry.
	SessionsExpiredTotal prometheus.Counter

	// ErrorsTotal counts turn failures by type.
	// Labels: error_code (llm_error, session_not_found, turn_limit, internal)
	ErrorsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of DisputeMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *DisputeMetrics

// InitMetrics creates and registers all Prometheus metrics. Call once at
// application startup.
func InitMetrics() *DisputeMetrics {
	DefaultMetrics = &DisputeMetrics{
		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: disputeSubsystem,
				Name:      "turns_total",
				Help:      "Total analysis turns by outcome status",
			},
			[]string{"status"},
		),

		DecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: disputeSubsystem,
				Name:      "decisions_total",
				Help:      "Total final verdicts by decision and whether it was forced",
			},
			[]string{"decision", "forced"},
		),

		RefundsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: disputeSubsystem,
				Name:      "refunds_total",
				Help:      "Total refund attempts by trigger path and result",
			},
			[]string{"trigger", "result"},
		),

		TurnDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: disputeSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "Wall time of one analysis turn including the agent call",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"status"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: disputeSubsystem,
				Name:      "active_sessions",
				Help:      "Number of currently live negotiation sessions",
			},
		),

		SessionsExpiredTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: disputeSubsystem,
				Name:      "sessions_expired_total",
				Help:      "Total sessions removed by TTL expiry",
			},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: disputeSubsystem,
				Name:      "errors_total",
				Help:      "Total turn failures by error type",
			},
			[]string{"error_code"},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Error Codes
// =============================================================================

// ErrorCode represents a categorized error type for metrics.
type ErrorCode string

const (
	// ErrorCodeLLMError indicates the analysis agent call failed.
	ErrorCodeLLMError ErrorCode = "llm_error"

	// ErrorCodeSessionNotFound indicates an unknown or expired session id.
	ErrorCodeSessionNotFound ErrorCode = "session_not_found"

	// ErrorCodeTurnLimit indicates a continuation past the turn bound.
	ErrorCodeTurnLimit ErrorCode = "turn_limit"

	// ErrorCodeInternal indicates an internal server error.
	ErrorCodeInternal ErrorCode = "internal"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordTurn records a completed analysis turn and its duration.
func (m *DisputeMetrics) RecordTurn(status string, seconds float64) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(status).Inc()
	m.TurnDurationSeconds.WithLabelValues(status).Observe(seconds)
}

// RecordDecision records a final verdict.
func (m *DisputeMetrics) RecordDecision(decision string, forced bool) {
	if m == nil {
		return
	}
	label := "false"
	if forced {
		label = "true"
	}
	m.DecisionsTotal.WithLabelValues(decision, label).Inc()
}

// RecordRefund records one refund attempt.
func (m *DisputeMetrics) RecordRefund(trigger string, success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "error"
	}
	m.RefundsTotal.WithLabelValues(trigger, result).Inc()
}

// RecordError records a turn failure.
func (m *DisputeMetrics) RecordError(code ErrorCode) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(string(code)).Inc()
}

// SessionOpened increments the live session gauge.
func (m *DisputeMetrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionClosed decrements the live session gauge.
func (m *DisputeMetrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// SessionsExpired adds to the expiry counter, typically from the sweeper.
func (m *DisputeMetrics) SessionsExpired(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.SessionsExpiredTotal.Add(float64(count))
}
