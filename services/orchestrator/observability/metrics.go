// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the companion service.
//
// # Metrics
//
//   - aleutian_companion_turns_total{kind}
//   - aleutian_companion_conditions_total{condition}
//   - aleutian_companion_escalations_total
//   - aleutian_companion_classifier_errors_total{reason}
//   - aleutian_companion_classifier_duration_seconds
//   - aleutian_companion_active_sessions
//   - aleutian_companion_sessions_evicted_total
//   - aleutian_companion_rate_limited_total
//
// # Usage
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewCompanionMetrics(reg)
//	responder := companion.NewResponder(engine, clf, companion.Config{Observer: metrics}, opts)
package observability

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianCare/services/classifier"
	"github.com/AleutianAI/AleutianCare/services/companion"
	"github.com/AleutianAI/AleutianCare/services/companion/condition"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "aleutian"

const companionSubsystem = "companion"

// Classifier error reasons.
const (
	ReasonUnavailable = "unavailable"
	ReasonMalformed   = "malformed"
	ReasonOther       = "other"
)

// CompanionMetrics holds all Prometheus metrics for conversation turns.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type CompanionMetrics struct {
	// TurnsTotal counts turns by the handler that answered them.
	TurnsTotal *prometheus.CounterVec

	// ConditionsTotal counts classified turns by resulting condition.
	ConditionsTotal *prometheus.CounterVec

	// EscalationsTotal counts counselor suggestions.
	EscalationsTotal prometheus.Counter

	// ClassifierErrorsTotal counts failed classifier calls by reason.
	ClassifierErrorsTotal *prometheus.CounterVec

	// ClassifierDurationSeconds measures classifier latency, failures included.
	ClassifierDurationSeconds prometheus.Histogram

	// ActiveSessions is the number of sessions held by the store.
	ActiveSessions prometheus.Gauge

	// SessionsEvictedTotal counts sessions removed by the idle sweeper.
	SessionsEvictedTotal prometheus.Counter

	// RateLimitedTotal counts requests rejected by the rate limiter.
	RateLimitedTotal prometheus.Counter
}

// NewCompanionMetrics creates and registers every metric with reg.
//
// # Description
//
// Label values known up front (turn kinds, conditions, error reasons) are
// pre-initialized so they are exported at zero before the first turn.
//
// # Inputs
//
//   - reg: Registerer to use. Nil means prometheus.DefaultRegisterer. Tests
//     should pass a fresh prometheus.NewRegistry().
//
// # Outputs
//
//   - *CompanionMetrics: Ready for use.
//
// # Limitations
//
//   - Panics if the metrics are already registered with reg.
func NewCompanionMetrics(reg prometheus.Registerer) *CompanionMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &CompanionMetrics{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: companionSubsystem,
				Name:      "turns_total",
				Help:      "Total conversation turns by reply kind",
			},
			[]string{"kind"},
		),

		ConditionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: companionSubsystem,
				Name:      "conditions_total",
				Help:      "Total classified turns by detected condition",
			},
			[]string{"condition"},
		),

		EscalationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: companionSubsystem,
				Name:      "escalations_total",
				Help:      "Total counselor suggestions after a depressed streak",
			},
		),

		ClassifierErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: companionSubsystem,
				Name:      "classifier_errors_total",
				Help:      "Total emotion classifier failures by reason",
			},
			[]string{"reason"},
		),

		ClassifierDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: companionSubsystem,
				Name:      "classifier_duration_seconds",
				Help:      "Emotion classifier call latency in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
		),

		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: companionSubsystem,
				Name:      "active_sessions",
				Help:      "Number of conversation sessions currently held in memory",
			},
		),

		SessionsEvictedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: companionSubsystem,
				Name:      "sessions_evicted_total",
				Help:      "Total idle sessions evicted by the sweeper",
			},
		),

		RateLimitedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: companionSubsystem,
				Name:      "rate_limited_total",
				Help:      "Total requests rejected by the per-client rate limiter",
			},
		),
	}

	for _, k := range companion.Kinds {
		m.TurnsTotal.WithLabelValues(string(k))
	}
	for _, c := range condition.All {
		m.ConditionsTotal.WithLabelValues(string(c))
	}
	for _, r := range []string{ReasonUnavailable, ReasonMalformed, ReasonOther} {
		m.ClassifierErrorsTotal.WithLabelValues(r)
	}
	return m
}

// =============================================================================
// Recording Methods
// =============================================================================

// ObserveTurn implements companion.TurnObserver.
func (m *CompanionMetrics) ObserveTurn(reply companion.Reply) {
	m.TurnsTotal.WithLabelValues(string(reply.Kind)).Inc()
	if reply.Kind == companion.KindClassified {
		m.ConditionsTotal.WithLabelValues(string(reply.Condition)).Inc()
	}
	if reply.Escalated {
		m.EscalationsTotal.Inc()
	}
}

// ObserveClassification implements companion.TurnObserver.
func (m *CompanionMetrics) ObserveClassification(elapsed time.Duration, err error) {
	m.ClassifierDurationSeconds.Observe(elapsed.Seconds())
	if err != nil {
		m.ClassifierErrorsTotal.WithLabelValues(ErrorReason(err)).Inc()
	}
}

// ObserveSweep records one sweeper pass. Its signature matches
// session.Sweeper.OnSweep.
func (m *CompanionMetrics) ObserveSweep(evicted, remaining int) {
	m.SessionsEvictedTotal.Add(float64(evicted))
	m.ActiveSessions.Set(float64(remaining))
}

// SetActiveSessions sets the session gauge.
func (m *CompanionMetrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}

// RecordRateLimited counts one rejected request.
func (m *CompanionMetrics) RecordRateLimited() {
	m.RateLimitedTotal.Inc()
}

// ErrorReason maps a classifier error to its metrics label.
func ErrorReason(err error) string {
	switch {
	case errors.Is(err, classifier.ErrMalformedOutput):
		return ReasonMalformed
	case errors.Is(err, classifier.ErrUnavailable):
		return ReasonUnavailable
	default:
		return ReasonOther
	}
}

var _ companion.TurnObserver = (*CompanionMetrics)(nil)
