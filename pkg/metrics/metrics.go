// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-relyingparty.
//
// go-relyingparty is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for relying party
// operations: ceremony counters, verification latencies, replay detections,
// and HTTP request metrics.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all relying party metrics
	Namespace = "relyingparty"

	// Label names
	LabelKind       = "kind"
	LabelOperation  = "operation"
	LabelStatus     = "status"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Status values
	StatusSuccess = "success"
	StatusFailure = "failure"

	// Operation names
	OpBegin  = "begin"
	OpFinish = "finish"
)

var (
	// CeremoniesTotal tracks ceremony operations by kind (registration,
	// authentication), operation (begin, finish), and status.
	CeremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ceremonies_total",
			Help:      "Total number of ceremony operations by kind, operation, and status",
		},
		[]string{LabelKind, LabelOperation, LabelStatus},
	)

	// ReplayDetectionsTotal counts rejected assertions whose signature
	// counter did not increase. This is the audit surface for suspected
	// cloned authenticators; the HTTP response stays generic.
	ReplayDetectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "replay_detections_total",
			Help:      "Total number of assertions rejected by the signature counter policy",
		},
	)

	// VerificationDuration tracks the duration of delegate verification
	// calls in seconds by ceremony kind.
	VerificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "verification_duration_seconds",
			Help:      "Duration of authenticator response verification in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{LabelKind},
	)

	// HTTPRequestsTotal tracks the total number of HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks the duration of HTTP requests in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// PendingCeremonies tracks the number of pending ceremonies awaiting
	// a response. Updated periodically by the Collector.
	PendingCeremonies = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "pending_ceremonies",
			Help:      "Number of pending ceremonies awaiting an authenticator response",
		},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordCeremonyBegin records issued ceremony options.
//
// Parameters:
//   - kind: The ceremony kind ("registration" or "authentication")
func RecordCeremonyBegin(kind string) {
	if !enabled.Load() {
		return
	}
	CeremoniesTotal.WithLabelValues(kind, OpBegin, StatusSuccess).Inc()
}

// RecordCeremonyFinish records a completed ceremony verification.
//
// Parameters:
//   - kind: The ceremony kind ("registration" or "authentication")
//   - status: The outcome (use Status* constants)
func RecordCeremonyFinish(kind, status string) {
	if !enabled.Load() {
		return
	}
	CeremoniesTotal.WithLabelValues(kind, OpFinish, status).Inc()
}

// RecordReplayDetection counts an assertion rejected by the signature
// counter policy.
func RecordReplayDetection() {
	if !enabled.Load() {
		return
	}
	ReplayDetectionsTotal.Inc()
}

// RecordVerificationDuration records the duration of a delegate
// verification call in seconds.
func RecordVerificationDuration(kind string, duration float64) {
	if !enabled.Load() {
		return
	}
	VerificationDuration.WithLabelValues(kind).Observe(duration)
}

// RecordHTTPRequest records an HTTP request with its duration and status.
//
// Parameters:
//   - method: The HTTP method (GET, POST, etc.)
//   - statusCode: The HTTP status code as a string
//   - duration: The request duration in seconds
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// SetPendingCeremonies sets the pending ceremony gauge.
func SetPendingCeremonies(count float64) {
	if !enabled.Load() {
		return
	}
	PendingCeremonies.Set(count)
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
