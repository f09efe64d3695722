// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-securekey.
//
// go-securekey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for go-securekey.
// It exposes the connection state machine, connect attempts and waits,
// endpoint deaths, remote call latencies and facade operation outcomes.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all securekey metrics
	Namespace = "securekey"

	// Label names
	LabelOperation  = "operation"
	LabelStatus     = "status"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"
	LabelFrom       = "from"
	LabelTo         = "to"
	LabelTrigger    = "trigger"
	LabelOutcome    = "outcome"

	// Status values
	StatusSuccess     = "success"
	StatusError       = "error"
	StatusUnavailable = "unavailable"

	// Connect attempt triggers
	TriggerCaller    = "caller"
	TriggerReconnect = "reconnect"

	// Operation names
	OpGenerateGlobalKey = "generate_global_key"
	OpRemoveGlobalKey   = "remove_global_key"
	OpHasGlobalKey      = "has_global_key"
	OpExportGlobalKey   = "export_global_key"
	OpGenerateAuthKey   = "generate_auth_key"
	OpRemoveAuthKey     = "remove_auth_key"
	OpHasAuthKey        = "has_auth_key"
	OpExportAuthKey     = "export_auth_key"
	OpInitSign          = "init_sign"
	OpFinishSign        = "finish_sign"
	OpVersion           = "version"
)

var (
	// OperationsTotal tracks facade operations by name and outcome.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of secure key operations by name and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// OperationDuration tracks facade operation latency in seconds,
	// including any wait for the connection.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of secure key operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{LabelOperation},
	)

	// RemoteCallsTotal tracks individual remote calls by method and status.
	RemoteCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "remote",
			Name:      "calls_total",
			Help:      "Total number of remote calls by method and status",
		},
		[]string{LabelMethod, LabelStatus},
	)

	// RemoteCallDuration tracks remote call latency in seconds.
	RemoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "remote",
			Name:      "call_duration_seconds",
			Help:      "Duration of remote calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// ConnectionState is the current connection state (0 disconnected,
	// 1 connecting, 2 connected).
	ConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "connection",
			Name:      "state",
			Help:      "Current connection state (0 disconnected, 1 connecting, 2 connected)",
		},
	)

	// StateTransitionsTotal counts state machine transitions.
	StateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "connection",
			Name:      "transitions_total",
			Help:      "Total number of connection state transitions",
		},
		[]string{LabelFrom, LabelTo},
	)

	// ConnectAttemptsTotal counts connect requests issued to the platform.
	ConnectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "connection",
			Name:      "attempts_total",
			Help:      "Total number of connect requests by trigger",
		},
		[]string{LabelTrigger},
	)

	// ConnectWaitsTotal counts callers blocked on a connect attempt by how
	// their wait ended.
	ConnectWaitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "connection",
			Name:      "waits_total",
			Help:      "Total number of connection waits by outcome",
		},
		[]string{LabelOutcome},
	)

	// EndpointDeathsTotal counts remote endpoint deaths.
	EndpointDeathsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "connection",
			Name:      "endpoint_deaths_total",
			Help:      "Total number of remote endpoint deaths",
		},
	)

	// GRPCRequestsTotal tracks client gRPC requests by method and status code.
	GRPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "grpc",
			Name:      "requests_total",
			Help:      "Total number of gRPC requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// GRPCRequestDuration tracks client gRPC request latency in seconds.
	GRPCRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "grpc",
			Name:      "request_duration_seconds",
			Help:      "Duration of gRPC requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordOperation records a facade operation with its duration and status.
//
// Example:
//
//	start := time.Now()
//	err := client.GenerateGlobalKey(ctx)
//	status := metrics.StatusSuccess
//	if err != nil {
//	    status = metrics.StatusError
//	}
//	metrics.RecordOperation(metrics.OpGenerateGlobalKey, status, time.Since(start).Seconds())
func RecordOperation(operation, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordRemoteCall records one remote call. A zero duration means the call
// never reached a channel and no latency sample is taken.
func RecordRemoteCall(method, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	RemoteCallsTotal.WithLabelValues(method, status).Inc()
	if duration > 0 {
		RemoteCallDuration.WithLabelValues(method).Observe(duration)
	}
}

// RecordGRPCRequest records a client gRPC request with its duration and status.
func RecordGRPCRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	GRPCRequestsTotal.WithLabelValues(method, statusCode).Inc()
	GRPCRequestDuration.WithLabelValues(method).Observe(duration)
}

// RecordTransition records a state change and updates the state gauge.
func RecordTransition(from, to string, toValue int) {
	if !enabled.Load() {
		return
	}
	StateTransitionsTotal.WithLabelValues(from, to).Inc()
	ConnectionState.Set(float64(toValue))
}

// RecordConnectAttempt records a connect request issued to the platform.
func RecordConnectAttempt(trigger string) {
	if !enabled.Load() {
		return
	}
	ConnectAttemptsTotal.WithLabelValues(trigger).Inc()
}

// RecordConnectWait records how a caller's wait for a connection ended.
func RecordConnectWait(outcome string) {
	if !enabled.Load() {
		return
	}
	ConnectWaitsTotal.WithLabelValues(outcome).Inc()
}

// RecordEndpointDeath records a remote endpoint death.
func RecordEndpointDeath() {
	if !enabled.Load() {
		return
	}
	EndpointDeathsTotal.Inc()
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
