// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package stats

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "mcpgate"

// Metrics exposes tool call counters in the Prometheus format.
type Metrics struct {
	registry  *prometheus.Registry
	calls     *prometheus.CounterVec
	errors    *prometheus.CounterVec
	durations *prometheus.HistogramVec
	connected prometheus.Gauge
}

// NewMetrics creates a Metrics on its own registry. Go runtime and process
// collectors are included when includeRuntime is set.
func NewMetrics(includeRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls routed to a backend.",
		}, []string{"server", "tool"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tool_call_errors_total",
			Help:      "Tool calls that failed or returned an error result.",
		}, []string{"server", "tool"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Duration of routed tool calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"server"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connected_backends",
			Help:      "Backends with a live connection.",
		}),
	}
	m.registry.MustRegister(m.calls, m.errors, m.durations, m.connected)
	if includeRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// ObserveCall counts one tool call.
func (m *Metrics) ObserveCall(serverID, tool string, d time.Duration, isError bool) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(serverID, tool).Inc()
	if isError {
		m.errors.WithLabelValues(serverID, tool).Inc()
	}
	m.durations.WithLabelValues(serverID).Observe(d.Seconds())
}

// SetConnected sets the connected backends gauge.
func (m *Metrics) SetConnected(n int) {
	if m == nil {
		return
	}
	m.connected.Set(float64(n))
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
