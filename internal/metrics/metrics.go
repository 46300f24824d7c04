// Package metrics exposes Prometheus counters for dispatch activity, tool
// execution and transport traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. It satisfies the dispatch loop's
// MetricsSink interface.
type Metrics struct {
	registry *prometheus.Registry

	ToolExecutionsTotal   *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec

	DispatchTurnsTotal   *prometheus.CounterVec
	DispatchCyclesPerTurn prometheus.Histogram

	CustomToolsLoaded prometheus.Gauge

	MessagesReceivedTotal prometheus.Counter
	MessagesSentTotal     prometheus.Counter
	TransportErrorsTotal  prometheus.Counter
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ToolExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_executions_total",
				Help: "Total tool invocations by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		ToolExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_execution_duration_seconds",
				Help:    "Tool invocation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),

		DispatchTurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_turns_total",
				Help: "Completed dispatch turns by outcome",
			},
			[]string{"outcome"},
		),
		DispatchCyclesPerTurn: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dispatch_cycles_per_turn",
				Help:    "Plan/execute cycles used per turn",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 20},
			},
		),

		CustomToolsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "custom_tools_loaded",
				Help: "Custom tools in the current registry snapshot",
			},
		),

		MessagesReceivedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "transport_messages_received_total",
				Help: "Messages received from the transport",
			},
		),
		MessagesSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "transport_messages_sent_total",
				Help: "Messages sent through the transport",
			},
		),
		TransportErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "transport_errors_total",
				Help: "Transport-level errors",
			},
		),
	}

	registry.MustRegister(
		m.ToolExecutionsTotal,
		m.ToolExecutionDuration,
		m.DispatchTurnsTotal,
		m.DispatchCyclesPerTurn,
		m.CustomToolsLoaded,
		m.MessagesReceivedTotal,
		m.MessagesSentTotal,
		m.TransportErrorsTotal,
	)
	return m
}

// RecordToolExecution implements dispatch.MetricsSink.
func (m *Metrics) RecordToolExecution(tool, outcome string, duration time.Duration) {
	m.ToolExecutionsTotal.WithLabelValues(tool, outcome).Inc()
	m.ToolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordDispatchTurn implements dispatch.MetricsSink.
func (m *Metrics) RecordDispatchTurn(outcome string, cycles int) {
	m.DispatchTurnsTotal.WithLabelValues(outcome).Inc()
	m.DispatchCyclesPerTurn.Observe(float64(cycles))
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Serve starts the scrape endpoint on addr in a background goroutine.
func (m *Metrics) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go srv.ListenAndServe()
	return srv
}

// FormatPort renders a port as a listen address.
func FormatPort(port int) string {
	return ":" + strconv.Itoa(port)
}
