// Package metrics exposes Prometheus counters for upstream attempts, retries
// and completion outcomes.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/router-for-me/CursorProxyAPI/internal/interfaces"
)

// LLMBuckets covers request latencies from 100ms to two minutes.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	upstreamAttempts *prometheus.CounterVec
	retries          prometheus.Counter
	completions      *prometheus.CounterVec
	toolCalls        prometheus.Counter
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	activeStreams    prometheus.Gauge
}

// New registers the proxy collectors together with the Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		upstreamAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cursorproxy_upstream_attempts_total",
				Help: "Upstream attempts by outcome (ok, domain, transport, unknown)",
			},
			[]string{"outcome"},
		),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "cursorproxy_retries_total",
			Help: "Attempts that failed and were retried",
		}),
		completions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cursorproxy_completions_total",
				Help: "Finished translations by mode and finish reason",
			},
			[]string{"mode", "finish_reason"},
		),
		toolCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "cursorproxy_tool_calls_total",
			Help: "Tool calls recognised in upstream text",
		}),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cursorproxy_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cursorproxy_request_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: LLMBuckets,
			},
			[]string{"route"},
		),
		activeStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cursorproxy_streaming_connections_active",
			Help: "Open SSE responses",
		}),
	}
}

// ObserveAttempt records one finished upstream attempt; failed attempts that
// are not final count as retries.
func (m *Metrics) ObserveAttempt(kind interfaces.Kind, final bool) {
	m.upstreamAttempts.WithLabelValues(kind.String()).Inc()
	if kind != interfaces.KindUnknown && !final {
		m.retries.Inc()
	}
}

// ObserveSuccess records an attempt that produced a value.
func (m *Metrics) ObserveSuccess() {
	m.upstreamAttempts.WithLabelValues("ok").Inc()
}

// ObserveCompletion records the outcome of one translation.
func (m *Metrics) ObserveCompletion(mode, finishReason string, toolCalls int) {
	m.completions.WithLabelValues(mode, finishReason).Inc()
	if toolCalls > 0 {
		m.toolCalls.Add(float64(toolCalls))
	}
}

// ObserveRequest records a served HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// StreamOpened and StreamClosed track open SSE responses.
func (m *Metrics) StreamOpened() { m.activeStreams.Inc() }

func (m *Metrics) StreamClosed() { m.activeStreams.Dec() }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
