// Package obsmetrics provides the process's ambient Prometheus metrics:
// operational signal about the pipeline itself (dispatch throughput, LLM
// call latency, bus backpressure, HTTP traffic), independent of the
// domain event stream pkg/obsbus exposes to tenants. Nothing in spec.md
// requires this; it is the ambient stack every service in this corpus
// carries alongside its functional code.
package obsmetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentgov/pipeline/pkg/config"
)

// Metrics holds every Prometheus collector the pipeline records against.
// A nil *Metrics is valid and every Record/Set/Inc/Observe method on it is
// a no-op, so callers can hold an unconditional field and skip a nil
// check at every call site; only the owner that decides whether metrics
// are enabled needs to branch.
type Metrics struct {
	registry *prometheus.Registry

	dispatchCalls    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec

	llmCalls        *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	llmTokensInput  *prometheus.CounterVec
	llmTokensOutput *prometheus.CounterVec

	busEventsPushed  prometheus.Counter
	busEventsDropped prometheus.Counter
	busSubscribers   prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New builds a Metrics instance, or returns nil if telemetry metrics are
// disabled. namespace scopes every collector name (e.g. "govpipe").
func New(cfg config.TelemetryConfig, namespace string) *Metrics {
	if !cfg.MetricsEnabled {
		return nil
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.dispatchCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "calls_total",
			Help:      "Total number of Dispatcher.Dispatch invocations.",
		},
		[]string{"agent_slug", "mode", "status"},
	)
	m.dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Dispatcher.Dispatch wall-clock duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~410s
		},
		[]string{"agent_slug", "mode"},
	)

	m.llmCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total number of LLM Gateway provider calls.",
		},
		[]string{"provider", "model", "status"},
	)
	m.llmCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "LLM provider call duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~204s
		},
		[]string{"provider", "model"},
	)
	m.llmTokensInput = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_input_total",
			Help:      "Total prompt tokens consumed, as reported by the provider.",
		},
		[]string{"provider", "model"},
	)
	m.llmTokensOutput = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_output_total",
			Help:      "Total completion tokens generated, as reported by the provider.",
		},
		[]string{"provider", "model"},
	)

	m.busEventsPushed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "obsbus",
		Name:      "events_pushed_total",
		Help:      "Total events pushed onto the Observability Bus ring buffer.",
	})
	m.busEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "obsbus",
		Name:      "events_dropped_total",
		Help:      "Total events displaced from the Observability Bus ring buffer because it was full.",
	})
	m.busSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "obsbus",
		Name:      "subscribers",
		Help:      "Current number of live Observability Bus subscribers.",
	})

	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests served, by route and status class.",
		},
		[]string{"method", "route", "status"},
	)
	m.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds, by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.registry.MustRegister(
		m.dispatchCalls, m.dispatchDuration,
		m.llmCalls, m.llmCallDuration, m.llmTokensInput, m.llmTokensOutput,
		m.busEventsPushed, m.busEventsDropped, m.busSubscribers,
		m.httpRequests, m.httpDuration,
	)

	return m
}

// RecordDispatch records the outcome of one Dispatcher.Dispatch call.
func (m *Metrics) RecordDispatch(agentSlug, mode, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dispatchCalls.WithLabelValues(agentSlug, mode, status).Inc()
	m.dispatchDuration.WithLabelValues(agentSlug, mode).Observe(duration.Seconds())
}

// RecordLLMCall records one LLM Gateway provider call.
func (m *Metrics) RecordLLMCall(provider, model, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(provider, model, status).Inc()
	m.llmCallDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// RecordLLMTokens records token usage for one LLM Gateway call.
func (m *Metrics) RecordLLMTokens(provider, model string, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	if inputTokens > 0 {
		m.llmTokensInput.WithLabelValues(provider, model).Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmTokensOutput.WithLabelValues(provider, model).Add(float64(outputTokens))
	}
}

// RecordBusPush records one event reaching the Observability Bus, and
// whether it displaced the oldest buffered event to make room.
func (m *Metrics) RecordBusPush(dropped bool) {
	if m == nil {
		return
	}
	m.busEventsPushed.Inc()
	if dropped {
		m.busEventsDropped.Inc()
	}
}

// SetBusSubscribers reports the current live subscriber count.
func (m *Metrics) SetBusSubscribers(n int) {
	if m == nil {
		return
	}
	m.busSubscribers.Set(float64(n))
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, statusClassLabel(statusCode)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func statusClassLabel(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

// Handler serves the Prometheus exposition format for scraping. A nil
// Metrics serves 503 so an operator who forgot to enable metrics gets a
// clear signal rather than a silently empty scrape.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics disabled", http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
