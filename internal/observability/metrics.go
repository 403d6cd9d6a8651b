package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	completionTotal    *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec

	toolCallTotal    *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	unknownToolTotal *prometheus.CounterVec

	runTotal    *prometheus.CounterVec
	runDuration prometheus.Histogram
	runTurns    prometheus.Histogram

	handoffTotal *prometheus.CounterVec

	gatewayClients      prometheus.Gauge
	gatewayRejectsTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			completionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "hive_completion_total",
					Help: "Total chat completions by provider, model and status.",
				},
				[]string{"provider", "model", "status"},
			),
			completionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "hive_completion_duration_seconds",
					Help:    "Chat completion duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			toolCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "hive_tool_call_total",
					Help: "Total tool calls by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "hive_tool_call_duration_seconds",
					Help:    "Tool call duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			unknownToolTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "hive_unknown_tool_total",
					Help: "Tool calls naming a function the active agent does not have.",
				},
				[]string{"tool"},
			),
			runTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "hive_run_total",
					Help: "Total runs by status.",
				},
				[]string{"status"},
			),
			runDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "hive_run_duration_seconds",
					Help:    "Run duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			runTurns: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "hive_run_turns",
					Help:    "Completions per successful run.",
					Buckets: prometheus.LinearBuckets(1, 1, 10),
				},
			),
			handoffTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "hive_handoff_total",
					Help: "Total agent handoffs by source and target agent.",
				},
				[]string{"from", "to"},
			),
			gatewayClients: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "hive_gateway_clients",
					Help: "Currently connected gateway clients.",
				},
			),
			gatewayRejectsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "hive_gateway_rejects_total",
					Help: "Gateway requests rejected by reason.",
				},
				[]string{"reason"},
			),
		}

		prometheus.MustRegister(
			m.completionTotal,
			m.completionDuration,
			m.toolCallTotal,
			m.toolCallDuration,
			m.unknownToolTotal,
			m.runTotal,
			m.runDuration,
			m.runTurns,
			m.handoffTotal,
			m.gatewayClients,
			m.gatewayRejectsTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordCompletion(provider, model string, duration time.Duration, success bool) {
	m := getMetrics()
	m.completionTotal.WithLabelValues(provider, model, status(success)).Inc()
	m.completionDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordToolCall(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolCallTotal.WithLabelValues(tool, status(success)).Inc()
	m.toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordUnknownTool(tool string) {
	getMetrics().unknownToolTotal.WithLabelValues(tool).Inc()
}

// RecordRun records a finished run. turns is ignored for failed runs.
func RecordRun(duration time.Duration, turns int, success bool) {
	m := getMetrics()
	m.runTotal.WithLabelValues(status(success)).Inc()
	m.runDuration.Observe(duration.Seconds())
	if success {
		m.runTurns.Observe(float64(turns))
	}
}

func RecordHandoff(from, to string) {
	getMetrics().handoffTotal.WithLabelValues(from, to).Inc()
}

func SetGatewayClients(count int) {
	getMetrics().gatewayClients.Set(float64(count))
}

func RecordGatewayReject(reason string) {
	getMetrics().gatewayRejectsTotal.WithLabelValues(reason).Inc()
}
