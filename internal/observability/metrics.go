package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the worker's Prometheus series: bus throughput, LLM
// request/cost/token accounting, tool execution, and active-run gauges.
type Metrics struct {
	// BusMessagesProcessed counts messages handled per subject and outcome.
	// Labels: subject, outcome (ack|nak|dlq)
	BusMessagesProcessed *prometheus.CounterVec

	// BusHandlerDuration measures handler latency in seconds.
	// Labels: subject
	BusHandlerDuration *prometheus.HistogramVec

	// LLMRequestDuration measures LLM gateway call latency.
	// Labels: model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM gateway calls.
	// Labels: model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: model, direction (in|out)
	LLMTokensUsed *prometheus.CounterVec

	// LLMCostUSD accumulates reported gateway cost.
	// Labels: model
	LLMCostUSD *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error|denied)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution latency.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ActiveRuns is a gauge of agent loops currently executing.
	ActiveRuns prometheus.Gauge

	// RunDuration measures total run wall-clock time.
	// Labels: status (completed|failed|cancelled)
	RunDuration *prometheus.HistogramVec

	// RetrievalIndexBuildDuration measures index build latency.
	// Labels: mode (full|incremental)
	RetrievalIndexBuildDuration *prometheus.HistogramVec
}

// NewMetrics registers and returns the worker's metric collectors against
// the given registry. Pass a fresh prometheus.NewRegistry() in tests to
// avoid collisions with the global default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BusMessagesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codeforge_worker_bus_messages_total",
			Help: "Messages processed by the bus consumer, by subject and outcome.",
		}, []string{"subject", "outcome"}),
		BusHandlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codeforge_worker_bus_handler_duration_seconds",
			Help:    "Bus handler processing latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"subject"}),
		LLMRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codeforge_worker_llm_request_duration_seconds",
			Help:    "LLM gateway call latency in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"model"}),
		LLMRequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codeforge_worker_llm_requests_total",
			Help: "LLM gateway calls, by model and status.",
		}, []string{"model", "status"}),
		LLMTokensUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codeforge_worker_llm_tokens_total",
			Help: "LLM tokens consumed, by model and direction.",
		}, []string{"model", "direction"}),
		LLMCostUSD: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codeforge_worker_llm_cost_usd_total",
			Help: "Estimated LLM cost in USD, by model.",
		}, []string{"model"}),
		ToolExecutionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codeforge_worker_tool_executions_total",
			Help: "Tool invocations, by tool name and status.",
		}, []string{"tool_name", "status"}),
		ToolExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codeforge_worker_tool_execution_duration_seconds",
			Help:    "Tool execution latency in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"tool_name"}),
		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "codeforge_worker_active_runs",
			Help: "Number of agent loop runs currently executing.",
		}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codeforge_worker_run_duration_seconds",
			Help:    "Run wall-clock duration in seconds, by terminal status.",
			Buckets: []float64{1, 5, 15, 30, 60, 180, 600, 1800},
		}, []string{"status"}),
		RetrievalIndexBuildDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codeforge_worker_retrieval_index_build_duration_seconds",
			Help:    "Retrieval index build latency in seconds, by build mode.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300},
		}, []string{"mode"}),
	}
}
