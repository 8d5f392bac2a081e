package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 流水线指标，使用独立的 Registry
type Metrics struct {
	registry *prometheus.Registry

	tasks           *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	llmCalls        *prometheus.CounterVec
	llmDuration     prometheus.Histogram
	dispatchRejects prometheus.Counter
	conceptFailures prometheus.Counter
	cleanedTasks    prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_tasks_finished_total",
			Help: "Tasks that reached a terminal or review state, by status.",
		}, []string{"status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paper_stage_duration_seconds",
			Help:    "Duration of pipeline stages.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"stage"}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_llm_calls_total",
			Help: "LLM calls by result.",
		}, []string{"result"}),
		llmDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "paper_llm_call_duration_seconds",
			Help:    "Duration of LLM calls.",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 180},
		}),
		dispatchRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paper_dispatch_rejected_total",
			Help: "Uploads rejected because too many papers were in flight.",
		}),
		conceptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paper_concept_match_failures_total",
			Help: "Custom concept slots left empty after a failed match.",
		}),
		cleanedTasks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paper_cleanup_tasks_deleted_total",
			Help: "Task records removed by retention cleanup.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.tasks, m.stageDuration, m.llmCalls, m.llmDuration,
		m.dispatchRejects, m.conceptFailures, m.cleanedTasks,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) TaskFinished(status string) {
	m.tasks.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveLLMCall 实现 llm.Observer
func (m *Metrics) ObserveLLMCall(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.llmCalls.WithLabelValues(result).Inc()
	m.llmDuration.Observe(d.Seconds())
}

func (m *Metrics) DispatchRejected() {
	m.dispatchRejects.Inc()
}

func (m *Metrics) ConceptMatchFailed(n int) {
	m.conceptFailures.Add(float64(n))
}

func (m *Metrics) TasksCleaned(n int) {
	m.cleanedTasks.Add(float64(n))
}
