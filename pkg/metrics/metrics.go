// Package metrics provides Prometheus metrics for the RAG service
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Retrieval metrics
	RetrievalDuration     prometheus.Histogram
	RetrievalResultsTotal prometheus.Counter
	RetrievalErrorsTotal  *prometheus.CounterVec
	DimensionMismatches   prometheus.Counter

	// Generation metrics
	LLMRequestsTotal   *prometheus.CounterVec
	LLMRequestDuration prometheus.Histogram
	ChatResponsesTotal *prometheus.CounterVec
	ChatConfidence     prometheus.Histogram

	// Indexing metrics
	IndexedChunksTotal prometheus.Counter
	IndexingTasksTotal *prometheus.CounterVec
}

// New creates all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.HTTPRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	m.HTTPRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "admate_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.RetrievalDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "admate_retrieval_duration_seconds",
		Help:    "Duration of chunk retrieval (embedding + vector search) in seconds",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})
	m.RetrievalResultsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "admate_retrieval_results_total",
		Help: "Total number of chunks returned by retrieval",
	})
	m.RetrievalErrorsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admate_retrieval_errors_total",
			Help: "Total number of retrieval failures by kind",
		},
		[]string{"kind"},
	)
	m.DimensionMismatches = f.NewCounter(prometheus.CounterOpts{
		Name: "admate_dimension_mismatch_total",
		Help: "Chunks excluded because their embedding dimension differs from the query",
	})

	m.LLMRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admate_llm_requests_total",
			Help: "Total number of LLM calls by outcome",
		},
		[]string{"outcome"},
	)
	m.LLMRequestDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "admate_llm_request_duration_seconds",
		Help:    "Duration of LLM calls in seconds",
		Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 30, 60},
	})
	m.ChatResponsesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admate_chat_responses_total",
			Help: "Total number of chat responses by answering model",
		},
		[]string{"model", "llm_generated"},
	)
	m.ChatConfidence = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "admate_chat_confidence",
		Help:    "Distribution of chat response confidence",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	m.IndexedChunksTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "admate_indexed_chunks_total",
		Help: "Total number of chunks written by the indexing pipeline",
	})
	m.IndexingTasksTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admate_indexing_tasks_total",
			Help: "Total number of indexing tasks by status",
		},
		[]string{"status"},
	)

	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// 以下记录方法允许 nil 接收者，未启用指标时直接忽略

// RecordHTTPRequest records one handled request
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRetrieval records a successful retrieval
func (m *Metrics) RecordRetrieval(duration time.Duration, results int) {
	if m == nil {
		return
	}
	m.RetrievalDuration.Observe(duration.Seconds())
	m.RetrievalResultsTotal.Add(float64(results))
}

// RecordRetrievalError records a failed retrieval by kind (embedding, vector_store)
func (m *Metrics) RecordRetrievalError(kind string) {
	if m == nil {
		return
	}
	m.RetrievalErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordDimensionMismatch counts chunks excluded for a dimension mismatch
func (m *Metrics) RecordDimensionMismatch(n int) {
	if m == nil || n == 0 {
		return
	}
	m.DimensionMismatches.Add(float64(n))
}

// RecordLLMCall records one LLM call
func (m *Metrics) RecordLLMCall(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(outcome).Inc()
	m.LLMRequestDuration.Observe(duration.Seconds())
}

// RecordChatResponse records the final response of a chat request
func (m *Metrics) RecordChatResponse(model string, llmGenerated bool, confidence float64) {
	if m == nil {
		return
	}
	generated := "false"
	if llmGenerated {
		generated = "true"
	}
	m.ChatResponsesTotal.WithLabelValues(model, generated).Inc()
	m.ChatConfidence.Observe(confidence)
}

// RecordIndexing records the outcome of one indexing task
func (m *Metrics) RecordIndexing(status string, chunks int) {
	if m == nil {
		return
	}
	m.IndexingTasksTotal.WithLabelValues(status).Inc()
	m.IndexedChunksTotal.Add(float64(chunks))
}
