// Package metrics provides Prometheus instrumentation for ingestion, retrieval
// and the components they share.
//
// All metrics are registered under the "mailrag" namespace on the registerer
// passed to New. A nil *Metrics is valid and records nothing, so components
// can accept one unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/poiesic/mailrag/ratelimit"
)

const namespace = "mailrag"

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// Metrics holds the collectors for one process.
type Metrics struct {
	factory promauto.Factory

	// Embedding
	EmbedRequestsTotal *prometheus.CounterVec
	EmbedDuration      prometheus.Histogram

	// Vector store
	StoreOperationsTotal *prometheus.CounterVec
	StoreDuration        *prometheus.HistogramVec
	RecordsUpsertedTotal prometheus.Counter

	// Ingestion
	DocumentsIngestedTotal *prometheus.CounterVec
	IngestDuration         prometheus.Histogram
	ChunksPerDocument      prometheus.Histogram
	DocumentsEvictedTotal  prometheus.Counter

	// Retrieval
	RetrievalsTotal     *prometheus.CounterVec
	RetrievalDuration   prometheus.Histogram
	RetrievalCandidates prometheus.Histogram
	RetrievalDocuments  prometheus.Histogram
	RetrievalSkipped    prometheus.Counter
}

// New creates and registers the collectors on reg.
// A nil reg registers nothing, which is useful in tests.
//
// Metrics:
//   - mailrag_embedding_requests_total{result}
//   - mailrag_embedding_duration_seconds
//   - mailrag_store_operations_total{operation,result}
//   - mailrag_store_operation_duration_seconds{operation}
//   - mailrag_store_records_upserted_total
//   - mailrag_ingestion_documents_total{result}
//   - mailrag_ingestion_duration_seconds
//   - mailrag_ingestion_chunks_per_document
//   - mailrag_ingestion_documents_evicted_total
//   - mailrag_retrieval_requests_total{result}
//   - mailrag_retrieval_duration_seconds
//   - mailrag_retrieval_candidates
//   - mailrag_retrieval_documents
//   - mailrag_retrieval_documents_skipped_total
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		factory: f,

		EmbedRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "embedding",
				Name:      "requests_total",
				Help:      "Total number of embedding requests by result",
			},
			[]string{"result"},
		),
		EmbedDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "embedding",
				Name:      "duration_seconds",
				Help:      "Duration of embedding requests in seconds, including time spent waiting for the gate",
				Buckets:   prometheus.DefBuckets,
			},
		),

		StoreOperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "operations_total",
				Help:      "Total number of vector store operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		StoreDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "operation_duration_seconds",
				Help:      "Duration of vector store operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		RecordsUpsertedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "records_upserted_total",
				Help:      "Total number of records written to the vector store",
			},
		),

		DocumentsIngestedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingestion",
				Name:      "documents_total",
				Help:      "Total number of documents processed by result",
			},
			[]string{"result"},
		),
		IngestDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingestion",
				Name:      "duration_seconds",
				Help:      "Duration of document ingestion in seconds, including retries",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		ChunksPerDocument: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingestion",
				Name:      "chunks_per_document",
				Help:      "Number of chunks produced per ingested document",
				Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
			},
		),
		DocumentsEvictedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingestion",
				Name:      "documents_evicted_total",
				Help:      "Total number of documents evicted to keep owners under capacity",
			},
		),

		RetrievalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "requests_total",
				Help:      "Total number of retrieval requests by result",
			},
			[]string{"result"},
		),
		RetrievalDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "duration_seconds",
				Help:      "Duration of retrieval requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		RetrievalCandidates: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "candidates",
				Help:      "Number of candidate documents above the similarity threshold",
				Buckets:   []float64{0, 1, 5, 10, 30, 100, 300, 1000},
			},
		),
		RetrievalDocuments: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "documents",
				Help:      "Number of documents returned per retrieval",
				Buckets:   []float64{0, 1, 5, 10, 20, 30},
			},
		),
		RetrievalSkipped: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "documents_skipped_total",
				Help:      "Total number of selected documents dropped because reassembly failed",
			},
		),
	}
}

// WatchGate exports the gate's counters as gauges.
func (m *Metrics) WatchGate(name string, g *ratelimit.Gate) {
	if m == nil || g == nil {
		return
	}
	labels := prometheus.Labels{"gate": name}
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "gate",
		Name:        "in_flight",
		Help:        "Operations currently holding a gate slot",
		ConstLabels: labels,
	}, func() float64 { return float64(g.Stats().InFlight) })
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "gate",
		Name:        "waiting",
		Help:        "Operations queued for a gate slot",
		ConstLabels: labels,
	}, func() float64 { return float64(g.Stats().Waiting) })
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "gate",
		Name:        "size",
		Help:        "Maximum concurrent operations admitted by the gate",
		ConstLabels: labels,
	}, func() float64 { return float64(g.Stats().Size) })
}

// ObserveEmbedding records one embedding request.
func (m *Metrics) ObserveEmbedding(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.EmbedRequestsTotal.WithLabelValues(result(err)).Inc()
	m.EmbedDuration.Observe(elapsed.Seconds())
}

// ObserveStore records one vector store operation.
func (m *Metrics) ObserveStore(operation string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.StoreOperationsTotal.WithLabelValues(operation, result(err)).Inc()
	m.StoreDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordUpserted counts records written to the store.
func (m *Metrics) RecordUpserted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsUpsertedTotal.Add(float64(n))
}

// ObserveIngest records the outcome of one document ingestion.
// resultLabel is ResultSuccess, ResultError or ResultSkipped.
func (m *Metrics) ObserveIngest(resultLabel string, chunks int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.DocumentsIngestedTotal.WithLabelValues(resultLabel).Inc()
	m.IngestDuration.Observe(elapsed.Seconds())
	if resultLabel == ResultSuccess {
		m.ChunksPerDocument.Observe(float64(chunks))
	}
}

// RecordEvicted counts evicted documents.
func (m *Metrics) RecordEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DocumentsEvictedTotal.Add(float64(n))
}

// ObserveRetrieval records one retrieval request.
func (m *Metrics) ObserveRetrieval(candidates, documents, skipped int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.RetrievalsTotal.WithLabelValues(result(err)).Inc()
	m.RetrievalDuration.Observe(elapsed.Seconds())
	if err != nil {
		return
	}
	m.RetrievalCandidates.Observe(float64(candidates))
	m.RetrievalDocuments.Observe(float64(documents))
	if skipped > 0 {
		m.RetrievalSkipped.Add(float64(skipped))
	}
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
