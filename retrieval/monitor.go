package retrieval

import (
	"time"

	"github.com/poiesic/mailrag/core"
	"github.com/poiesic/mailrag/metrics"
)

// Summary describes one completed retrieval.
type Summary struct {
	OwnerID    string
	Candidates int // Chunks returned by the similarity search
	Selected   int // Documents chosen for reconstruction
	Skipped    int // Selected documents dropped during reconstruction
	Returned   int
	Elapsed    time.Duration
	Err        error
}

// Monitor provides hooks to observe the retrieval process.
// A Retriever may call a Monitor from concurrent retrievals.
type Monitor interface {
	Started(ownerID, query string)
	Candidates(ownerID string, matches []core.Match)
	Skipped(ownerID, documentID string, err error)
	Completed(summary Summary)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (noopMonitor) Started(string, string)          {}
func (noopMonitor) Candidates(string, []core.Match) {}
func (noopMonitor) Skipped(string, string, error)   {}
func (noopMonitor) Completed(Summary)               {}

// MetricsMonitor records retrievals in Prometheus metrics.
type MetricsMonitor struct {
	noopMonitor
	metrics *metrics.Metrics
}

var _ Monitor = (*MetricsMonitor)(nil)

// NewMetricsMonitor creates a monitor backed by m.
func NewMetricsMonitor(m *metrics.Metrics) *MetricsMonitor {
	return &MetricsMonitor{metrics: m}
}

// Completed records the retrieval's counts, latency and result.
func (m *MetricsMonitor) Completed(s Summary) {
	m.metrics.ObserveRetrieval(s.Candidates, s.Returned, s.Skipped, s.Elapsed, s.Err)
}
