package eviction

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/poiesic/mailrag/core"
	"github.com/poiesic/mailrag/metrics"
	"github.com/poiesic/mailrag/storage"
)

const (
	// DefaultMaxDocuments is the number of documents an owner may keep.
	DefaultMaxDocuments = 500

	// DefaultPageSize is the number of records read per fetch.
	DefaultPageSize = 1000
)

// DocumentInfo summarizes one stored document.
type DocumentInfo struct {
	DocumentID string
	Oldest     time.Time // Earliest chunk timestamp
	Chunks     int
}

// Inventory lists an owner's stored documents.
type Inventory struct {
	OwnerID   string
	Documents []DocumentInfo // Oldest first, ties by document ID
	Chunks    int
}

// Contains reports whether documentID is among the stored documents.
func (inv *Inventory) Contains(documentID string) bool {
	return slices.ContainsFunc(inv.Documents, func(d DocumentInfo) bool {
		return d.DocumentID == documentID
	})
}

// Report describes the outcome of EnforceCapacity or Purge.
type Report struct {
	OwnerID   string
	Documents int      // Distinct documents found before deleting
	Removed   []string // Document IDs deleted, in deletion order
}

// Policy enforces a per-owner document limit.
type Policy struct {
	store        storage.VectorStore
	maxDocuments int
	pageSize     int
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// Option configures a Policy.
type Option func(*Policy) error

// WithMaxDocuments sets the per-owner document limit.
// Default is DefaultMaxDocuments.
func WithMaxDocuments(n int) Option {
	return func(p *Policy) error {
		if n < 1 {
			return fmt.Errorf("max documents must be positive, got %d", n)
		}
		p.maxDocuments = n
		return nil
	}
}

// WithPageSize sets how many records each fetch reads.
// Default is DefaultPageSize.
func WithPageSize(n int) Option {
	return func(p *Policy) error {
		if n < 1 {
			return fmt.Errorf("page size must be positive, got %d", n)
		}
		p.pageSize = n
		return nil
	}
}

// WithMetrics records evictions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Policy) error {
		p.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPolicy creates an eviction policy over store.
func NewPolicy(store storage.VectorStore, opts ...Option) (*Policy, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	p := &Policy{
		store:        store,
		maxDocuments: DefaultMaxDocuments,
		pageSize:     DefaultPageSize,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "eviction")
	return p, nil
}

// MaxDocuments returns the per-owner document limit.
func (p *Policy) MaxDocuments() int {
	return p.maxDocuments
}

// EnforceCapacity makes room for documentID. When the owner already stores
// documentID nothing is deleted, since replacing it does not grow the count.
// Otherwise, when the owner holds MaxDocuments or more documents, the oldest
// are deleted until MaxDocuments-1 remain. Failures are reported as
// core.ErrCapacityCheck.
func (p *Policy) EnforceCapacity(ctx context.Context, ownerID, documentID string) (*Report, error) {
	if err := core.ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}

	inv, err := p.Inventory(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrCapacityCheck, err)
	}

	report := &Report{OwnerID: ownerID, Documents: len(inv.Documents)}
	if len(inv.Documents) < p.maxDocuments || inv.Contains(documentID) {
		return report, nil
	}

	excess := len(inv.Documents) - p.maxDocuments + 1
	for _, doc := range inv.Documents[:excess] {
		if err := p.store.DeleteByFilter(ctx, core.ForDocument(ownerID, doc.DocumentID)); err != nil {
			p.metrics.RecordEvicted(len(report.Removed))
			return report, fmt.Errorf("%w: evicting %s: %w", core.ErrCapacityCheck, doc.DocumentID, err)
		}
		report.Removed = append(report.Removed, doc.DocumentID)
		p.logger.Info("evicted document",
			"owner", ownerID,
			"document", doc.DocumentID,
			"oldest", doc.Oldest,
			"chunks", doc.Chunks)
	}
	p.metrics.RecordEvicted(len(report.Removed))
	return report, nil
}

// Purge deletes every document of an owner.
func (p *Policy) Purge(ctx context.Context, ownerID string) (*Report, error) {
	if err := core.ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}

	inv, err := p.Inventory(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	report := &Report{OwnerID: ownerID, Documents: len(inv.Documents)}
	for _, doc := range inv.Documents {
		if err := p.store.DeleteByFilter(ctx, core.ForDocument(ownerID, doc.DocumentID)); err != nil {
			return report, fmt.Errorf("purging %s: %w", doc.DocumentID, err)
		}
		report.Removed = append(report.Removed, doc.DocumentID)
	}
	p.logger.Info("purged owner", "owner", ownerID, "documents", len(report.Removed))
	return report, nil
}

// Inventory pages through every record of an owner and groups them by
// document.
func (p *Policy) Inventory(ctx context.Context, ownerID string) (*Inventory, error) {
	if err := core.ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}

	docs := make(map[string]*DocumentInfo)
	chunks := 0
	err := storage.FetchAll(ctx, p.store, core.ForOwner(ownerID), p.pageSize, func(page []core.Match) error {
		for _, m := range page {
			chunks++
			info, ok := docs[m.Metadata.DocumentID]
			if !ok {
				docs[m.Metadata.DocumentID] = &DocumentInfo{
					DocumentID: m.Metadata.DocumentID,
					Oldest:     m.Metadata.Timestamp,
					Chunks:     1,
				}
				continue
			}
			info.Chunks++
			if m.Metadata.Timestamp.Before(info.Oldest) {
				info.Oldest = m.Metadata.Timestamp
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	inv := &Inventory{
		OwnerID:   ownerID,
		Documents: make([]DocumentInfo, 0, len(docs)),
		Chunks:    chunks,
	}
	for _, info := range docs {
		inv.Documents = append(inv.Documents, *info)
	}
	slices.SortFunc(inv.Documents, func(a, b DocumentInfo) int {
		if c := a.Oldest.Compare(b.Oldest); c != 0 {
			return c
		}
		return cmp.Compare(a.DocumentID, b.DocumentID)
	})
	return inv, nil
}
