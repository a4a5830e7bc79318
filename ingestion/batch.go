package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/poiesic/mailrag/core"
)

// DocumentError pairs a failed document with its error.
type DocumentError struct {
	DocumentID string
	Err        error
}

func (e DocumentError) Error() string {
	return e.DocumentID + ": " + e.Err.Error()
}

func (e DocumentError) Unwrap() error {
	return e.Err
}

// BatchResult summarizes an IngestBatch call.
type BatchResult struct {
	BatchID  string
	Ingested int
	Skipped  int
	Failed   []DocumentError
	Results  []*Result // One per successfully ingested or skipped document
	Elapsed  time.Duration
}

// Err joins the per-document failures, or returns nil when there were none.
func (b *BatchResult) Err() error {
	if len(b.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(b.Failed))
	for i, f := range b.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// IngestBatch ingests docs one after another. A failed document is
// recorded in the result and the batch continues; only context
// cancellation stops it early. progress, when set, is called after every
// document with the number processed so far.
func (p *Pipeline) IngestBatch(ctx context.Context, docs []core.Document, progress ProgressObserver) (*BatchResult, error) {
	if progress == nil {
		progress = noopProgress{}
	}
	batch := &BatchResult{BatchID: uuid.NewString()}
	logger := p.logger.With("batch", batch.BatchID)
	logger.Info("starting batch", "documents", len(docs))
	start := time.Now()

	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			batch.Elapsed = time.Since(start)
			return batch, err
		}

		result, err := p.Ingest(ctx, doc)
		switch {
		case err == nil:
			batch.Ingested++
			batch.Results = append(batch.Results, result)
		case errors.Is(err, core.ErrEmptyDocument):
			batch.Skipped++
			batch.Results = append(batch.Results, result)
		case ctx.Err() != nil:
			batch.Elapsed = time.Since(start)
			return batch, ctx.Err()
		default:
			logger.Warn("document failed", "document", doc.DocumentID, "err", err)
			batch.Failed = append(batch.Failed, DocumentError{DocumentID: doc.DocumentID, Err: err})
		}
		progress.OnProgress(i+1, len(docs))
	}

	batch.Elapsed = time.Since(start)
	logger.Info("finished batch",
		"ingested", batch.Ingested,
		"skipped", batch.Skipped,
		"failed", len(batch.Failed),
		"elapsed", batch.Elapsed)
	return batch, nil
}
