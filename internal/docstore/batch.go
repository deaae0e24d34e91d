package docstore

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// MaxBatchSize is the atomic commit ceiling of the underlying store; the
// processor splits larger workloads into chunks of at most this size.
const MaxBatchSize = 25

// BatchOp is one queued mutation for the batch processor.
type BatchOp struct {
	kind   string
	path   string
	doc    any
	fields map[string]any
	set    SetOptions
	update UpdateOptions
}

// SetOp queues a document write.
func SetOp(path string, doc any, opts SetOptions) BatchOp {
	return BatchOp{kind: "set", path: path, doc: doc, set: opts}
}

// UpdateOp queues a partial update.
func UpdateOp(path string, fields map[string]any, opts UpdateOptions) BatchOp {
	return BatchOp{kind: "update", path: path, fields: fields, update: opts}
}

// DeleteOp queues a delete.
func DeleteOp(path string) BatchOp {
	return BatchOp{kind: "delete", path: path}
}

// Path reports the document path the op targets.
func (op BatchOp) Path() string { return op.path }

func (op BatchOp) enqueue(b Batch) {
	switch op.kind {
	case "set":
		b.Set(op.path, op.doc, op.set)
	case "update":
		b.Update(op.path, op.fields, op.update)
	case "delete":
		b.Delete(op.path)
	}
}

// OpResult is the outcome of one op; ops in a failed chunk share the
// chunk's commit error.
type OpResult struct {
	Path string
	Err  error
}

// BatchSummary aggregates a processor run.
type BatchSummary struct {
	Total      int
	Successful int
	Failed     int
	Results    []OpResult
}

// BatchProcessor splits large op lists into atomic chunks and commits them
// concurrently. One chunk failing never aborts its siblings.
type BatchProcessor struct {
	store       Store
	concurrency int
}

// NewBatchProcessor caps in-flight chunks at concurrency; zero or negative
// defaults to half the conventional pool size.
func NewBatchProcessor(store Store, concurrency int) *BatchProcessor {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &BatchProcessor{store: store, concurrency: concurrency}
}

// Run commits all ops in chunks of at most MaxBatchSize and reports the
// per-op outcome.
func (p *BatchProcessor) Run(ctx context.Context, ops []BatchOp) BatchSummary {
	summary := BatchSummary{
		Total:   len(ops),
		Results: make([]OpResult, len(ops)),
	}
	if len(ops) == 0 {
		return summary
	}

	workers := pool.New().WithMaxGoroutines(p.concurrency)

	for start := 0; start < len(ops); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(ops) {
			end = len(ops)
		}
		chunk := ops[start:end]
		offset := start

		workers.Go(func() {
			batch := p.store.Batch()
			for _, op := range chunk {
				op.enqueue(batch)
			}
			err := batch.Commit(ctx)
			for i, op := range chunk {
				summary.Results[offset+i] = OpResult{Path: op.Path(), Err: err}
			}
		})
	}

	workers.Wait()

	for _, r := range summary.Results {
		if r.Err == nil {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}
	return summary
}
