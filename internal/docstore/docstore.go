package docstore

import (
	"context"
	"encoding/json"
)

// Store is the record-store abstraction the billing core runs on. Documents
// live at slash-separated paths (see paths.go) and are marshalled to/from
// typed structs by the implementation. Implementations tag every failure
// with one of the ierr sentinels: ErrNotFound, ErrAlreadyExists,
// ErrVersionConflict, ErrTransient or ErrPermanent.
type Store interface {
	// Get loads the document at path into out. Returns the document
	// revision and whether it exists; a missing document is not an error.
	Get(ctx context.Context, path string, out any) (Revision, bool, error)

	// Set writes the document at path. See SetOptions for merge,
	// create-only and optimistic-precondition behavior.
	Set(ctx context.Context, path string, doc any, opts SetOptions) error

	// Update applies a partial update. Field keys may be dotted to address
	// nested maps ("units.101.basePaid"). Fails with ErrNotFound when the
	// document does not exist.
	Update(ctx context.Context, path string, fields map[string]any, opts UpdateOptions) error

	// Delete removes the document at path. Deleting a missing document is
	// a no-op.
	Delete(ctx context.Context, path string) error

	// List iterates documents under a path prefix in path order.
	List(ctx context.Context, prefix string, opts ListOptions) ([]Entry, error)

	// Query filters documents of one collection by equality and range
	// predicates with a single ordering key.
	Query(ctx context.Context, collection string, q Query) ([]Entry, error)

	// Batch opens an atomic mutation batch: all queued operations commit
	// together or not at all, with at most one committed outcome.
	Batch() Batch

	// Acquire checks a scoped connection handle out of the bounded pool.
	// Fails with ErrTransient when the pool is exhausted. Callers must
	// Release on every exit path.
	Acquire(ctx context.Context) (*Handle, error)
}

// Revision is an opaque optimistic-concurrency token. Empty means
// "no precondition".
type Revision string

// Entry is one listed or queried document.
type Entry struct {
	Path string
	Rev  Revision
	Data json.RawMessage
}

// Decode unmarshals the entry payload into out.
func (e Entry) Decode(out any) error {
	return json.Unmarshal(e.Data, out)
}

// SetOptions controls Set behavior.
type SetOptions struct {
	// Merge folds the given fields into an existing document instead of
	// replacing it. Nested maps are merged recursively.
	Merge bool
	// CreateOnly fails with ErrAlreadyExists when the document is present.
	CreateOnly bool
	// IfRev makes the write conditional on the stored revision; a mismatch
	// fails with ErrVersionConflict.
	IfRev Revision
}

// UpdateOptions controls Update behavior.
type UpdateOptions struct {
	IfRev Revision
}

// ListOptions controls List pagination.
type ListOptions struct {
	// StartAfter resumes iteration after the given path (cursor).
	StartAfter string
	// Limit caps the number of returned entries; zero means no cap.
	Limit int
}

// FilterOp is a query predicate operator.
type FilterOp string

const (
	OpEqual        FilterOp = "=="
	OpLess         FilterOp = "<"
	OpLessOrEqual  FilterOp = "<="
	OpGreater      FilterOp = ">"
	OpGreaterEqual FilterOp = ">="
)

// Filter is one query predicate on a top-level document field.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// Query is a filtered, ordered read over one collection.
type Query struct {
	Filters []Filter
	// OrderBy names the single ordering field; empty orders by path.
	OrderBy    string
	Descending bool
	Limit      int
}

// Batch queues mutations for a single atomic commit.
type Batch interface {
	Set(path string, doc any, opts SetOptions)
	Update(path string, fields map[string]any, opts UpdateOptions)
	Delete(path string)

	// Len reports the number of queued operations.
	Len() int

	// Commit applies all queued operations atomically. After Commit the
	// batch must not be reused.
	Commit(ctx context.Context) error
}
