package testutil

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/condobill/condobill/internal/docstore"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/types"
)

// InMemoryDocStore implements docstore.Store for tests. It honors the
// same merge, create-only and revision-precondition semantics as the
// DynamoDB store and supports commit-failure injection for conflict-retry
// tests.
type InMemoryDocStore struct {
	mu   sync.RWMutex
	docs map[string]*storedDoc
	pool *docstore.Pool

	// commitErrs are consumed one per Batch.Commit before the batch is
	// applied; queue with FailNextCommits.
	commitErrs []error
}

type storedDoc struct {
	data map[string]any
	rev  docstore.Revision
}

func NewInMemoryDocStore() *InMemoryDocStore {
	return &InMemoryDocStore{
		docs: make(map[string]*storedDoc),
		pool: docstore.NewPool(100),
	}
}

// Clear drops all documents and queued failures.
func (s *InMemoryDocStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]*storedDoc)
	s.commitErrs = nil
}

// FailNextCommits makes the next n batch commits fail with err without
// applying their mutations.
func (s *InMemoryDocStore) FailNextCommits(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.commitErrs = append(s.commitErrs, err)
	}
}

// Count reports the number of stored documents.
func (s *InMemoryDocStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func toMap(doc any) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPermanent)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPermanent)
	}
	return m, nil
}

func (s *InMemoryDocStore) Get(ctx context.Context, path string, out any) (docstore.Revision, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, ierr.WithError(err).Mark(ierr.ErrTransient)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[path]
	if !ok {
		return "", false, nil
	}
	if out != nil {
		raw, err := json.Marshal(doc.data)
		if err != nil {
			return "", false, ierr.WithError(err).Mark(ierr.ErrPermanent)
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return "", false, ierr.WithError(err).
				WithHint("Stored document does not match the expected shape").
				Mark(ierr.ErrValidation)
		}
	}
	return doc.rev, true, nil
}

func (s *InMemoryDocStore) Set(ctx context.Context, path string, doc any, opts docstore.SetOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(path, doc, opts)
}

func (s *InMemoryDocStore) setLocked(path string, doc any, opts docstore.SetOptions) error {
	m, err := toMap(doc)
	if err != nil {
		return err
	}

	existing, exists := s.docs[path]
	if opts.CreateOnly && exists {
		return ierr.NewErrorf("document %s already exists", path).
			Mark(ierr.ErrAlreadyExists)
	}
	if opts.IfRev != "" && (!exists || existing.rev != opts.IfRev) {
		return ierr.NewErrorf("revision mismatch on %s", path).
			Mark(ierr.ErrVersionConflict)
	}

	if opts.Merge && exists {
		m = mergeMaps(existing.data, m)
	}
	s.docs[path] = &storedDoc{data: m, rev: docstore.Revision(types.GenerateUUID())}
	return nil
}

func mergeMaps(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		if bv, ok := out[k].(map[string]any); ok {
			if ov, ok := v.(map[string]any); ok {
				out[k] = mergeMaps(bv, ov)
				continue
			}
		}
		out[k] = v
	}
	return out
}

func (s *InMemoryDocStore) Update(ctx context.Context, path string, fields map[string]any, opts docstore.UpdateOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(path, fields, opts)
}

func (s *InMemoryDocStore) updateLocked(path string, fields map[string]any, opts docstore.UpdateOptions) error {
	existing, exists := s.docs[path]
	if !exists {
		return ierr.NewErrorf("document %s does not exist", path).
			Mark(ierr.ErrNotFound)
	}
	if opts.IfRev != "" && existing.rev != opts.IfRev {
		return ierr.NewErrorf("revision mismatch on %s", path).
			Mark(ierr.ErrVersionConflict)
	}

	data := deepCopy(existing.data)
	for field, value := range fields {
		v, err := toJSONValue(value)
		if err != nil {
			return err
		}
		setDotted(data, strings.Split(field, "."), v)
	}
	s.docs[path] = &storedDoc{data: data, rev: docstore.Revision(types.GenerateUUID())}
	return nil
}

func toJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPermanent)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPermanent)
	}
	return out, nil
}

func deepCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if mv, ok := v.(map[string]any); ok {
			out[k] = deepCopy(mv)
			continue
		}
		out[k] = v
	}
	return out
}

func setDotted(m map[string]any, segs []string, value any) {
	if len(segs) == 1 {
		m[segs[0]] = value
		return
	}
	child, ok := m[segs[0]].(map[string]any)
	if !ok {
		child = make(map[string]any)
		m[segs[0]] = child
	}
	setDotted(child, segs[1:], value)
}

func (s *InMemoryDocStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, path)
	return nil
}

func (s *InMemoryDocStore) List(ctx context.Context, prefix string, opts docstore.ListOptions) ([]docstore.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrTransient)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []docstore.Entry
	for path, doc := range s.docs {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		raw, err := json.Marshal(doc.data)
		if err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrPermanent)
		}
		entries = append(entries, docstore.Entry{Path: path, Rev: doc.rev, Data: raw})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	if opts.StartAfter != "" {
		cut := sort.Search(len(entries), func(i int) bool {
			return entries[i].Path > opts.StartAfter
		})
		entries = entries[cut:]
	}
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

func (s *InMemoryDocStore) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Entry, error) {
	prefix := strings.TrimSuffix(collection, "/") + "/"
	entries, err := s.List(ctx, prefix, docstore.ListOptions{})
	if err != nil {
		return nil, err
	}
	// keep only direct children of the collection
	direct := entries[:0]
	for _, e := range entries {
		rest := strings.TrimPrefix(e.Path, prefix)
		if !strings.Contains(rest, "/") {
			direct = append(direct, e)
		}
	}
	return docstore.EvaluateQuery(direct, q)
}

func (s *InMemoryDocStore) Batch() docstore.Batch {
	return &memBatch{store: s}
}

func (s *InMemoryDocStore) Acquire(ctx context.Context) (*docstore.Handle, error) {
	release, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return docstore.NewHandle(s, release), nil
}

type memOp struct {
	kind   string
	path   string
	doc    any
	fields map[string]any
	set    docstore.SetOptions
	update docstore.UpdateOptions
}

type memBatch struct {
	store     *InMemoryDocStore
	ops       []memOp
	committed bool
}

func (b *memBatch) Set(path string, doc any, opts docstore.SetOptions) {
	b.ops = append(b.ops, memOp{kind: "set", path: path, doc: doc, set: opts})
}

func (b *memBatch) Update(path string, fields map[string]any, opts docstore.UpdateOptions) {
	b.ops = append(b.ops, memOp{kind: "update", path: path, fields: fields, update: opts})
}

func (b *memBatch) Delete(path string) {
	b.ops = append(b.ops, memOp{kind: "delete", path: path})
}

func (b *memBatch) Len() int {
	return len(b.ops)
}

// Commit applies the batch under one lock after validating every
// precondition, so a failing op leaves the store untouched.
func (b *memBatch) Commit(ctx context.Context) error {
	if b.committed {
		return ierr.NewError("batch already committed").Mark(ierr.ErrPermanent)
	}

	if len(b.ops) > docstore.MaxBatchSize {
		return ierr.NewErrorf("batch of %d exceeds the %d-op transaction limit",
			len(b.ops), docstore.MaxBatchSize).
			Mark(ierr.ErrPermanent)
	}

	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	// An injected failure models a commit the store never applied, so the
	// batch stays retryable.
	if len(b.store.commitErrs) > 0 {
		err := b.store.commitErrs[0]
		b.store.commitErrs = b.store.commitErrs[1:]
		return err
	}
	b.committed = true

	// validate preconditions first
	for _, op := range b.ops {
		existing, exists := b.store.docs[op.path]
		switch op.kind {
		case "set":
			if op.set.CreateOnly && exists {
				return ierr.NewErrorf("document %s already exists", op.path).
					Mark(ierr.ErrAlreadyExists)
			}
			if op.set.IfRev != "" && (!exists || existing.rev != op.set.IfRev) {
				return ierr.NewErrorf("revision mismatch on %s", op.path).
					Mark(ierr.ErrVersionConflict)
			}
		case "update":
			if !exists {
				return ierr.NewErrorf("document %s does not exist", op.path).
					Mark(ierr.ErrNotFound)
			}
			if op.update.IfRev != "" && existing.rev != op.update.IfRev {
				return ierr.NewErrorf("revision mismatch on %s", op.path).
					Mark(ierr.ErrVersionConflict)
			}
		}
	}

	for _, op := range b.ops {
		var err error
		switch op.kind {
		case "set":
			err = b.store.setLocked(op.path, op.doc, op.set)
		case "update":
			err = b.store.updateLocked(op.path, op.fields, op.update)
		case "delete":
			delete(b.store.docs, op.path)
		}
		if err != nil {
			// preconditions were validated above; only marshalling can fail
			return err
		}
	}
	return nil
}
