package docstore

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	ierr "github.com/condobill/condobill/internal/errors"
)

// RetryPolicy describes the exponential backoff applied to transient
// store failures. Conflict and permanent errors propagate immediately.
type RetryPolicy struct {
	Attempts int
	Initial  time.Duration
	Factor   float64
}

// DefaultRetryPolicy is 3 attempts starting at 1 s with factor 2.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Initial: time.Second, Factor: 2}
}

// WithRetries decorates a store so that every operation is retried under
// the given policy when it fails with ErrTransient.
func WithRetries(inner Store, policy RetryPolicy) Store {
	if policy.Attempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	return &retryingStore{inner: inner, policy: policy}
}

type retryingStore struct {
	inner  Store
	policy RetryPolicy
}

func (s *retryingStore) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.policy.Initial
	b.Multiplier = s.policy.Factor
	b.RandomizationFactor = 0

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !ierr.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(wrapped, backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(s.policy.Attempts-1)), ctx))
}

func (s *retryingStore) Get(ctx context.Context, path string, out any) (Revision, bool, error) {
	var rev Revision
	var exists bool
	err := s.retry(ctx, func() error {
		var opErr error
		rev, exists, opErr = s.inner.Get(ctx, path, out)
		return opErr
	})
	return rev, exists, err
}

func (s *retryingStore) Set(ctx context.Context, path string, doc any, opts SetOptions) error {
	return s.retry(ctx, func() error {
		return s.inner.Set(ctx, path, doc, opts)
	})
}

func (s *retryingStore) Update(ctx context.Context, path string, fields map[string]any, opts UpdateOptions) error {
	return s.retry(ctx, func() error {
		return s.inner.Update(ctx, path, fields, opts)
	})
}

func (s *retryingStore) Delete(ctx context.Context, path string) error {
	return s.retry(ctx, func() error {
		return s.inner.Delete(ctx, path)
	})
}

func (s *retryingStore) List(ctx context.Context, prefix string, opts ListOptions) ([]Entry, error) {
	var entries []Entry
	err := s.retry(ctx, func() error {
		var opErr error
		entries, opErr = s.inner.List(ctx, prefix, opts)
		return opErr
	})
	return entries, err
}

func (s *retryingStore) Query(ctx context.Context, collection string, q Query) ([]Entry, error) {
	var entries []Entry
	err := s.retry(ctx, func() error {
		var opErr error
		entries, opErr = s.inner.Query(ctx, collection, q)
		return opErr
	})
	return entries, err
}

func (s *retryingStore) Batch() Batch {
	return &retryingBatch{inner: s.inner.Batch(), store: s}
}

func (s *retryingStore) Acquire(ctx context.Context) (*Handle, error) {
	var h *Handle
	err := s.retry(ctx, func() error {
		var opErr error
		h, opErr = s.inner.Acquire(ctx)
		return opErr
	})
	if err != nil {
		return nil, err
	}
	// hand out the retrying store so nested operations keep the policy
	return NewHandle(s, h.Release), nil
}

type retryingBatch struct {
	inner Batch
	store *retryingStore
}

func (b *retryingBatch) Set(path string, doc any, opts SetOptions) {
	b.inner.Set(path, doc, opts)
}

func (b *retryingBatch) Update(path string, fields map[string]any, opts UpdateOptions) {
	b.inner.Update(path, fields, opts)
}

func (b *retryingBatch) Delete(path string) {
	b.inner.Delete(path)
}

func (b *retryingBatch) Len() int {
	return b.inner.Len()
}

// Commit retries only transient failures. A batch that failed with
// ErrVersionConflict must be rebuilt from fresh reads by the caller, so
// conflicts propagate immediately.
func (b *retryingBatch) Commit(ctx context.Context) error {
	return b.store.retry(ctx, func() error {
		return b.inner.Commit(ctx)
	})
}
