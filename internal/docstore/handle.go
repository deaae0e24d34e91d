package docstore

import (
	"context"
	"sync"

	ierr "github.com/condobill/condobill/internal/errors"
)

// Handle is a scoped connection checked out of a store's bounded pool.
// Callers must Release on every exit path, including panics:
//
//	h, err := store.Acquire(ctx)
//	if err != nil { ... }
//	defer h.Release()
type Handle struct {
	Store Store

	once    sync.Once
	release func()
}

// NewHandle wraps a store with a release callback. Implementations call
// this from Acquire.
func NewHandle(s Store, release func()) *Handle {
	return &Handle{Store: s, release: release}
}

// Release returns the handle to the pool. Safe to call more than once.
func (h *Handle) Release() {
	h.once.Do(func() {
		if h.release != nil {
			h.release()
		}
	})
}

// Pool is a counting limiter for scoped handles. The zero value is not
// usable; construct with NewPool.
type Pool struct {
	tokens chan struct{}
}

// NewPool returns a pool admitting at most size concurrent handles.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{tokens: make(chan struct{}, size)}
}

// Size reports the pool capacity.
func (p *Pool) Size() int {
	return cap(p.tokens)
}

// Acquire takes a pool slot without blocking. When the pool is exhausted
// the caller sees ErrTransient, matching the store retry policy.
func (p *Pool) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrTransient)
	}
	select {
	case p.tokens <- struct{}{}:
		return func() { <-p.tokens }, nil
	default:
		return nil, ierr.NewError("connection pool exhausted").
			WithHintf("All %d handles are in use", cap(p.tokens)).
			Mark(ierr.ErrTransient)
	}
}
