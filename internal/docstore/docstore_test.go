package docstore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/condobill/condobill/internal/docstore"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/testutil"
)

type payload struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

func fastPolicy() docstore.RetryPolicy {
	return docstore.RetryPolicy{Attempts: 3, Initial: time.Millisecond, Factor: 1.1}
}

func TestBatchCommitIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewInMemoryDocStore()

	b := store.Batch()
	b.Set("clients/MTC/transactions/txn_1", payload{Name: "a"}, docstore.SetOptions{})
	b.Update("clients/MTC/transactions/txn_missing", map[string]any{"value": 1}, docstore.UpdateOptions{})

	err := b.Commit(ctx)
	require.Error(t, err)
	assert.True(t, ierr.IsNotFound(err))
	// the valid sibling op must not have been applied
	assert.Equal(t, 0, store.Count())
}

func TestBatchRejectsStaleRevision(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewInMemoryDocStore()
	path := "clients/MTC/transactions/txn_1"

	require.NoError(t, store.Set(ctx, path, payload{Name: "a"}, docstore.SetOptions{}))
	rev, _, err := store.Get(ctx, path, nil)
	require.NoError(t, err)

	// a concurrent writer moves the revision
	require.NoError(t, store.Set(ctx, path, payload{Name: "b"}, docstore.SetOptions{}))

	b := store.Batch()
	b.Set(path, payload{Name: "c"}, docstore.SetOptions{IfRev: rev})
	err = b.Commit(ctx)
	require.Error(t, err)
	assert.True(t, ierr.IsVersionConflict(err))

	var got payload
	_, _, err = store.Get(ctx, path, &got)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Name)
}

func TestBatchEnforcesTransactionLimit(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewInMemoryDocStore()

	b := store.Batch()
	for i := 0; i <= docstore.MaxBatchSize; i++ {
		b.Set(fmt.Sprintf("clients/MTC/transactions/txn_%d", i), payload{}, docstore.SetOptions{})
	}
	err := b.Commit(ctx)
	require.Error(t, err)
	assert.True(t, ierr.IsPermanent(err))
}

func TestRetryingBatchRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	mem := testutil.NewInMemoryDocStore()
	store := docstore.WithRetries(mem, fastPolicy())

	transient := ierr.NewError("throughput exceeded").Mark(ierr.ErrTransient)
	mem.FailNextCommits(2, transient)

	b := store.Batch()
	b.Set("clients/MTC/transactions/txn_1", payload{Name: "a"}, docstore.SetOptions{})
	require.NoError(t, b.Commit(ctx))
	assert.Equal(t, 1, mem.Count())
}

func TestRetryingBatchGivesUpAfterPolicyAttempts(t *testing.T) {
	ctx := context.Background()
	mem := testutil.NewInMemoryDocStore()
	store := docstore.WithRetries(mem, fastPolicy())

	transient := ierr.NewError("throughput exceeded").Mark(ierr.ErrTransient)
	mem.FailNextCommits(3, transient)

	b := store.Batch()
	b.Set("clients/MTC/transactions/txn_1", payload{Name: "a"}, docstore.SetOptions{})
	err := b.Commit(ctx)
	require.Error(t, err)
	assert.True(t, ierr.IsTransient(err))
	assert.Equal(t, 0, mem.Count())
}

func TestRetryingBatchPropagatesConflictsImmediately(t *testing.T) {
	ctx := context.Background()
	mem := testutil.NewInMemoryDocStore()
	store := docstore.WithRetries(mem, fastPolicy())

	conflict := ierr.NewError("revision mismatch").Mark(ierr.ErrVersionConflict)
	mem.FailNextCommits(1, conflict)

	b := store.Batch()
	b.Set("clients/MTC/transactions/txn_1", payload{Name: "a"}, docstore.SetOptions{})
	err := b.Commit(ctx)
	require.Error(t, err)
	assert.True(t, ierr.IsVersionConflict(err))
	// only the first commit attempt ran; the caller must rebuild from
	// fresh reads instead
	assert.Equal(t, 0, mem.Count())
}

func TestBatchProcessorChunksAndIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	mem := testutil.NewInMemoryDocStore()

	ops := make([]docstore.BatchOp, 0, 60)
	for i := 0; i < 60; i++ {
		ops = append(ops, docstore.SetOp(
			fmt.Sprintf("clients/MTC/transactions/txn_%03d", i),
			payload{Value: int64(i)},
			docstore.SetOptions{},
		))
	}

	// the first chunk's commit fails; with one worker the chunks run in
	// submission order
	conflict := ierr.NewError("revision mismatch").Mark(ierr.ErrVersionConflict)
	mem.FailNextCommits(1, conflict)

	summary := docstore.NewBatchProcessor(mem, 1).Run(ctx, ops)

	assert.Equal(t, 60, summary.Total)
	assert.Equal(t, 35, summary.Successful)
	assert.Equal(t, 25, summary.Failed)
	assert.Equal(t, 35, mem.Count())

	for i, r := range summary.Results {
		if i < docstore.MaxBatchSize {
			assert.Error(t, r.Err, "op %d should share its chunk's failure", i)
		} else {
			assert.NoError(t, r.Err, "op %d should have committed", i)
		}
	}
}

func TestListPagination(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewInMemoryDocStore()
	for i := 0; i < 5; i++ {
		path := fmt.Sprintf("clients/MTC/auditLogs/ae_%d", i)
		require.NoError(t, store.Set(ctx, path, payload{Value: int64(i)}, docstore.SetOptions{}))
	}

	first, err := store.List(ctx, "clients/MTC/auditLogs/", docstore.ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "clients/MTC/auditLogs/ae_0", first[0].Path)

	rest, err := store.List(ctx, "clients/MTC/auditLogs/", docstore.ListOptions{
		StartAfter: first[len(first)-1].Path,
	})
	require.NoError(t, err)
	assert.Len(t, rest, 3)
	assert.Equal(t, "clients/MTC/auditLogs/ae_2", rest[0].Path)
}

func TestQueryFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewInMemoryDocStore()

	type txn struct {
		UnitID string `json:"unitId"`
		Date   string `json:"date"`
	}
	docs := []txn{
		{UnitID: "101", Date: "2025-08-03"},
		{UnitID: "102", Date: "2025-08-01"},
		{UnitID: "101", Date: "2025-08-02"},
	}
	for i, d := range docs {
		path := fmt.Sprintf("clients/MTC/transactions/txn_%d", i)
		require.NoError(t, store.Set(ctx, path, d, docstore.SetOptions{}))
	}

	entries, err := store.Query(ctx, "clients/MTC/transactions", docstore.Query{
		Filters: []docstore.Filter{{Field: "unitId", Op: docstore.OpEqual, Value: "101"}},
		OrderBy: "date",
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var got txn
	require.NoError(t, entries[0].Decode(&got))
	assert.Equal(t, "2025-08-02", got.Date)
}
