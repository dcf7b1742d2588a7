package txn

import (
	"io"
	"testing"

	"github.com/decred/slog"
	"github.com/stretchr/testify/require"
	"github.com/vctt94/econcore/pkg/econerr"
	"github.com/vctt94/econcore/pkg/econtypes"
)

func newTestCoordinator() *Coordinator {
	backend := slog.NewBackend(io.Discard)
	return New(backend.Logger("TEST"), econtypes.FixedClock(0))
}

func TestCommitRunsStepsInOrder(t *testing.T) {
	c := newTestCoordinator()
	tx, reused := c.Begin("key1", 0)
	require.False(t, reused)

	var order []string
	tx.AddStep("first", func() *econerr.Error {
		order = append(order, "first")
		return nil
	}, nil).AddStep("second", func() *econerr.Error {
		order = append(order, "second")
		return nil
	}, nil)

	err := tx.Commit(0)
	require.Nil(t, err)
	require.Equal(t, StatusCommitted, tx.Status())
	require.Equal(t, []string{"first", "second"}, order)
}

func TestCommitRollsBackExecutedStepsInReverseOnFailure(t *testing.T) {
	c := newTestCoordinator()
	tx, _ := c.Begin("key2", 0)

	var undone []string
	tx.AddStep("step1", func() *econerr.Error {
		return nil
	}, func() *econerr.Error {
		undone = append(undone, "step1")
		return nil
	}).AddStep("step2", func() *econerr.Error {
		return nil
	}, func() *econerr.Error {
		undone = append(undone, "step2")
		return nil
	}).AddStep("step3-fails", func() *econerr.Error {
		return econerr.InvalidAmount("boom", nil)
	}, nil)

	err := tx.Commit(0)
	require.NotNil(t, err)
	require.Equal(t, StatusFailed, tx.Status())
	require.Equal(t, []string{"step2", "step1"}, undone)
}

func TestCommitFailsOnDeadlineExceeded(t *testing.T) {
	c := newTestCoordinator()
	tx, _ := c.Begin("key3", 10)

	err := tx.Commit(1000)
	require.NotNil(t, err)
	require.Equal(t, StatusFailed, tx.Status())
}

func TestBeginIsIdempotentByKey(t *testing.T) {
	c := newTestCoordinator()
	tx1, reused1 := c.Begin("samekey", 0)
	require.False(t, reused1)

	tx2, reused2 := c.Begin("samekey", 0)
	require.True(t, reused2)
	require.Equal(t, tx1.ID(), tx2.ID())
}

func TestAddStepIsNoOpOnceNotPending(t *testing.T) {
	c := newTestCoordinator()
	tx, _ := c.Begin("key4", 0)
	require.Nil(t, tx.Commit(0))

	tx.AddStep("late", func() *econerr.Error { return nil }, nil)
	// The transaction already committed with zero steps; adding a step
	// post-commit must not resurrect it into a runnable state.
	require.Equal(t, StatusCommitted, tx.Status())
}

func TestRollbackIsIdempotent(t *testing.T) {
	c := newTestCoordinator()
	tx, _ := c.Begin("key5", 0)

	calls := 0
	tx.AddStep("s", func() *econerr.Error { return nil }, func() *econerr.Error {
		calls++
		return nil
	})
	require.Nil(t, tx.Commit(0))

	require.Nil(t, tx.Rollback())
	require.Nil(t, tx.Rollback())
	require.Equal(t, 1, calls)
}

func TestCleanupExpiredRemovesOldNonPendingTransactions(t *testing.T) {
	c := newTestCoordinator()
	tx, _ := c.Begin("old", 0)
	require.Nil(t, tx.Commit(0))

	removed := c.CleanupExpired(100_000, 1000)
	require.Equal(t, 1, removed)

	_, ok := c.Get("old")
	require.False(t, ok)
}
