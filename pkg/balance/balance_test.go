package balance

import (
	"io"
	"testing"

	"github.com/decred/slog"
	"github.com/stretchr/testify/require"
	"github.com/vctt94/econcore/pkg/econtypes"
)

func newTestKeeper() *Keeper {
	backend := slog.NewBackend(io.Discard)
	return New(backend.Logger("TEST"), econtypes.FixedClock(0))
}

func TestInitializeRejectsDuplicate(t *testing.T) {
	k := newTestKeeper()
	require.Nil(t, k.Initialize("p1", 100))

	err := k.Initialize("p1", 50)
	require.NotNil(t, err)
}

func TestCreditDebitRoundTrip(t *testing.T) {
	k := newTestKeeper()
	require.Nil(t, k.Initialize("p1", 100))
	require.Nil(t, k.Credit("p1", 50, "buy-in"))
	require.Nil(t, k.Debit("p1", 30, "cash-out"))

	b, ok := k.Get("p1")
	require.True(t, ok)
	require.Equal(t, int64(120), b.Available)
}

func TestDebitInsufficientBalance(t *testing.T) {
	k := newTestKeeper()
	require.Nil(t, k.Initialize("p1", 10))

	err := k.Debit("p1", 20, "cash-out")
	require.NotNil(t, err)
}

func TestLockAndUnlock(t *testing.T) {
	k := newTestKeeper()
	require.Nil(t, k.Initialize("p1", 100))
	require.Nil(t, k.Lock("p1", 40))

	b, _ := k.Get("p1")
	require.Equal(t, int64(60), b.Available)
	require.Equal(t, int64(40), b.Locked)

	require.Nil(t, k.Unlock("p1", 40))
	b, _ = k.Get("p1")
	require.Equal(t, int64(100), b.Available)
	require.Equal(t, int64(0), b.Locked)
}

func TestLockInsufficientAvailable(t *testing.T) {
	k := newTestKeeper()
	require.Nil(t, k.Initialize("p1", 10))
	require.NotNil(t, k.Lock("p1", 20))
}

func TestMoveToPendingAndResolve(t *testing.T) {
	k := newTestKeeper()
	require.Nil(t, k.Initialize("p1", 100))
	require.Nil(t, k.MoveToPending("p1", 30))

	b, _ := k.Get("p1")
	require.Equal(t, int64(70), b.Available)
	require.Equal(t, int64(30), b.Pending)

	require.Nil(t, k.ResolvePending("p1", 30))
	b, _ = k.Get("p1")
	require.Equal(t, int64(100), b.Available)
	require.Equal(t, int64(0), b.Pending)
}

func TestAdjustLockedRejectsOverdraw(t *testing.T) {
	k := newTestKeeper()
	require.Nil(t, k.Initialize("p1", 100))
	require.Nil(t, k.Lock("p1", 10))

	require.NotNil(t, k.AdjustLocked("p1", -20))
	require.Nil(t, k.AdjustLocked("p1", -10))
}

func TestVerifyNoNegativeBalancesPassesForValidState(t *testing.T) {
	k := newTestKeeper()
	require.Nil(t, k.Initialize("p1", 100))
	require.Nil(t, k.Lock("p1", 40))

	ok, offenders := k.VerifyNoNegativeBalances()
	require.True(t, ok)
	require.Empty(t, offenders)
}

func TestTotalChipsConservedAcrossMutation(t *testing.T) {
	k := newTestKeeper()
	require.Nil(t, k.Initialize("p1", 100))
	require.Nil(t, k.Lock("p1", 40))
	require.Nil(t, k.MoveToPending("p1", 20))

	require.Equal(t, int64(100), k.TotalChips())
}

func TestSnapshotIsSortedByPlayerID(t *testing.T) {
	k := newTestKeeper()
	require.Nil(t, k.Initialize("zeta", 10))
	require.Nil(t, k.Initialize("alpha", 10))

	snap := k.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, econtypes.PlayerID("alpha"), snap[0].PlayerID)
	require.Equal(t, econtypes.PlayerID("zeta"), snap[1].PlayerID)
}

func TestClearWipesAllBalances(t *testing.T) {
	k := newTestKeeper()
	require.Nil(t, k.Initialize("p1", 10))
	k.Clear()

	_, ok := k.Get("p1")
	require.False(t, ok)
}
