package econsnapshot

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/decred/slog"
	"github.com/stretchr/testify/require"
	"github.com/vctt94/econcore/pkg/balance"
	"github.com/vctt94/econcore/pkg/econtypes"
	"github.com/vctt94/econcore/pkg/escrow"
	"github.com/vctt94/econcore/pkg/ledger"
	"github.com/vctt94/econcore/pkg/rake"
	"github.com/vctt94/econcore/pkg/settlement"
	"github.com/vctt94/econcore/pkg/sidepot"
	"github.com/vctt94/econcore/pkg/txn"
)

// tickingClock counts up on every NowMillis call, so snapshots created back
// to back in a test still land in a deterministic creation order.
type tickingClock struct{ n int64 }

func (c *tickingClock) NowMillis() int64 {
	c.n++
	return c.n
}

func newTestManager(t *testing.T) (*Manager, *balance.Keeper, *escrow.Keeper, *ledger.Ledger, *settlement.Engine) {
	t.Helper()
	backend := slog.NewBackend(io.Discard)
	clock := econtypes.FixedClock(0)
	bal := balance.New(backend.Logger("BAL"), clock)
	esc := escrow.New(backend.Logger("ESC"), clock, bal)
	ldg := ledger.New(backend.Logger("LDG"), clock, "")
	coord := txn.New(backend.Logger("TXN"), clock)
	set := settlement.New(backend.Logger("SET"), esc, ldg, coord)

	dbPath := filepath.Join(t.TempDir(), "snapshots.sqlite")
	mgr, err := New(backend.Logger("SNP"), &tickingClock{}, bal, esc, ldg, set, dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	return mgr, bal, esc, ldg, set
}

func TestCreateSnapshotCapturesBalancesAndEscrows(t *testing.T) {
	mgr, bal, esc, _, _ := newTestManager(t)
	require.Nil(t, bal.Initialize("p1", 1000))
	require.Nil(t, esc.BuyIn("t1", "p1", 200))

	snap, err := mgr.CreateSnapshot()
	require.NoError(t, err)
	require.NotEmpty(t, snap.Checksum)
	require.Len(t, snap.Balances, 1)
	require.Len(t, snap.Escrows, 1)
}

func TestLoadLatestVerifiesChecksum(t *testing.T) {
	mgr, bal, _, _, _ := newTestManager(t)
	require.Nil(t, bal.Initialize("p1", 500))

	created, err := mgr.CreateSnapshot()
	require.NoError(t, err)

	loaded, verr := mgr.LoadLatest()
	require.Nil(t, verr)
	require.Equal(t, created.SnapshotID, loaded.SnapshotID)
	require.Equal(t, created.Checksum, loaded.Checksum)
}

func TestCreateSnapshotPrunesBeyondRetention(t *testing.T) {
	mgr, bal, _, _, _ := newTestManager(t)
	require.Nil(t, bal.Initialize("p1", 100))
	mgr.SetRetention(2)

	var ids []string
	for i := 0; i < 5; i++ {
		snap, err := mgr.CreateSnapshot()
		require.NoError(t, err)
		ids = append(ids, snap.SnapshotID)
	}

	for _, id := range ids[:3] {
		_, verr := mgr.store.Load(id)
		require.Error(t, verr)
	}
	for _, id := range ids[3:] {
		_, verr := mgr.store.Load(id)
		require.NoError(t, verr)
	}
}

func TestRecoverFromSnapshotRebuildsBalancesAndEscrows(t *testing.T) {
	mgr, bal, esc, _, _ := newTestManager(t)
	require.Nil(t, bal.Initialize("p1", 1000))
	require.Nil(t, esc.BuyIn("t1", "p1", 300))
	require.Nil(t, bal.Lock("p1", 50))

	snap, err := mgr.CreateSnapshot()
	require.NoError(t, err)

	// Simulate crash/drift: wipe in-memory state entirely.
	bal.Clear()
	esc.Clear()

	verr := mgr.RecoverFromSnapshot(snap.SnapshotID)
	require.Nil(t, verr)

	b, ok := bal.Get("p1")
	require.True(t, ok)
	require.Equal(t, int64(1000-300-50), b.Available)
	require.Equal(t, int64(350), b.Locked) // 300 locked by escrow buy-in + 50 extra lock

	e, ok := esc.Get("t1", "p1")
	require.True(t, ok)
	require.Equal(t, int64(300), e.Stack)
}

// TestRecoverFromSnapshotRestoresSettlementIdempotencyAcrossRestart simulates
// the real failure mode comment 4 was about: a process restart constructs a
// brand-new, empty Ledger and Settlement Engine with no memory of prior
// settlements. Without the settlementHistory snapshot section, replaying a
// settleHand call for an already-paid hand after recovery would double-credit
// escrow instead of returning the idempotent result.
func TestRecoverFromSnapshotRestoresSettlementIdempotencyAcrossRestart(t *testing.T) {
	backend := slog.NewBackend(io.Discard)
	clock := econtypes.FixedClock(0)
	dbPath := filepath.Join(t.TempDir(), "snapshots.sqlite")

	bal := balance.New(backend.Logger("BAL"), clock)
	esc := escrow.New(backend.Logger("ESC"), clock, bal)
	ldg := ledger.New(backend.Logger("LDG"), clock, "")
	coord := txn.New(backend.Logger("TXN"), clock)
	set := settlement.New(backend.Logger("SET"), esc, ldg, coord)
	mgr, err := New(backend.Logger("SNP"), &tickingClock{}, bal, esc, ldg, set, dbPath)
	require.NoError(t, err)
	defer mgr.Close()

	req := settlement.Request{
		TableID: "t1",
		HandID:  "h1",
		Contributors: []sidepot.Contributor{
			{Player: "a", TotalContribution: 100},
			{Player: "b", TotalContribution: 100},
		},
		Ranking:    map[econtypes.PlayerID]int{"a": 0, "b": 1},
		FlopSeen:   true,
		RakeConfig: rake.Config{},
	}
	ldg.RecordBet(req.TableID, req.HandID, "a", 100, econtypes.StreetRiver)
	ldg.RecordBet(req.TableID, req.HandID, "b", 100, econtypes.StreetRiver)

	first, serr := set.SettleHand(req, 0)
	require.Nil(t, serr)
	require.False(t, first.Idempotent)

	snap, err := mgr.CreateSnapshot()
	require.NoError(t, err)
	require.Len(t, snap.SettlementHistory, 1)

	// A fresh process: brand-new Ledger and Settlement Engine, pointed at the
	// same snapshot store.
	ldg2 := ledger.New(backend.Logger("LDG"), clock, "")
	coord2 := txn.New(backend.Logger("TXN"), clock)
	set2 := settlement.New(backend.Logger("SET"), esc, ldg2, coord2)
	mgr2, err := New(backend.Logger("SNP"), &tickingClock{}, bal, esc, ldg2, set2, dbPath)
	require.NoError(t, err)
	defer mgr2.Close()

	verr := mgr2.RecoverFromSnapshot(snap.SnapshotID)
	require.Nil(t, verr)
	require.True(t, ldg2.IsSettled("t1", "h1"))

	before, ok := esc.Get("t1", "a")
	require.True(t, ok)

	second, serr := set2.SettleHand(req, 0)
	require.Nil(t, serr)
	require.True(t, second.Idempotent)
	require.Equal(t, first.SettlementID, second.SettlementID)

	after, _ := esc.Get("t1", "a")
	require.Equal(t, before.Stack, after.Stack) // no double-credit
}

func TestRecoverFromSnapshotRejectsTamperedChecksum(t *testing.T) {
	mgr, bal, _, _, _ := newTestManager(t)
	require.Nil(t, bal.Initialize("p1", 1000))

	snap, err := mgr.CreateSnapshot()
	require.NoError(t, err)

	row, loadErr := mgr.store.Load(snap.SnapshotID)
	require.NoError(t, loadErr)
	row.Checksum = "deadbeef"
	require.NoError(t, mgr.store.Save(row))

	verr := mgr.RecoverFromSnapshot(snap.SnapshotID)
	require.NotNil(t, verr)
}

func TestRecoverFromSnapshotUnknownIDFails(t *testing.T) {
	mgr, _, _, _, _ := newTestManager(t)
	verr := mgr.RecoverFromSnapshot("does-not-exist")
	require.NotNil(t, verr)
}

func TestLoadLatestFailsWithNoSnapshots(t *testing.T) {
	mgr, _, _, _, _ := newTestManager(t)
	_, verr := mgr.LoadLatest()
	require.NotNil(t, verr)
}
