// Package escrow implements the Escrow Keeper (spec §4.2): the per-(table,
// player) chip stack and committed-to-hand amount, plus lifetime buy-in /
// cash-out totals. It is the component where chips cross between a player's
// table-scoped stack and the shared pot.
package escrow

import (
	"sync"

	"github.com/decred/slog"
	"github.com/vctt94/econcore/pkg/balance"
	"github.com/vctt94/econcore/pkg/econerr"
	"github.com/vctt94/econcore/pkg/econtypes"
)

// Escrow is one player's chip position at one table.
type Escrow struct {
	TableID      econtypes.TableID
	PlayerID     econtypes.PlayerID
	Stack        int64
	Committed    int64
	TotalBuyIn   int64
	TotalCashOut int64
	CreatedAt    int64
	UpdatedAt    int64
}

type key struct {
	table  econtypes.TableID
	player econtypes.PlayerID
}

// Keeper is the Escrow Keeper actor. Every mutation also drives the paired
// Balance Keeper's locked bucket so the two stay in lockstep (spec invariant 2:
// escrow.stack + escrow.committed == balance.locked for that pair, summed
// across all of a player's escrows).
type Keeper struct {
	log     slog.Logger
	clock   econtypes.Clock
	balance *balance.Keeper

	mu      sync.Mutex
	escrows map[key]*Escrow
}

// New creates an empty Escrow Keeper bound to the given Balance Keeper.
func New(log slog.Logger, clock econtypes.Clock, balanceKeeper *balance.Keeper) *Keeper {
	return &Keeper{
		log:     log,
		clock:   clock,
		balance: balanceKeeper,
		escrows: make(map[key]*Escrow),
	}
}

func validateAmount(amount int64) *econerr.Error {
	if amount < 0 {
		return econerr.InvalidAmount("amount must be non-negative", map[string]interface{}{"amount": amount})
	}
	return nil
}

func (k *Keeper) getOrCreate(table econtypes.TableID, player econtypes.PlayerID) *Escrow {
	kk := key{table, player}
	e, ok := k.escrows[kk]
	if !ok {
		now := k.clock.NowMillis()
		e = &Escrow{TableID: table, PlayerID: player, CreatedAt: now, UpdatedAt: now}
		k.escrows[kk] = e
	}
	return e
}

// BuyIn locks amount in the player's balance, then adds it to the escrow's
// stack and lifetime totalBuyIn. Creates the escrow if it does not yet exist.
func (k *Keeper) BuyIn(table econtypes.TableID, player econtypes.PlayerID, amount int64) *econerr.Error {
	if err := validateAmount(amount); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.balance.Lock(player, amount); err != nil {
		return err
	}

	e := k.getOrCreate(table, player)
	e.Stack += amount
	e.TotalBuyIn += amount
	e.UpdatedAt = k.clock.NowMillis()

	k.log.Debugf("buy-in: table=%s player=%s amount=%d stack=%d", table, player, amount, e.Stack)
	return nil
}

// freeStack is the uncommitted portion of the stack — what cash-out and
// commit requests are checked against.
func freeStack(e *Escrow) int64 {
	return e.Stack - e.Committed
}

// CashOut withdraws amount from the escrow (default: the whole stack) back
// into the player's available balance. Rejects while any chips are committed
// to a hand, even when the uncommitted stack would cover amount, and rejects
// an amount larger than the uncommitted stack. Removes the escrow once its
// stack reaches zero.
func (k *Keeper) CashOut(table econtypes.TableID, player econtypes.PlayerID, amount *int64) (int64, *econerr.Error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	kk := key{table, player}
	e, ok := k.escrows[kk]
	if !ok {
		return 0, econerr.EscrowNotFound(string(table), string(player))
	}

	requested := e.Stack
	if amount != nil {
		requested = *amount
	}
	if err := validateAmount(requested); err != nil {
		return 0, err
	}

	if e.Committed > 0 {
		return 0, econerr.EscrowInsufficient(0, requested)
	}
	if requested > freeStack(e) {
		return 0, econerr.EscrowInsufficient(freeStack(e), requested)
	}

	if err := k.balance.Unlock(player, requested); err != nil {
		return 0, err
	}

	e.Stack -= requested
	e.TotalCashOut += requested
	e.UpdatedAt = k.clock.NowMillis()

	if e.Stack == 0 {
		delete(k.escrows, kk)
	}

	k.log.Debugf("cash-out: table=%s player=%s amount=%d", table, player, requested)
	return requested, nil
}

// CommitChips reserves amount of the stack toward the current hand without
// yet moving it into the pot. Rejects if amount exceeds the uncommitted
// stack.
func (k *Keeper) CommitChips(table econtypes.TableID, player econtypes.PlayerID, amount int64) *econerr.Error {
	if err := validateAmount(amount); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	kk := key{table, player}
	e, ok := k.escrows[kk]
	if !ok {
		return econerr.EscrowNotFound(string(table), string(player))
	}
	if amount > freeStack(e) {
		return econerr.EscrowInsufficient(freeStack(e), amount)
	}

	e.Committed += amount
	e.UpdatedAt = k.clock.NowMillis()
	return nil
}

// ReleaseCommitted reverses a commit (default: everything committed) without
// it ever reaching the pot — used for betting-round rollback or round-end
// amounts that did not contribute.
func (k *Keeper) ReleaseCommitted(table econtypes.TableID, player econtypes.PlayerID, amount *int64) *econerr.Error {
	k.mu.Lock()
	defer k.mu.Unlock()

	kk := key{table, player}
	e, ok := k.escrows[kk]
	if !ok {
		return econerr.EscrowNotFound(string(table), string(player))
	}

	requested := e.Committed
	if amount != nil {
		requested = *amount
	}
	if requested > e.Committed {
		return econerr.InvalidAmount("release amount exceeds committed", map[string]interface{}{
			"committed": e.Committed, "amount": requested,
		})
	}

	e.Committed -= requested
	e.UpdatedAt = k.clock.NowMillis()
	return nil
}

// MoveToPot decrements stack and committed by amount and instructs the
// Balance Keeper to decrement locked by the same amount — this is where
// chips leave the player-owned accounting frame and enter the pot.
func (k *Keeper) MoveToPot(table econtypes.TableID, player econtypes.PlayerID, amount int64) *econerr.Error {
	if err := validateAmount(amount); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	kk := key{table, player}
	e, ok := k.escrows[kk]
	if !ok {
		return econerr.EscrowNotFound(string(table), string(player))
	}
	if amount > e.Committed {
		return econerr.EscrowInsufficient(e.Committed, amount)
	}
	if amount > e.Stack {
		return econerr.EscrowInsufficient(e.Stack, amount)
	}

	if err := k.balance.AdjustLocked(player, -amount); err != nil {
		return err
	}

	e.Stack -= amount
	e.Committed -= amount
	e.UpdatedAt = k.clock.NowMillis()
	return nil
}

// AwardPot credits amount to the escrow's stack, incrementing the player's
// locked balance by the same amount. Re-creates the escrow if the player had
// busted out (stack reached zero) earlier in the hand.
func (k *Keeper) AwardPot(table econtypes.TableID, player econtypes.PlayerID, amount int64) *econerr.Error {
	if err := validateAmount(amount); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.balance.AdjustLocked(player, amount); err != nil {
		return err
	}

	e := k.getOrCreate(table, player)
	e.Stack += amount
	e.UpdatedAt = k.clock.NowMillis()
	return nil
}

// RestoreEscrow is the privileged recovery-only entry point (spec §4.2,
// §4.9 step 4): it writes an escrow directly without touching the Balance
// Keeper, because recovery has already rebuilt locked balances in a prior
// step and a normal BuyIn would double-lock them.
func (k *Keeper) RestoreEscrow(e Escrow) {
	k.mu.Lock()
	defer k.mu.Unlock()
	cp := e
	k.escrows[key{e.TableID, e.PlayerID}] = &cp
}

// Get returns a copy of the escrow for (table, player).
func (k *Keeper) Get(table econtypes.TableID, player econtypes.PlayerID) (Escrow, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.escrows[key{table, player}]
	if !ok {
		return Escrow{}, false
	}
	return *e, true
}

// Snapshot returns a copy of every escrow, sorted by (TableID, PlayerID) per
// the snapshot section ordering required by §6.
func (k *Keeper) Snapshot() []Escrow {
	k.mu.Lock()
	defer k.mu.Unlock()

	out := make([]Escrow, 0, len(k.escrows))
	for _, e := range k.escrows {
		out = append(out, *e)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && lessEscrow(out[j], out[j-1]); j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func lessEscrow(a, b Escrow) bool {
	if a.TableID != b.TableID {
		return a.TableID < b.TableID
	}
	return a.PlayerID < b.PlayerID
}

// Clear wipes all escrows. Used by Snapshot/Recovery before replaying a
// snapshot (spec §4.9 step 2).
func (k *Keeper) Clear() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.escrows = make(map[key]*Escrow)
}

// VerifyEscrowConsistency checks invariant 2 of §3: stack stays non-negative
// and committed never exceeds stack, for every escrow.
func (k *Keeper) VerifyEscrowConsistency() (bool, []string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	var offenders []string
	for kk, e := range k.escrows {
		if e.Stack < 0 || e.Committed < 0 || e.Committed > e.Stack {
			offenders = append(offenders, string(kk.table)+"/"+string(kk.player))
		}
	}
	return len(offenders) == 0, offenders
}

// LockedByPlayer sums stack+committed per player across all of that player's
// escrows, used by the locked_matches_escrow invariant.
func (k *Keeper) LockedByPlayer() map[econtypes.PlayerID]int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	totals := make(map[econtypes.PlayerID]int64)
	for kk, e := range k.escrows {
		totals[kk.player] += e.Stack + e.Committed
	}
	return totals
}
