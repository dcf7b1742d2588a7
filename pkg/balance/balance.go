// Package balance implements the Balance Keeper (spec §4.1): the single-writer
// actor owning every player's tri-bucket balance (available / locked / pending).
// It is the leaf of the dependency graph — nothing else in the core depends on
// it being concurrency-safe beyond the mutex below, and it depends on nothing
// else in the core.
package balance

import (
	"sync"

	"github.com/decred/slog"
	"github.com/vctt94/econcore/pkg/econerr"
	"github.com/vctt94/econcore/pkg/econtypes"
)

// Balance is the tri-bucket balance of one player. All three fields are
// non-negative by construction; Keeper never hands out a mutable pointer to
// its internal map entry, only copies, so callers cannot violate that from
// outside.
type Balance struct {
	PlayerID  econtypes.PlayerID
	Available int64
	Locked    int64
	Pending   int64
	CreatedAt int64
	UpdatedAt int64
}

// Keeper is the Balance Keeper actor. All methods are safe for concurrent use;
// internally a single mutex serializes every mutation, which is the Go
// equivalent of the spec's single-writer-per-actor model for this component.
type Keeper struct {
	log   slog.Logger
	clock econtypes.Clock

	mu       sync.Mutex
	balances map[econtypes.PlayerID]*Balance
}

// New creates an empty Balance Keeper.
func New(log slog.Logger, clock econtypes.Clock) *Keeper {
	return &Keeper{
		log:      log,
		clock:    clock,
		balances: make(map[econtypes.PlayerID]*Balance),
	}
}

func validateAmount(amount int64) *econerr.Error {
	if amount < 0 {
		return econerr.InvalidAmount("amount must be non-negative", map[string]interface{}{"amount": amount})
	}
	return nil
}

// Initialize creates a player's balance. Fails with a duplicate-init error
// (modeled as InvalidStatusTransition, since it is the balance's own lifecycle
// state that rejects a second init) if the player already has one.
func (k *Keeper) Initialize(player econtypes.PlayerID, initialAvailable int64) *econerr.Error {
	if err := validateAmount(initialAvailable); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if _, exists := k.balances[player]; exists {
		return econerr.InvalidStatusTransition("balance already initialized", map[string]interface{}{"player": string(player)})
	}

	now := k.clock.NowMillis()
	k.balances[player] = &Balance{
		PlayerID:  player,
		Available: initialAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	k.log.Debugf("balance initialized: player=%s available=%d", player, initialAvailable)
	return nil
}

// getOrZero returns the player's live balance struct, creating a zero balance
// if absent. Recovery (§4.9) relies on being able to credit into a balance it
// is actively rebuilding without a separate Initialize call per bucket.
func (k *Keeper) getOrZero(player econtypes.PlayerID) *Balance {
	b, ok := k.balances[player]
	if !ok {
		now := k.clock.NowMillis()
		b = &Balance{PlayerID: player, CreatedAt: now, UpdatedAt: now}
		k.balances[player] = b
	}
	return b
}

// Credit adds amount to the player's available balance.
func (k *Keeper) Credit(player econtypes.PlayerID, amount int64, reason string) *econerr.Error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	b := k.getOrZero(player)
	b.Available += amount
	b.UpdatedAt = k.clock.NowMillis()
	return nil
}

// Debit removes amount from the player's available balance. Fails
// InsufficientBalance if available < amount.
func (k *Keeper) Debit(player econtypes.PlayerID, amount int64, reason string) *econerr.Error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	b := k.getOrZero(player)
	if b.Available < amount {
		return econerr.InsufficientBalance(b.Available, amount)
	}
	b.Available -= amount
	b.UpdatedAt = k.clock.NowMillis()
	return nil
}

// Lock moves amount from available to locked.
func (k *Keeper) Lock(player econtypes.PlayerID, amount int64) *econerr.Error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	b := k.getOrZero(player)
	if b.Available < amount {
		return econerr.InsufficientBalance(b.Available, amount)
	}
	b.Available -= amount
	b.Locked += amount
	b.UpdatedAt = k.clock.NowMillis()
	return nil
}

// Unlock moves amount from locked back to available. Fails InvalidAmount if
// locked < amount (the spec uses InvalidAmount here rather than a precondition
// kind, since it represents a caller bug rather than a legitimate race).
func (k *Keeper) Unlock(player econtypes.PlayerID, amount int64) *econerr.Error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	b := k.getOrZero(player)
	if b.Locked < amount {
		return econerr.InvalidAmount("locked balance smaller than unlock amount",
			map[string]interface{}{"locked": b.Locked, "amount": amount})
	}
	b.Locked -= amount
	b.Available += amount
	b.UpdatedAt = k.clock.NowMillis()
	return nil
}

// AdjustLocked applies delta (positive or negative) directly to the locked
// bucket. Used by the Escrow Keeper when chips move to the pot (delta < 0) or
// are awarded back (delta > 0) — those transitions never touch available.
func (k *Keeper) AdjustLocked(player econtypes.PlayerID, delta int64) *econerr.Error {
	k.mu.Lock()
	defer k.mu.Unlock()

	b := k.getOrZero(player)
	if delta < 0 && b.Locked < -delta {
		return econerr.InvalidAmount("locked balance smaller than negative adjustment",
			map[string]interface{}{"locked": b.Locked, "delta": delta})
	}
	b.Locked += delta
	b.UpdatedAt = k.clock.NowMillis()
	return nil
}

// MoveToPending earmarks amount for a delayed settlement flow consumed by
// external interfaces (spec §4.1); it is the mirror image of ResolvePending.
func (k *Keeper) MoveToPending(player econtypes.PlayerID, amount int64) *econerr.Error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	b := k.getOrZero(player)
	if b.Available < amount {
		return econerr.InsufficientBalance(b.Available, amount)
	}
	b.Available -= amount
	b.Pending += amount
	b.UpdatedAt = k.clock.NowMillis()
	return nil
}

// ResolvePending moves amount from pending back to available, completing a
// delayed settlement flow.
func (k *Keeper) ResolvePending(player econtypes.PlayerID, amount int64) *econerr.Error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	b := k.getOrZero(player)
	if b.Pending < amount {
		return econerr.InvalidAmount("pending balance smaller than resolve amount",
			map[string]interface{}{"pending": b.Pending, "amount": amount})
	}
	b.Pending -= amount
	b.Available += amount
	b.UpdatedAt = k.clock.NowMillis()
	return nil
}

// Get returns a copy of the player's balance. Returns the zero value with ok
// = false if the player has no balance yet.
func (k *Keeper) Get(player econtypes.PlayerID) (Balance, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	b, ok := k.balances[player]
	if !ok {
		return Balance{}, false
	}
	return *b, true
}

// Snapshot returns a copy of every balance, sorted by PlayerID, matching the
// ordered snapshot section layout required by §6.
func (k *Keeper) Snapshot() []Balance {
	k.mu.Lock()
	defer k.mu.Unlock()

	out := make([]Balance, 0, len(k.balances))
	for _, b := range k.balances {
		out = append(out, *b)
	}
	sortBalances(out)
	return out
}

func sortBalances(bs []Balance) {
	for i := 1; i < len(bs); i++ {
		for j := i; j > 0 && bs[j-1].PlayerID > bs[j].PlayerID; j-- {
			bs[j-1], bs[j] = bs[j], bs[j-1]
		}
	}
}

// Clear wipes all balances. Used by Snapshot/Recovery before replaying a
// snapshot (spec §4.9 step 2).
func (k *Keeper) Clear() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.balances = make(map[econtypes.PlayerID]*Balance)
}

// VerifyNoNegativeBalances implements the no_negative_balances invariant
// (spec §3 invariant 1, §6 invariants interface).
func (k *Keeper) VerifyNoNegativeBalances() (bool, []econtypes.PlayerID) {
	k.mu.Lock()
	defer k.mu.Unlock()

	var offenders []econtypes.PlayerID
	for id, b := range k.balances {
		if b.Available < 0 || b.Locked < 0 || b.Pending < 0 {
			offenders = append(offenders, id)
		}
	}
	return len(offenders) == 0, offenders
}

// TotalChips sums available+locked+pending across every player, used by the
// balance_conservation invariant.
func (k *Keeper) TotalChips() int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	var total int64
	for _, b := range k.balances {
		total += b.Available + b.Locked + b.Pending
	}
	return total
}
