// Package ledger implements the Ledger (spec §4.4): a hash-chained,
// append-only record of every chip movement, with secondary indexes for
// per-player/per-hand/per-table queries and a settlement-idempotency guard.
// The hash chain follows the same pattern as a blockchain WAL (each entry's
// hash commits to the previous entry's hash) but without blocks, mining, or
// consensus — it exists purely so a corrupted or truncated ledger can be
// detected deterministically by verifyIntegrity.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/decred/slog"
	"github.com/vctt94/econcore/pkg/econerr"
	"github.com/vctt94/econcore/pkg/econtypes"
)

// EntryType enumerates the kinds of chip movement the ledger records.
type EntryType string

const (
	EntryBuyIn      EntryType = "buy_in"
	EntryCashOut    EntryType = "cash_out"
	EntryBlind      EntryType = "blind"
	EntryBet        EntryType = "bet"
	EntryPotWin     EntryType = "pot_win"
	EntryRake       EntryType = "rake"
	EntrySettlement EntryType = "settlement"
)

// Entry is one immutable, hash-chained ledger record.
type Entry struct {
	Sequence  int64
	PrevHash  string
	Hash      string
	Timestamp int64
	Type      EntryType
	TableID   econtypes.TableID
	HandID    econtypes.HandID
	PlayerID  econtypes.PlayerID
	Amount    int64
	Metadata  map[string]interface{}
}

// Ledger is the append-only chain plus its secondary indexes. All public
// methods hold the single mutex for the duration of the call — there is
// exactly one writer, matching the spec's single-writer-per-actor model.
type Ledger struct {
	log   slog.Logger
	clock econtypes.Clock

	mu       sync.Mutex
	entries  []Entry
	lastHash string

	byPlayer map[econtypes.PlayerID][]int
	byHand   map[econtypes.HandID][]int
	byTable  map[econtypes.TableID][]int

	settled map[econtypes.IdempotencyKey]econtypes.SettlementID
}

// New creates an empty ledger. genesisHash seeds the chain (pass "" to start
// from the zero hash, or a prior ledger's last hash to continue a chain
// across a process restart that did not go through Snapshot/Recovery).
func New(log slog.Logger, clock econtypes.Clock, genesisHash string) *Ledger {
	return &Ledger{
		log:      log,
		clock:    clock,
		lastHash: genesisHash,
		byPlayer: make(map[econtypes.PlayerID][]int),
		byHand:   make(map[econtypes.HandID][]int),
		byTable:  make(map[econtypes.TableID][]int),
		settled:  make(map[econtypes.IdempotencyKey]econtypes.SettlementID),
	}
}

func canonicalHash(e Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "seq=%d|prev=%s|ts=%d|type=%s|table=%s|hand=%s|player=%s|amount=%d|",
		e.Sequence, e.PrevHash, e.Timestamp, e.Type, e.TableID, e.HandID, e.PlayerID, e.Amount)

	keys := make([]string, 0, len(e.Metadata))
	for k := range e.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%v|", k, e.Metadata[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// append is the sole mutation point: every recordXxx facade funnels through
// here so the chain is always contiguous.
func (l *Ledger) append(entryType EntryType, table econtypes.TableID, hand econtypes.HandID, player econtypes.PlayerID, amount int64, metadata map[string]interface{}) Entry {
	e := Entry{
		Sequence:  int64(len(l.entries)),
		PrevHash:  l.lastHash,
		Timestamp: l.clock.NowMillis(),
		Type:      entryType,
		TableID:   table,
		HandID:    hand,
		PlayerID:  player,
		Amount:    amount,
		Metadata:  metadata,
	}
	e.Hash = canonicalHash(e)

	idx := len(l.entries)
	l.entries = append(l.entries, e)
	l.lastHash = e.Hash

	l.byPlayer[player] = append(l.byPlayer[player], idx)
	l.byHand[hand] = append(l.byHand[hand], idx)
	l.byTable[table] = append(l.byTable[table], idx)

	l.log.Debugf("ledger entry seq=%d type=%s table=%s hand=%s player=%s amount=%d",
		e.Sequence, e.Type, e.TableID, e.HandID, e.PlayerID, e.Amount)
	return e
}

// RecordBuyIn, RecordCashOut, RecordBlind, RecordBet, RecordPotWin and
// RecordRake are the convenience facades named in spec §4.4; they only differ
// in EntryType, so they share the same append plumbing.

func (l *Ledger) RecordBuyIn(table econtypes.TableID, hand econtypes.HandID, player econtypes.PlayerID, amount int64) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.append(EntryBuyIn, table, hand, player, amount, nil)
}

func (l *Ledger) RecordCashOut(table econtypes.TableID, hand econtypes.HandID, player econtypes.PlayerID, amount int64) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.append(EntryCashOut, table, hand, player, amount, nil)
}

func (l *Ledger) RecordBlind(table econtypes.TableID, hand econtypes.HandID, player econtypes.PlayerID, amount int64) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.append(EntryBlind, table, hand, player, amount, nil)
}

func (l *Ledger) RecordBet(table econtypes.TableID, hand econtypes.HandID, player econtypes.PlayerID, amount int64, street econtypes.Street) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.append(EntryBet, table, hand, player, amount, map[string]interface{}{"street": string(street)})
}

func (l *Ledger) RecordPotWin(table econtypes.TableID, hand econtypes.HandID, player econtypes.PlayerID, amount int64, potIndex int) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.append(EntryPotWin, table, hand, player, amount, map[string]interface{}{"potIndex": potIndex})
}

func (l *Ledger) RecordRake(table econtypes.TableID, hand econtypes.HandID, amount int64, policyHash string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.append(EntryRake, table, hand, "", amount, map[string]interface{}{"policyHash": policyHash})
}

// RecordSettlement appends the settlement marker entry for (table, hand),
// refusing a second recording under the same idempotency key — this is the
// ledger-level half of the Settlement Engine's idempotency guarantee
// (spec §4.8, §7 CodeDuplicateSettlement).
func (l *Ledger) RecordSettlement(table econtypes.TableID, hand econtypes.HandID, settlementID econtypes.SettlementID) (Entry, *econerr.Error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := econtypes.TableHandKey(table, hand)
	if existing, ok := l.settled[key]; ok {
		return Entry{}, econerr.DuplicateSettlement(string(existing))
	}

	e := l.append(EntrySettlement, table, hand, "", 0, map[string]interface{}{"settlementId": string(settlementID)})
	l.settled[key] = settlementID
	return e, nil
}

// RestoreSettled is the privileged recovery-only entry point (spec §4.9 step
// 4): it marks (table, hand) settled directly in the idempotency index
// without appending a settlement entry to the chain, because the entry
// already exists from the original settlement and recovery is restoring the
// index, not replaying the chain.
func (l *Ledger) RestoreSettled(table econtypes.TableID, hand econtypes.HandID, settlementID econtypes.SettlementID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settled[econtypes.TableHandKey(table, hand)] = settlementID
}

// IsSettled reports whether (table, hand) already has a settlement entry.
func (l *Ledger) IsSettled(table econtypes.TableID, hand econtypes.HandID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.settled[econtypes.TableHandKey(table, hand)]
	return ok
}

// SettledKeys returns every (table, hand) idempotency key that already has a
// settlement entry, for Snapshot/Recovery to carry forward into a snapshot
// without re-reading the whole chain.
func (l *Ledger) SettledKeys() []econtypes.IdempotencyKey {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]econtypes.IdempotencyKey, 0, len(l.settled))
	for k := range l.settled {
		out = append(out, k)
	}
	return out
}

// LastHash and Sequence expose the chain's tip, for snapshots that want to
// record where the ledger stood at snapshot time.
func (l *Ledger) LastHash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastHash
}

func (l *Ledger) Sequence() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(len(l.entries))
}

// Entries returns a copy of the full chain in sequence order.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// ForPlayer returns a copy of every entry touching player, in sequence order.
func (l *Ledger) ForPlayer(player econtypes.PlayerID) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collect(l.byPlayer[player])
}

// ForHand returns a copy of every entry for (hand), in sequence order.
func (l *Ledger) ForHand(hand econtypes.HandID) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collect(l.byHand[hand])
}

// ForTable returns a copy of every entry for (table), in sequence order.
func (l *Ledger) ForTable(table econtypes.TableID) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collect(l.byTable[table])
}

func (l *Ledger) collect(indexes []int) []Entry {
	out := make([]Entry, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, l.entries[i])
	}
	return out
}

// VerifyIntegrity walks the chain and confirms every entry's Hash matches its
// recomputed canonical hash, and that PrevHash matches the previous entry's
// Hash. Returns the sequence number of the first broken entry, or 0 if the
// whole chain is intact.
func (l *Ledger) VerifyIntegrity() (ok bool, brokenAt int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := ""
	for i, e := range l.entries {
		if i == 0 {
			prev = l.entries[0].PrevHash
		}
		if e.PrevHash != prev {
			return false, e.Sequence
		}
		if canonicalHash(e) != e.Hash {
			return false, e.Sequence
		}
		prev = e.Hash
	}
	return true, 0
}

// VerifyHandConservation sums signed chip movement for a hand across
// buy-ins, cash-outs, blinds, bets, pot wins and rake, and reports whether it
// nets to zero — the ledger-level half of the per-hand conservation
// invariant (spec §8 property 1). Buy-ins/cash-outs move chips across the
// table boundary so they are excluded from the in-hand net; blinds/bets move
// chips from player to pot (negative), pot wins and rake move them out
// (also modeled as negative from the pot's perspective, positive from the
// table's), so the convention here is: blinds+bets-potWins-rake must equal 0.
func (l *Ledger) VerifyHandConservation(hand econtypes.HandID) (bool, int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var net int64
	for _, i := range l.byHand[hand] {
		e := l.entries[i]
		switch e.Type {
		case EntryBlind, EntryBet:
			net += e.Amount
		case EntryPotWin, EntryRake:
			net -= e.Amount
		}
	}
	return net == 0, net
}
