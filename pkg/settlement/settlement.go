// Package settlement implements the Settlement Engine (spec §4.8): the
// single operation that turns a finished hand's contributions into actual
// chip movement, exactly once per (table, hand). It is the top of the
// dependency graph — it orchestrates Side-Pot Calculator, Rake Evaluator,
// Escrow Keeper and Ledger inside one Transaction Coordinator transaction, so
// a mid-settlement failure compensates cleanly instead of leaving a hand
// half-paid.
package settlement

import (
	"sync"

	"github.com/decred/slog"
	"github.com/vctt94/econcore/pkg/econerr"
	"github.com/vctt94/econcore/pkg/econtypes"
	"github.com/vctt94/econcore/pkg/escrow"
	"github.com/vctt94/econcore/pkg/ledger"
	"github.com/vctt94/econcore/pkg/rake"
	"github.com/vctt94/econcore/pkg/sidepot"
	"github.com/vctt94/econcore/pkg/txn"
)

// Request describes one hand ready to be settled.
type Request struct {
	TableID      econtypes.TableID
	HandID       econtypes.HandID
	Contributors []sidepot.Contributor
	Ranking      map[econtypes.PlayerID]int // lower rank wins; used per side pot
	FlopSeen     bool
	FinalStreet  econtypes.Street
	RakeConfig   rake.Config
}

// PotResult is one settled side pot's outcome, for the caller's visibility
// (and for building the settlement record's audit detail).
type PotResult struct {
	Amount   int64
	Winners  []econtypes.PlayerID
	Payouts  map[econtypes.PlayerID]int64
	Rake     rake.Result
}

// Record is the full outcome of settling one hand, returned on both the
// fresh-settlement and the idempotent-replay path so callers can't tell them
// apart from the return value alone (they can from the Idempotent flag).
type Record struct {
	SettlementID econtypes.SettlementID
	TableID      econtypes.TableID
	HandID       econtypes.HandID
	Pots         []PotResult
	TotalRake    int64
	Idempotent   bool
}

// Engine wires the Settlement Engine to its three collaborators.
type Engine struct {
	log     slog.Logger
	escrows *escrow.Keeper
	ledger  *ledger.Ledger
	coord   *txn.Coordinator

	mu      sync.Mutex
	records map[econtypes.IdempotencyKey]*Record
}

// New creates a Settlement Engine over the given collaborators.
func New(log slog.Logger, escrows *escrow.Keeper, ledgr *ledger.Ledger, coord *txn.Coordinator) *Engine {
	return &Engine{
		log:     log,
		escrows: escrows,
		ledger:  ledgr,
		coord:   coord,
		records: make(map[econtypes.IdempotencyKey]*Record),
	}
}

// SettleHand lays out side pots, evaluates rake against the frozen config,
// credits winners' escrows and records the pot wins and rake on the ledger as
// one Transaction Coordinator transaction, then appends the settlement marker
// entry after that transaction has committed; idempotent by (table, hand). A
// repeated call with the same (table, hand) returns the original Record
// unchanged (Idempotent = true), matching spec §4.8 and the
// CodeDuplicateSettlement contract one layer down in the ledger.
func (e *Engine) SettleHand(req Request, now int64) (*Record, *econerr.Error) {
	key := econtypes.TableHandKey(req.TableID, req.HandID)

	e.mu.Lock()
	if existing, ok := e.records[key]; ok {
		cp := *existing
		cp.Idempotent = true
		e.mu.Unlock()
		return &cp, nil
	}
	e.mu.Unlock()

	pots := sidepot.Layout(req.Contributors)
	if len(pots) == 0 {
		return nil, econerr.InvalidConfig("no contributions to settle", map[string]interface{}{
			"table": string(req.TableID), "hand": string(req.HandID),
		})
	}

	isUncontested := isUncontested(req.Contributors)

	settlementID := econtypes.SettlementID(string(key))
	t, reused := e.coord.Begin(key, 0)
	if reused && t.Status() != txn.StatusPending {
		// A prior attempt already ran to completion or failure; surface the
		// recorded result rather than re-running steps against a non-pending
		// transaction.
		e.mu.Lock()
		existing, ok := e.records[key]
		e.mu.Unlock()
		if ok {
			cp := *existing
			cp.Idempotent = true
			return &cp, nil
		}
	}

	// Rake is evaluated exactly once against the hand's total pot (spec §4.8
	// steps 4-5, §8 property 7) — not per side pot. Evaluating it per pot
	// would let a hand's rake (and any minPotForRake/tiered waiver) depend on
	// how the pot happens to be layered into side pots rather than on the
	// hand as a whole.
	totalPot := sidepot.TotalPots(pots)
	handRake := rake.Evaluate(req.RakeConfig, rake.Request{
		PotSize:       totalPot,
		FlopSeen:      req.FlopSeen,
		IsUncontested: isUncontested,
		FinalStreet:   req.FinalStreet,
	}, now)

	type potWinners struct {
		pot     sidepot.Pot
		winners []econtypes.PlayerID
		raw     map[econtypes.PlayerID]int64
	}

	layout := make([]potWinners, len(pots))
	for potIdx, pot := range pots {
		winners := sidepot.Winners(pot, req.Ranking)
		if !sidepot.ValidateWinners(pot, winners) {
			return nil, econerr.InvalidConfig("winner not eligible for pot", map[string]interface{}{
				"potIndex": potIdx,
			})
		}
		layout[potIdx] = potWinners{pot: pot, winners: winners, raw: sidepot.Payout(pot, winners)}
	}

	// Scale every winner's raw (pre-rake) share by potAfterRake/totalPot,
	// flooring each one, then hand the single hand-wide remainder to the
	// first player with a positive floored payout in iteration order across
	// all pots — not a remainder per pot.
	payouts := make([]map[econtypes.PlayerID]int64, len(layout))
	var scaledSum int64
	for i, lw := range layout {
		payouts[i] = make(map[econtypes.PlayerID]int64, len(lw.winners))
		for _, w := range lw.winners {
			scaled := int64(0)
			if totalPot > 0 {
				scaled = lw.raw[w] * handRake.PotAfterRake / totalPot
			}
			payouts[i][w] = scaled
			scaledSum += scaled
		}
	}
	if remainder := handRake.PotAfterRake - scaledSum; remainder != 0 {
		assigned := false
		for i, lw := range layout {
			for _, w := range lw.winners {
				if payouts[i][w] > 0 {
					payouts[i][w] += remainder
					assigned = true
					break
				}
			}
			if assigned {
				break
			}
		}
		if !assigned {
			for i, lw := range layout {
				if len(lw.winners) > 0 {
					payouts[i][lw.winners[0]] += remainder
					break
				}
			}
		}
	}

	results := make([]PotResult, len(layout))
	for i, lw := range layout {
		idx := i
		localPayouts := payouts[i]
		t.AddStep("award-pot", func() *econerr.Error {
			for player, amount := range localPayouts {
				if amount == 0 {
					continue
				}
				if err := e.escrows.AwardPot(req.TableID, player, amount); err != nil {
					return err
				}
				e.ledger.RecordPotWin(req.TableID, req.HandID, player, amount, idx)
			}
			return nil
		}, func() *econerr.Error {
			for player, amount := range localPayouts {
				if amount == 0 {
					continue
				}
				if err := e.escrows.MoveToPot(req.TableID, player, amount); err != nil {
					return err
				}
			}
			return nil
		})

		results[i] = PotResult{
			Amount:  lw.pot.Amount,
			Winners: lw.winners,
			Payouts: payouts[i],
			Rake:    handRake,
		}
	}

	if handRake.RakeAmount > 0 {
		t.AddStep("record-rake", func() *econerr.Error {
			e.ledger.RecordRake(req.TableID, req.HandID, handRake.RakeAmount, handRake.ConfigHash)
			return nil
		}, nil)
	}

	if err := t.Commit(now); err != nil {
		return nil, err
	}

	if _, err := e.ledger.RecordSettlement(req.TableID, req.HandID, settlementID); err != nil {
		return nil, err
	}

	if ok, net := e.ledger.VerifyHandConservation(req.HandID); !ok {
		// The settlement transaction has already committed, so a
		// conservation failure here means the ledger itself is corrupted,
		// not that this settlement can be retried or rolled back. This is a
		// fatal condition for the operator, not this engine, to handle.
		return nil, econerr.ChipConservation("post-settlement conservation check failed", map[string]interface{}{
			"hand": string(req.HandID),
			"net":  net,
		})
	}

	record := &Record{
		SettlementID: settlementID,
		TableID:      req.TableID,
		HandID:       req.HandID,
		Pots:         results,
		TotalRake:    handRake.RakeAmount,
	}
	e.mu.Lock()
	e.records[key] = record
	e.mu.Unlock()

	cp := *record
	return &cp, nil
}

// Records returns a copy of every settlement record the engine has produced
// or restored so far, for Snapshot/Recovery to persist (spec §4.9's
// settlementHistory snapshot section) without reaching into the engine's
// internals.
func (e *Engine) Records() []*Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Record, 0, len(e.records))
	for _, r := range e.records {
		cp := *r
		out = append(out, &cp)
	}
	return out
}

// RestoreRecord is the privileged recovery-only entry point (spec §4.9 step
// 4): it re-registers a previously-committed settlement record directly in
// the idempotency index, without re-running the transaction that produced
// it, so a replayed settleHand for an already-paid hand returns the restored
// record instead of double-crediting escrow.
func (e *Engine) RestoreRecord(key econtypes.IdempotencyKey, record *Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := *record
	e.records[key] = &cp
}

// SettleUncontested is the single-winner specialization (spec §4.8): every
// remaining player but one folded, so there is exactly one pot and no
// ranking is needed.
func (e *Engine) SettleUncontested(tableID econtypes.TableID, handID econtypes.HandID, contributors []sidepot.Contributor, winner econtypes.PlayerID, cfg rake.Config, now int64) (*Record, *econerr.Error) {
	ranking := map[econtypes.PlayerID]int{winner: 0}
	for _, c := range contributors {
		if c.Player != winner {
			if _, ok := ranking[c.Player]; !ok {
				ranking[c.Player] = 1
			}
		}
	}

	return e.SettleHand(Request{
		TableID:      tableID,
		HandID:       handID,
		Contributors: contributors,
		Ranking:      ranking,
		FlopSeen:     true,
		FinalStreet:  econtypes.StreetPreFlop,
		RakeConfig:   cfg,
	}, now)
}

// PreviewSettlement computes the same layout and rake evaluation SettleHand
// would, without touching escrow or ledger state — used by table UIs to show
// players the expected payout before the hand is finalized.
func (e *Engine) PreviewSettlement(req Request, now int64) []PotResult {
	pots := sidepot.Layout(req.Contributors)
	isUncontested := isUncontested(req.Contributors)

	totalPot := sidepot.TotalPots(pots)
	handRake := rake.Evaluate(req.RakeConfig, rake.Request{
		PotSize:       totalPot,
		FlopSeen:      req.FlopSeen,
		IsUncontested: isUncontested,
		FinalStreet:   req.FinalStreet,
	}, now)

	type potWinners struct {
		pot     sidepot.Pot
		winners []econtypes.PlayerID
		raw     map[econtypes.PlayerID]int64
	}
	layout := make([]potWinners, len(pots))
	for i, pot := range pots {
		winners := sidepot.Winners(pot, req.Ranking)
		layout[i] = potWinners{pot: pot, winners: winners, raw: sidepot.Payout(pot, winners)}
	}

	payouts := make([]map[econtypes.PlayerID]int64, len(layout))
	var scaledSum int64
	for i, lw := range layout {
		payouts[i] = make(map[econtypes.PlayerID]int64, len(lw.winners))
		for _, w := range lw.winners {
			scaled := int64(0)
			if totalPot > 0 {
				scaled = lw.raw[w] * handRake.PotAfterRake / totalPot
			}
			payouts[i][w] = scaled
			scaledSum += scaled
		}
	}
	if remainder := handRake.PotAfterRake - scaledSum; remainder != 0 {
		assigned := false
		for i, lw := range layout {
			for _, w := range lw.winners {
				if payouts[i][w] > 0 {
					payouts[i][w] += remainder
					assigned = true
					break
				}
			}
			if assigned {
				break
			}
		}
		if !assigned {
			for i, lw := range layout {
				if len(lw.winners) > 0 {
					payouts[i][lw.winners[0]] += remainder
					break
				}
			}
		}
	}

	out := make([]PotResult, len(layout))
	for i, lw := range layout {
		out[i] = PotResult{Amount: lw.pot.Amount, Winners: lw.winners, Payouts: payouts[i], Rake: handRake}
	}
	return out
}

func isUncontested(contributors []sidepot.Contributor) bool {
	active := 0
	for _, c := range contributors {
		if !c.IsFolded {
			active++
		}
	}
	return active <= 1
}
