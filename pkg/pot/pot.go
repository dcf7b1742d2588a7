// Package pot implements the Pot Builder (spec §4.3): per-hand contribution
// tracking by street and by player, fold-aware eligibility, and the one-way
// settled transition. It holds no knowledge of side-pot layering or payouts —
// that is the Side-Pot Calculator's job (pkg/sidepot) once the pot is handed
// over at hand-end.
package pot

import (
	"sync"

	"github.com/vctt94/econcore/pkg/econerr"
	"github.com/vctt94/econcore/pkg/econtypes"
)

// Pot is a single hand's pot under construction.
type Pot struct {
	mu sync.Mutex

	handID  econtypes.HandID
	tableID econtypes.TableID

	contributionsByStreet map[econtypes.Street]map[econtypes.PlayerID]int64
	contributionsByPlayer map[econtypes.PlayerID]int64
	eligiblePlayers       map[econtypes.PlayerID]bool
	settled               bool
}

// New creates an empty pot for a hand.
func New(tableID econtypes.TableID, handID econtypes.HandID) *Pot {
	return &Pot{
		handID:                handID,
		tableID:               tableID,
		contributionsByStreet: make(map[econtypes.Street]map[econtypes.PlayerID]int64),
		contributionsByPlayer: make(map[econtypes.PlayerID]int64),
		eligiblePlayers:       make(map[econtypes.PlayerID]bool),
	}
}

func (p *Pot) HandID() econtypes.HandID   { return p.handID }
func (p *Pot) TableID() econtypes.TableID { return p.tableID }

// AddContribution appends amount to the player's street and running totals,
// and adds the player to the eligible set (first contribution only — folding
// later removes them but the contribution total is preserved so side-pot
// layering stays correct). Rejects once the pot is settled.
func (p *Pot) AddContribution(player econtypes.PlayerID, amount int64, street econtypes.Street) *econerr.Error {
	if amount < 0 {
		return econerr.InvalidAmount("contribution must be non-negative", map[string]interface{}{"amount": amount})
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.settled {
		return econerr.PotAlreadySettled(string(p.handID))
	}

	if _, seen := p.contributionsByPlayer[player]; !seen {
		p.eligiblePlayers[player] = true
	}
	if p.contributionsByStreet[street] == nil {
		p.contributionsByStreet[street] = make(map[econtypes.PlayerID]int64)
	}
	p.contributionsByStreet[street][player] += amount
	p.contributionsByPlayer[player] += amount
	return nil
}

// PlayerFolded removes player from the eligible set. Their contribution total
// is untouched.
func (p *Pot) PlayerFolded(player econtypes.PlayerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.eligiblePlayers, player)
}

// GetTotal returns the sum of every player's contribution.
func (p *Pot) GetTotal() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	var total int64
	for _, amt := range p.contributionsByPlayer {
		total += amt
	}
	return total
}

// GetPlayerContribution returns one player's running total.
func (p *Pot) GetPlayerContribution(player econtypes.PlayerID) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contributionsByPlayer[player]
}

// GetStreetTotal returns the total contributed on one street across all
// players.
func (p *Pot) GetStreetTotal(street econtypes.Street) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	var total int64
	for _, amt := range p.contributionsByStreet[street] {
		total += amt
	}
	return total
}

// EligiblePlayers returns the players currently eligible to win the pot (i.e.
// contributed and have not folded).
func (p *Pot) EligiblePlayers() []econtypes.PlayerID {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]econtypes.PlayerID, 0, len(p.eligiblePlayers))
	for id := range p.eligiblePlayers {
		out = append(out, id)
	}
	return out
}

// Contributions returns a copy of the per-player contribution totals. It does
// not report folds; IsFolded answers that for one player.
func (p *Pot) Contributions() map[econtypes.PlayerID]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[econtypes.PlayerID]int64, len(p.contributionsByPlayer))
	for id, amt := range p.contributionsByPlayer {
		out[id] = amt
	}
	return out
}

// IsFolded reports whether player contributed to the pot but is no longer in
// the eligible set.
func (p *Pot) IsFolded(player econtypes.PlayerID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, contributed := p.contributionsByPlayer[player]
	return contributed && !p.eligiblePlayers[player]
}

// MarkSettled is the one-way transition to read-only. Calling it twice is a
// no-op, not an error — Settlement's own idempotency is enforced one layer up
// by the settlement history, not here.
func (p *Pot) MarkSettled() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settled = true
}

// IsSettled reports whether MarkSettled has been called.
func (p *Pot) IsSettled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settled
}
