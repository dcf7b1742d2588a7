// Package sidepot implements the Side-Pot Calculator (spec §4.5): a pure
// function from per-player contributions to a layered pot structure, plus the
// payout split with the odd-chip rule. Nothing here touches Balance/Escrow/
// Ledger state — the Settlement Engine is the only caller that turns these
// results into actual chip movement.
package sidepot

import "github.com/vctt94/econcore/pkg/econtypes"

// Contributor is one player's final state for a hand, as supplied by the
// (external, out-of-scope) hand engine at hand-end.
type Contributor struct {
	Player            econtypes.PlayerID
	TotalContribution int64
	IsAllIn           bool
	IsFolded          bool
}

// Pot is one layer of the pot: an amount and the players eligible to win it,
// in deterministic iteration order (ascending contribution level, then player
// ID) — the same order the odd-chip rule reads "first winner" from.
type Pot struct {
	Amount          int64
	EligiblePlayers []econtypes.PlayerID
}

// Layout lays out side pots from a hand's final contributions, per spec
// §4.5's algorithm: filter zero contributions, sort ascending, find the
// unique contribution levels, and slice one pot per level with eligibility
// restricted to non-folded players who reached that level.
func Layout(contributors []Contributor) []Pot {
	active := make([]Contributor, 0, len(contributors))
	for _, c := range contributors {
		if c.TotalContribution > 0 {
			active = append(active, c)
		}
	}
	if len(active) == 0 {
		return nil
	}

	sortContributors(active)

	// Unique contribution levels, ascending.
	var levels []int64
	for _, c := range active {
		if len(levels) == 0 || levels[len(levels)-1] != c.TotalContribution {
			levels = append(levels, c.TotalContribution)
		}
	}

	var pots []Pot
	var prevLevel int64
	for _, level := range levels {
		layer := level - prevLevel

		var amount int64
		var eligible []econtypes.PlayerID
		for _, c := range active {
			if c.TotalContribution >= level {
				amount += layer
				if !c.IsFolded {
					eligible = append(eligible, c.Player)
				}
			}
		}

		if amount > 0 {
			pots = append(pots, Pot{Amount: amount, EligiblePlayers: eligible})
		}
		prevLevel = level
	}

	return pots
}

// sortContributors sorts ascending by TotalContribution, tie-broken by
// Player ID, giving a stable deterministic iteration order for the odd-chip
// rule. Matches the teacher's hand-rolled insertion sort style.
func sortContributors(cs []Contributor) {
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && less(cs[j], cs[j-1]); j-- {
			cs[j-1], cs[j] = cs[j], cs[j-1]
		}
	}
}

func less(a, b Contributor) bool {
	if a.TotalContribution != b.TotalContribution {
		return a.TotalContribution < b.TotalContribution
	}
	return a.Player < b.Player
}

// TotalContributions sums every contributor's total, for the conservation
// check (spec: Σ pots = Σ contributions, pre-rake).
func TotalContributions(contributors []Contributor) int64 {
	var total int64
	for _, c := range contributors {
		total += c.TotalContribution
	}
	return total
}

// TotalPots sums every pot's amount.
func TotalPots(pots []Pot) int64 {
	var total int64
	for _, p := range pots {
		total += p.Amount
	}
	return total
}

// Winners determines the winner(s) of one pot from a ranking map (lower rank
// wins; ties share), restricted to that pot's eligible players, preserving
// the pot's deterministic iteration order.
func Winners(pot Pot, ranking map[econtypes.PlayerID]int) []econtypes.PlayerID {
	var best int
	var winners []econtypes.PlayerID
	haveBest := false

	for _, p := range pot.EligiblePlayers {
		rank, ok := ranking[p]
		if !ok {
			continue
		}
		switch {
		case !haveBest || rank < best:
			best = rank
			winners = []econtypes.PlayerID{p}
			haveBest = true
		case rank == best:
			winners = append(winners, p)
		}
	}
	return winners
}

// Payout splits a pot's amount across its winners, flooring the per-winner
// share and assigning the remainder to the first winner in iteration order
// (spec §4.5, §8 property 7). winners must all be members of
// pot.EligiblePlayers; ValidateWinners enforces that as a hard error before
// Payout is called in practice.
func Payout(pot Pot, winners []econtypes.PlayerID) map[econtypes.PlayerID]int64 {
	out := make(map[econtypes.PlayerID]int64, len(winners))
	if len(winners) == 0 {
		return out
	}

	n := int64(len(winners))
	per := pot.Amount / n
	remainder := pot.Amount % n

	for _, w := range winners {
		out[w] += per
	}
	out[winners[0]] += remainder
	return out
}

// IsEligible reports whether player is in pot's eligible set.
func IsEligible(pot Pot, player econtypes.PlayerID) bool {
	for _, p := range pot.EligiblePlayers {
		if p == player {
			return true
		}
	}
	return false
}

// ValidateWinners returns false if any named winner is not eligible for pot —
// the hard-error eligibility-violation case required by spec §4.5.
func ValidateWinners(pot Pot, winners []econtypes.PlayerID) bool {
	for _, w := range winners {
		if !IsEligible(pot, w) {
			return false
		}
	}
	return true
}
