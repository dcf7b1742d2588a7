// Package rake implements the Rake Evaluator (spec §4.6): a pure,
// strategy-selected calculation over a frozen RakeConfig. Nothing here
// mutates state or reads wall-clock time directly — the caller passes the
// current time in, so waiver expiry checks stay deterministic under replay.
package rake

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/vctt94/econcore/pkg/econtypes"
)

// StreetOverride is a per-street percentage/cap pair that wins over the
// default when enabled (spec: "per-street override wins when enabled").
type StreetOverride struct {
	Street     econtypes.Street
	Percentage int64 // whole percentage points, e.g. 5 for 5%
	Cap        int64 // 0 means uncapped
}

// Waiver is an operator-controlled blanket waiver, independent of pot size or
// contest state.
type Waiver struct {
	Enabled   bool
	ExpiresAt *int64 // millis; nil means never expires
}

// Tier is one band of a tiered rake schedule; the first tier whose [Min,Max)
// covers the pot applies.
type Tier struct {
	MinPot     int64
	MaxPot     int64 // exclusive upper bound; 0 means unbounded
	Percentage int64
	Cap        int64
}

// Config is the frozen RakeConfig referenced by a table's rakePolicySnapshot
// (spec §4.10) for the life of a hand. It is a plain value type: equality by
// field, hashed deterministically by Hash().
type Config struct {
	DefaultPercentage  int64
	DefaultCap         int64
	NoFlopNoRake       bool
	ExcludeUncontested bool
	MinPotForRake      int64
	StreetOverrides    []StreetOverride
	Tiers              []Tier
	Waiver             *Waiver
	PolicyName         string
}

// Hash computes a deterministic hash of the config's fields, used as the
// policyHash half of a table's frozen {policyId, policyHash} reference.
func (c Config) Hash() string {
	h := sha256.New()
	fmt.Fprintf(h, "pct=%d|cap=%d|nfnr=%t|exun=%t|minpot=%d|",
		c.DefaultPercentage, c.DefaultCap, c.NoFlopNoRake, c.ExcludeUncontested, c.MinPotForRake)

	overrides := append([]StreetOverride(nil), c.StreetOverrides...)
	sort.Slice(overrides, func(i, j int) bool { return overrides[i].Street < overrides[j].Street })
	for _, o := range overrides {
		fmt.Fprintf(h, "so:%s:%d:%d|", o.Street, o.Percentage, o.Cap)
	}

	tiers := append([]Tier(nil), c.Tiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinPot < tiers[j].MinPot })
	for _, t := range tiers {
		fmt.Fprintf(h, "tier:%d:%d:%d:%d|", t.MinPot, t.MaxPot, t.Percentage, t.Cap)
	}

	if c.Waiver != nil {
		expires := int64(-1)
		if c.Waiver.ExpiresAt != nil {
			expires = *c.Waiver.ExpiresAt
		}
		fmt.Fprintf(h, "waiver:%t:%d|", c.Waiver.Enabled, expires)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// strategy identifies which calculation path Evaluate selects. It is internal
// to Evaluate and is not reported in Result; Result.PolicyName is the
// Config's PolicyName.
type strategy string

const (
	strategyZero     strategy = "zero"
	strategyStreet   strategy = "street"
	strategyTiered   strategy = "tiered"
	strategyStandard strategy = "standard"
)

func selectStrategy(c Config, req Request) strategy {
	if c.DefaultPercentage == 0 {
		return strategyZero
	}
	if len(c.StreetOverrides) > 0 {
		for _, o := range c.StreetOverrides {
			if o.Street == req.FinalStreet {
				return strategyStreet
			}
		}
	}
	if len(c.Tiers) > 0 {
		return strategyTiered
	}
	return strategyStandard
}

// Request carries the per-hand facts the evaluator needs; everything else
// comes from the frozen Config.
type Request struct {
	PotSize       int64
	FlopSeen      bool
	IsUncontested bool
	FinalStreet   econtypes.Street
}

// Result is the full rake evaluation output (spec §4.6).
type Result struct {
	RakeAmount        int64
	PotAfterRake      int64
	PercentageApplied int64 // derived display value only: rakeAmount*100/potSize
	CapApplied        bool
	Waived            bool
	WaivedReason      string
	PolicyName        string
	ConfigHash        string
}

// Evaluate runs the waiver checks (in the fixed order spec.md §4.6 requires,
// first match short-circuits) and, if nothing waives, the selected
// strategy's calculation. now is supplied by the caller's Clock so evaluation
// stays deterministic under test and replay.
func Evaluate(c Config, req Request, now int64) Result {
	base := Result{
		PotAfterRake: req.PotSize,
		PolicyName:   c.PolicyName,
		ConfigHash:   c.Hash(),
	}

	if req.PotSize < c.MinPotForRake {
		base.Waived = true
		base.WaivedReason = "below minimum"
		return base
	}
	if c.NoFlopNoRake && !req.FlopSeen {
		base.Waived = true
		base.WaivedReason = "No flop seen"
		return base
	}
	if c.ExcludeUncontested && req.IsUncontested {
		base.Waived = true
		base.WaivedReason = "uncontested pot excluded"
		return base
	}
	if c.Waiver != nil && c.Waiver.Enabled && (c.Waiver.ExpiresAt == nil || now < *c.Waiver.ExpiresAt) {
		base.Waived = true
		base.WaivedReason = "waiver active"
		return base
	}

	switch selectStrategy(c, req) {
	case strategyZero:
		base.Waived = true
		base.WaivedReason = "zero percentage configured"
		return base
	case strategyStreet:
		for _, o := range c.StreetOverrides {
			if o.Street == req.FinalStreet {
				return calculate(base, req.PotSize, o.Percentage, o.Cap)
			}
		}
		return calculate(base, req.PotSize, c.DefaultPercentage, c.DefaultCap)
	case strategyTiered:
		for _, t := range c.Tiers {
			if req.PotSize >= t.MinPot && (t.MaxPot == 0 || req.PotSize < t.MaxPot) {
				return calculate(base, req.PotSize, t.Percentage, t.Cap)
			}
		}
		return calculate(base, req.PotSize, c.DefaultPercentage, c.DefaultCap)
	default:
		return calculate(base, req.PotSize, c.DefaultPercentage, c.DefaultCap)
	}
}

func calculate(base Result, potSize, percentage, capLimit int64) Result {
	rake := (potSize * percentage) / 100
	if capLimit > 0 && rake > capLimit {
		rake = capLimit
		base.CapApplied = true
	}

	base.RakeAmount = rake
	base.PotAfterRake = potSize - rake
	if potSize > 0 {
		base.PercentageApplied = (rake * 100) / potSize
	}
	return base
}
