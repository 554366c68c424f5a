// FILE: exit.go
// Package main – Exit Engine (C6): per-position state machine evaluated on every price tick.
//
// Defaults reproduce original_source/odin/execution/exit_manager.py: trail_atr_mult 1.5,
// breakeven_r 1.0, activate_r 2.0, partials 25%@1.0R / 25%@1.5R / 30%@2.5R / remainder@4.0R,
// time exit at 12h held and |R|<0.3, regime multiplier 0.7 (chop) / 1.5 (trend).
package main

import (
	"math"
	"time"
)

type ExitActionKind int

const (
	ExitNone ExitActionKind = iota
	ExitStopLoss
	ExitPartial
	ExitTrailUpdate
	ExitTimeExit
)

func (k ExitActionKind) String() string {
	switch k {
	case ExitStopLoss:
		return "STOP_LOSS"
	case ExitPartial:
		return "PARTIAL"
	case ExitTrailUpdate:
		return "TRAIL"
	case ExitTimeExit:
		return "TIME_EXIT"
	default:
		return "NONE"
	}
}

// ExitDecision is one action the Exit Engine wants the Order Manager to apply.
type ExitDecision struct {
	Kind            ExitActionKind
	FractionOfRemaining float64 // for ExitPartial/terminal closes: fraction of *current* remaining qty
	Price           float64
	NewStop         float64 // for ExitTrailUpdate, and for the breakeven move on the early partial
	Label           string  // "early", "tp1", "tp2", "tp3", "stop", "time"
	Terminal        bool
}

// ExitParams are the tunable defaults from spec.md §6.
type ExitParams struct {
	TrailATRMultiplier float64
	TrailBreakevenR    float64
	TrailActivateR     float64
	Partial1Pct, Partial1R float64
	Partial2Pct, Partial2R float64
	Partial3R             float64
	MaxStaleHours         float64
	StaleThresholdR       float64
	RegimeChopMult        float64
	RegimeTrendMult       float64
	FundingStaleExtensionHours float64
}

func DefaultExitParams() ExitParams {
	return ExitParams{
		TrailATRMultiplier: 1.5,
		TrailBreakevenR:    1.0,
		TrailActivateR:     2.0,
		Partial1Pct: 0.25, Partial1R: 1.5,
		Partial2Pct: 0.30, Partial2R: 2.5,
		Partial3R: 4.0,
		MaxStaleHours:   12,
		StaleThresholdR: 0.3,
		RegimeChopMult:  0.7,
		RegimeTrendMult: 1.5,
		FundingStaleExtensionHours: 0,
	}
}

// PositionExitState is the Exit State owned exclusively by the Exit Engine for one Position
// (spec.md §3). Mutated only on tick.
type PositionExitState struct {
	Direction        Direction
	EntryPrice       float64
	OriginalStop     float64
	CurrentStop      float64
	OriginalQuantity float64
	RemainingQuantity float64
	HighestPrice     float64
	LowestPrice      float64
	EntryTime        time.Time

	EarlyHit bool
	TP1Hit   bool
	TP2Hit   bool

	PartialHistory []PartialFill // fraction of ORIGINAL quantity, for the Sigma<=1 invariant
	CollectingFunding bool
}

// PartialFill records one partial close as a fraction of the position's original quantity.
type PartialFill struct {
	FractionOfOriginal float64
	Price              float64
	Label              string
}

// NewPositionExitState initializes state at entry. original_stop_distance is |entry-stop|.
func NewPositionExitState(dir Direction, entry, stop, qty float64, at time.Time) *PositionExitState {
	return &PositionExitState{
		Direction: dir, EntryPrice: entry, OriginalStop: stop, CurrentStop: stop,
		OriginalQuantity: qty, RemainingQuantity: qty,
		HighestPrice: entry, LowestPrice: entry, EntryTime: at,
	}
}

func (st *PositionExitState) stopDistance() float64 {
	return math.Abs(st.EntryPrice - st.OriginalStop)
}

// currentR computes R = (current-entry)/original_stop_distance, sign-adjusted for direction.
func (st *PositionExitState) currentR(price float64) float64 {
	dist := st.stopDistance()
	if dist == 0 {
		return 0
	}
	if st.Direction == DirBullish {
		return (price - st.EntryPrice) / dist
	}
	return (st.EntryPrice - price) / dist
}

// regimeMultiplier implements spec.md §4.6: chop/manipulation/neutral/ranging -> 0.7,
// trend regimes -> 1.5, else 1.0.
func regimeMultiplier(p ExitParams, label RegimeLabel) float64 {
	switch label {
	case RegimeChoppy, RegimeManipulation, RegimeNeutral:
		return p.RegimeChopMult
	case RegimeBull, RegimeStrongBull, RegimeBear, RegimeStrongBear:
		return p.RegimeTrendMult
	default:
		return 1.0
	}
}

// Evaluate runs one tick of the per-position state machine (spec.md §4.6). now is the current
// wall-clock time (passed in, not read from time.Now(), so tests are deterministic); regime is
// the current global regime label used for the trailing-stop width multiplier.
func Evaluate(st *PositionExitState, params ExitParams, price, low, high float64, now time.Time, regime RegimeLabel, atr float64) []ExitDecision {
	var decisions []ExitDecision
	if st.RemainingQuantity <= 0 {
		return decisions
	}

	// 1. Stop hit? Terminal, returns immediately.
	stopHit := false
	if st.Direction == DirBullish && low <= st.CurrentStop {
		stopHit = true
	} else if st.Direction == DirBearish && high >= st.CurrentStop {
		stopHit = true
	}
	if stopHit {
		frac := st.RemainingQuantity
		st.RemainingQuantity = 0
		st.PartialHistory = append(st.PartialHistory, PartialFill{FractionOfOriginal: frac / st.OriginalQuantity, Price: st.CurrentStop, Label: "stop"})
		return []ExitDecision{{Kind: ExitStopLoss, FractionOfRemaining: 1.0, Price: st.CurrentStop, Label: "stop", Terminal: true}}
	}

	// 2. High-water marks.
	if high > st.HighestPrice {
		st.HighestPrice = high
	}
	if low < st.LowestPrice || st.LowestPrice == 0 {
		st.LowestPrice = low
	}
	r := st.currentR(price)

	// 3. Partial take-profits, sequential, each at most once, sequential `if` (not `elif`) so
	// a gap can trigger multiple levels in one tick.
	closePct := func(fracOfOriginal float64) float64 {
		if st.RemainingQuantity <= 1e-12 {
			return 0
		}
		pct := fracOfOriginal * st.OriginalQuantity / math.Max(st.RemainingQuantity, 1e-12)
		return math.Min(pct, 0.95)
	}

	if r >= 1.0 && !st.EarlyHit {
		st.EarlyHit = true
		pct := closePct(0.25)
		closedQty := pct * st.RemainingQuantity
		st.RemainingQuantity -= closedQty
		st.PartialHistory = append(st.PartialHistory, PartialFill{FractionOfOriginal: 0.25, Price: price, Label: "early"})
		st.CurrentStop = advanceStop(st, st.EntryPrice)
		decisions = append(decisions, ExitDecision{Kind: ExitPartial, FractionOfRemaining: pct, Price: price, NewStop: st.CurrentStop, Label: "early"})
	}
	if r >= params.Partial1R && !st.TP1Hit {
		st.TP1Hit = true
		pct := closePct(params.Partial1Pct)
		closedQty := pct * st.RemainingQuantity
		st.RemainingQuantity -= closedQty
		st.PartialHistory = append(st.PartialHistory, PartialFill{FractionOfOriginal: params.Partial1Pct, Price: price, Label: "tp1"})
		decisions = append(decisions, ExitDecision{Kind: ExitPartial, FractionOfRemaining: pct, Price: price, Label: "tp1"})
	}
	if r >= params.Partial2R && !st.TP2Hit {
		st.TP2Hit = true
		pct := closePct(params.Partial2Pct)
		closedQty := pct * st.RemainingQuantity
		st.RemainingQuantity -= closedQty
		st.PartialHistory = append(st.PartialHistory, PartialFill{FractionOfOriginal: params.Partial2Pct, Price: price, Label: "tp2"})
		decisions = append(decisions, ExitDecision{Kind: ExitPartial, FractionOfRemaining: pct, Price: price, Label: "tp2"})
	}
	if r >= params.Partial3R && st.RemainingQuantity > 1e-12 {
		remainingFracOfOriginal := st.RemainingQuantity / st.OriginalQuantity
		st.PartialHistory = append(st.PartialHistory, PartialFill{FractionOfOriginal: remainingFracOfOriginal, Price: price, Label: "tp3"})
		st.RemainingQuantity = 0
		decisions = append(decisions, ExitDecision{Kind: ExitPartial, FractionOfRemaining: 1.0, Price: price, Label: "tp3", Terminal: true})
		return decisions
	}

	// 4. Trailing stop: breakeven hold between breakeven_r and activate_r, full ATR-based
	// trail after activate_r. Stop advances only monotonically in the profit direction.
	if r >= params.TrailBreakevenR {
		candidate := st.EntryPrice
		if r >= params.TrailActivateR && !math.IsNaN(atr) {
			mult := params.TrailATRMultiplier * regimeMultiplier(params, regime)
			if st.Direction == DirBullish {
				candidate = st.HighestPrice - atr*mult
			} else {
				candidate = st.LowestPrice + atr*mult
			}
		}
		newStop := advanceStop(st, candidate)
		if newStop != st.CurrentStop {
			st.CurrentStop = newStop
			decisions = append(decisions, ExitDecision{Kind: ExitTrailUpdate, NewStop: newStop, Price: price, Label: "trail"})
		}
	}

	// 5. Time exit.
	if st.RemainingQuantity > 1e-12 {
		maxStale := params.MaxStaleHours
		if st.CollectingFunding && params.FundingStaleExtensionHours > 0 {
			maxStale += params.FundingStaleExtensionHours
		}
		hoursHeld := now.Sub(st.EntryTime).Hours()
		if hoursHeld >= maxStale && math.Abs(r) < params.StaleThresholdR {
			st.PartialHistory = append(st.PartialHistory, PartialFill{FractionOfOriginal: st.RemainingQuantity / st.OriginalQuantity, Price: price, Label: "time"})
			st.RemainingQuantity = 0
			decisions = append(decisions, ExitDecision{Kind: ExitTimeExit, FractionOfRemaining: 1.0, Price: price, Label: "time", Terminal: true})
		}
	}

	return decisions
}

// advanceStop enforces monotone-toward-profit movement: for long, stop never decreases; for
// short, stop never increases (spec.md invariant 2 / §8 invariant 2).
func advanceStop(st *PositionExitState, candidate float64) float64 {
	if st.Direction == DirBullish {
		if candidate > st.CurrentStop {
			return candidate
		}
		return st.CurrentStop
	}
	if candidate < st.CurrentStop {
		return candidate
	}
	return st.CurrentStop
}

// SumPartialFractions returns Sigma partial_history.fraction_of_original, for the invariant
// check in spec.md §8.1.
func SumPartialFractions(st *PositionExitState) float64 {
	var sum float64
	for _, p := range st.PartialHistory {
		sum += p.FractionOfOriginal
	}
	return sum
}
