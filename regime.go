// FILE: regime.go
// Package main – Regime Classifier (C3).
//
// ClassifyGlobal and ScoreSymbol turn per-coin derivatives + price metrics into a regime label,
// a 0-100 score, and a direction bias, per spec.md §4.3. Every threshold below reproduces the
// constant it was specified against.
package main

import "math"

type RegimeLabel int

const (
	RegimeNeutral RegimeLabel = iota
	RegimeBull
	RegimeStrongBull
	RegimeBear
	RegimeStrongBear
	RegimeChoppy
	RegimeManipulation
	RegimeNews
)

func (r RegimeLabel) String() string {
	switch r {
	case RegimeBull:
		return "bull"
	case RegimeStrongBull:
		return "strong_bull"
	case RegimeBear:
		return "bear"
	case RegimeStrongBear:
		return "strong_bear"
	case RegimeChoppy:
		return "choppy"
	case RegimeManipulation:
		return "manipulation"
	case RegimeNews:
		return "news"
	default:
		return "neutral"
	}
}

// Regime thresholds (original_source/odin/macro/regime.py).
const (
	fundingExtremeHigh = 0.01
	fundingExtremeLow  = -0.005
	fundingElevated    = 0.005
	lsCrowdedLong      = 0.60
	lsCrowdedShort     = 0.60
	oiSurgeThresh      = 5.0
	liqDominanceThresh = 0.70

	counterTrendGlobalPct = 0.03
	counterTrendBlockPct  = 0.04
	counterTrendDampenPct = 0.02
	counterTrendDampen    = 0.3

	fundingArbMinRate8h = 0.0002
)

// DerivMetrics aggregates the per-coin signals the Regime Classifier consumes: funding,
// open-interest change, long/short ratio, liquidation volumes, taker buy ratio, and price
// changes across three windows.
type DerivMetrics struct {
	FundingRate8h  float64
	OIChange1h     float64
	OIChange4h     float64
	OIChange24h    float64
	LongShortRatio float64 // fraction long, e.g. 0.6 = 60% long
	LiqLongUSD     float64
	LiqShortUSD    float64
	TakerBuyRatio  float64
	PriceChange1h  float64
	PriceChange4h  float64
	PriceChange24h float64
}

// GlobalRegime is the process-wide regime snapshot, replaced atomically each scan.
type GlobalRegime struct {
	Label         RegimeLabel
	Score         float64
	DirectionBias Direction
}

// ClassifyGlobal implements spec.md §4.3's global label/score/bias algorithm. Special regimes
// (manipulation, news, choppy) are checked first and take precedence over the score-based label.
func ClassifyGlobal(m DerivMetrics) GlobalRegime {
	totalLiq := m.LiqLongUSD + m.LiqShortUSD
	imbalance := 0.0
	if totalLiq > 0 {
		imbalance = math.Abs(m.LiqLongUSD-m.LiqShortUSD) / totalLiq
	}

	if (totalLiq > 50_000_000 && imbalance < 0.3) || math.Abs(m.OIChange1h) > 10.0 {
		return GlobalRegime{Label: RegimeManipulation, Score: 50, DirectionBias: DirNeutral}
	}
	if math.Abs(m.PriceChange4h) > 5.0 || math.Abs(m.PriceChange1h) > 3.0 {
		return GlobalRegime{Label: RegimeNews, Score: 50, DirectionBias: DirNeutral}
	}
	if math.Abs(m.PriceChange4h) < 0.5 && math.Abs(m.FundingRate8h) < 0.002 &&
		m.LongShortRatio >= 0.45 && m.LongShortRatio <= 0.55 && math.Abs(m.OIChange1h) < 1.5 {
		return GlobalRegime{Label: RegimeChoppy, Score: 50, DirectionBias: DirNeutral}
	}

	score := 50.0
	switch {
	case m.FundingRate8h >= fundingExtremeHigh:
		score -= 15
	case m.FundingRate8h <= fundingExtremeLow:
		score += 8
	case m.FundingRate8h >= fundingElevated:
		score -= 8
	}

	switch {
	case m.OIChange1h > oiSurgeThresh && m.PriceChange1h < 0:
		score -= 15
	case m.OIChange1h > oiSurgeThresh && m.PriceChange1h > 0:
		score += 10
	case m.OIChange1h < -oiSurgeThresh:
		score += 5
	}

	if m.LongShortRatio >= lsCrowdedLong {
		score -= 10
	} else if m.LongShortRatio <= (1 - lsCrowdedShort) {
		score += 10
	}

	if totalLiq > 0 {
		longShare := m.LiqLongUSD / totalLiq
		if longShare >= liqDominanceThresh {
			score -= 10
		} else if (1 - longShare) >= liqDominanceThresh {
			score += 8
		}
	}

	switch {
	case m.PriceChange24h >= 5:
		score += 20
	case m.PriceChange24h <= -5:
		score -= 20
	case m.PriceChange24h >= 2:
		score += 10
	case m.PriceChange24h <= -2:
		score -= 10
	}

	if sameSign(m.PriceChange1h, m.PriceChange4h) {
		if m.PriceChange4h > 0 {
			score += 8
		} else if m.PriceChange4h < 0 {
			score -= 8
		}
	}

	score = clamp(score, 0, 100)

	bias := DirNeutral
	if score > 60 {
		bias = DirBullish
	} else if score < 40 {
		bias = DirBearish
	}

	// Counter-trend override against rallies/dumps at the global level.
	if bias == DirBearish && m.PriceChange4h > counterTrendGlobalPct*100 {
		bias = DirNeutral
	}
	if bias == DirBullish && m.PriceChange4h < -counterTrendGlobalPct*100 {
		bias = DirNeutral
	}

	label := RegimeNeutral
	switch {
	case score >= 80:
		label = RegimeStrongBull
	case score >= 60:
		label = RegimeBull
	case score <= 20:
		label = RegimeStrongBear
	case score <= 40:
		label = RegimeBear
	}

	return GlobalRegime{Label: label, Score: score, DirectionBias: bias}
}

// SymbolOpportunity is one coin's composite directional opportunity score.
type SymbolOpportunity struct {
	Symbol    string
	Direction Direction
	Score     float64
	Reasons   []string
}

// ScoreSymbol implements spec.md §4.3's per-symbol composite: weighted combination of
// {momentum 0.25, funding 0.25, OI 0.20, L/S 0.15, liquidations 0.15}, with a counter-trend
// dampen-or-block rule against the prevailing 4h move.
func ScoreSymbol(symbol string, m DerivMetrics) SymbolOpportunity {
	momentum := clamp(m.PriceChange4h/5.0, -1, 1)
	funding := clamp(-m.FundingRate8h/fundingExtremeHigh, -1, 1) // positive funding => bearish signal
	oi := clamp(m.OIChange1h/oiSurgeThresh, -1, 1)
	ls := clamp((0.5-m.LongShortRatio)/0.15, -1, 1) // crowded long => bearish signal
	totalLiq := m.LiqLongUSD + m.LiqShortUSD
	liq := 0.0
	if totalLiq > 0 {
		liq = clamp((m.LiqLongUSD-m.LiqShortUSD)/totalLiq, -1, 1) // longs rekt => bullish continuation signal is inverted below
	}

	composite := momentum*0.25 + funding*0.25 + oi*0.20 + ls*0.15 + (-liq)*0.15

	direction := DirNeutral
	if composite > 0.2 {
		direction = DirBullish
	} else if composite < -0.2 {
		direction = DirBearish
	}

	// Counter-trend override at the per-symbol level: block outright beyond 4%, dampen beyond 2%.
	if direction == DirBearish && m.PriceChange4h > counterTrendBlockPct*100 {
		direction = DirNeutral
	} else if direction == DirBullish && m.PriceChange4h < -counterTrendBlockPct*100 {
		direction = DirNeutral
	} else if direction == DirBearish && m.PriceChange4h > counterTrendDampenPct*100 {
		composite *= counterTrendDampen
	} else if direction == DirBullish && m.PriceChange4h < -counterTrendDampenPct*100 {
		composite *= counterTrendDampen
	}

	score := clamp(50+composite*50, 0, 100)
	reasons := []string{}
	if math.Abs(momentum) > 0.3 {
		reasons = append(reasons, "momentum")
	}
	if math.Abs(funding) > 0.3 {
		reasons = append(reasons, "funding")
	}
	if math.Abs(oi) > 0.3 {
		reasons = append(reasons, "open_interest")
	}
	return SymbolOpportunity{Symbol: symbol, Direction: direction, Score: score, Reasons: reasons}
}

// ScoreLiquidationOnly is the supplemented liq-only bulk-scan path (SPEC_FULL.md §4.12): for
// coins where only liquidation volume and 24h price change are available, produce a bounded
// score gated by a $1M liquidation-volume floor.
func ScoreLiquidationOnly(symbol string, liqLongUSD, liqShortUSD, priceChange24h float64) SymbolOpportunity {
	total := liqLongUSD + liqShortUSD
	if total < 1_000_000 {
		return SymbolOpportunity{Symbol: symbol, Direction: DirNeutral, Score: 0}
	}
	balance := 0.0
	if total > 0 {
		balance = (liqShortUSD - liqLongUSD) / total // shorts rekt => bullish continuation
	}
	if math.Abs(balance) < 0.5 {
		return SymbolOpportunity{Symbol: symbol, Direction: DirNeutral, Score: 0}
	}
	score := math.Min(70, math.Abs(balance)*70+math.Min(10, total/10_000_000*5))
	dir := DirBullish
	if balance < 0 {
		dir = DirBearish
	}
	return SymbolOpportunity{Symbol: symbol, Direction: dir, Score: score, Reasons: []string{"liquidation_imbalance"}}
}

// FundingArbEntry is one row of the funding-arb table (spec.md §4.3's funding-arb sub-signal).
type FundingArbEntry struct {
	Symbol         string
	CollectSide    Direction // long collects when rate is negative
	DailyIncomeUSD float64
	AnnualizedPct  float64
	Rate8h         float64
}

// FundingArbOpportunity returns nil if the funding rate doesn't clear the minimum threshold.
func FundingArbOpportunity(symbol string, m DerivMetrics, notionalUSD float64) *FundingArbEntry {
	if math.Abs(m.FundingRate8h) < fundingArbMinRate8h {
		return nil
	}
	side := DirBearish // shorts collect when funding is positive (longs pay shorts)
	if m.FundingRate8h < 0 {
		side = DirBullish
	}
	return &FundingArbEntry{
		Symbol:         symbol,
		CollectSide:    side,
		DailyIncomeUSD: math.Abs(m.FundingRate8h) * notionalUSD * 3,
		AnnualizedPct:  math.Abs(m.FundingRate8h) * 3 * 365 * 100,
		Rate8h:         m.FundingRate8h,
	}
}

// RegimeState is the process-wide snapshot replaced atomically each regime-refresh cycle.
type RegimeState struct {
	Global        GlobalRegime
	Opportunities []SymbolOpportunity
	FundingArb    []FundingArbEntry
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
