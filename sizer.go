// FILE: sizer.go
// Package main – Position Sizer (C5): structure-based stop placement, risk-sized quantity,
// leverage derivation.
//
// Every constant below reproduces original_source/odin/risk/position_sizer.py: MIN_RISK_USD
// 3.00, MAX_LEVERAGE 50, SL bounds 2.0-4.0% (genuine conviction) / 0.5-1.5% (risky), structure
// buffer 0.15%, ATR fallback 2.5%/0.5%, funding bonus +20%/penalty -15%, exposure scaling
// x0.5/x0.75.
package main

import "math"

const (
	sizerMinRiskUSD       = 3.00
	sizerMaxLeverage      = 50
	sizerDefaultRiskUSD   = 25.0
	sizerDefaultRiskPct   = 3.25
	sizerGenuineConviction = 70.0

	slMinGenuine = 0.020
	slMaxGenuine = 0.040
	slMinRisky   = 0.005
	slMaxRisky   = 0.015

	structureBuffer = 0.0015
	atrFallbackGenuine = 0.025
	atrFallbackRisky   = 0.005

	fundingArbMinForBonus = 0.0002
	fundingPenaltyTrigger = 0.0005
	fundingBonusMult      = 1.20
	fundingPenaltyMult    = 0.85

	exposureHighRatio   = 2.0
	exposureMedRatio    = 1.0
	exposureHighScale   = 0.5
	exposureMedScale    = 0.75
)

// TradeType distinguishes scalp (tight, fast) from swing (wider, slower) trade management.
type TradeType string

const (
	TradeScalp TradeType = "scalp"
	TradeSwing TradeType = "swing"
)

// SizingInputs carries everything the Sizer needs for one proposed trade.
type SizingInputs struct {
	Symbol          string
	Direction       Direction
	TradeType       TradeType
	EntryPrice      float64
	Conviction      float64 // 0-100
	CallerStopLoss  *float64
	RiskOverrideUSD *float64

	ConfigRiskUSD float64
	ConfigRiskPct float64
	Balance       float64
	MaxLeverage   int
	LeverageOverride *int

	ConvictionMultiplier float64
	MacroMultiplier      float64
	VolatilityScalar     float64
	DrawdownScalar       float64
	EdgeScalar           float64

	ATR           float64
	FundingRate8h float64 // signed; negative => longs collect

	NotionalCapOverride *float64
	ExposureRatio       float64 // current heat / balance, pre-trade
}

// Adjustment is one scalar applied to the base risk amount, for the audit trail.
type Adjustment struct {
	Name       string
	Multiplier float64
}

// SizingResult is the Sizer's full output, including the audit trail spec.md §4.5 requires.
type SizingResult struct {
	StopPrice       float64
	StopSource      string // "zone", "caller_stop", "atr_fallback"
	Quantity        float64
	Notional        float64
	Leverage        int
	Margin          float64
	RealizedRiskUSD float64
	TooSmall        bool
	Reason          string
	Adjustments     []Adjustment
	ZoneID          string // anchoring zone id, if StopSource=="zone" (for Zone Memory hit tracking)
}

// Sizer computes position size against Zone Memory-informed stop placement.
type Sizer struct {
	Zones *ZoneMemory
}

func NewSizer(zones *ZoneMemory) *Sizer { return &Sizer{Zones: zones} }

// Calculate implements spec.md §4.5's full algorithm.
func (s *Sizer) Calculate(in SizingInputs) SizingResult {
	var res SizingResult
	genuine := in.Conviction >= sizerGenuineConviction
	slMin, slMax := slMinRisky, slMaxRisky
	if genuine {
		slMin, slMax = slMinGenuine, slMaxGenuine
	}
	if in.CallerStopLoss != nil && *in.CallerStopLoss == in.EntryPrice {
		res.Reason = "invalid_inputs"
		return res
	}

	stopPrice, source, zoneID := s.placeStop(in, genuine, slMin, slMax)
	res.StopPrice = stopPrice
	res.StopSource = source
	res.ZoneID = zoneID

	stopDistPct := math.Abs(in.EntryPrice-stopPrice) / in.EntryPrice
	if stopDistPct == 0 {
		res.Reason = "invalid_inputs"
		return res
	}
	if stopDistPct < slMin {
		stopDistPct = slMin
	} else if stopDistPct > slMax {
		stopDistPct = slMax
	}
	res.StopPrice = adjustedStopFromPct(in, stopDistPct)

	riskUSD, adjustments := s.determineRisk(in)
	res.Adjustments = adjustments

	if riskUSD < sizerMinRiskUSD {
		res.TooSmall = true
		res.Reason = "too_small"
		return res
	}

	stopDistanceUSD := in.EntryPrice * stopDistPct
	quantity := riskUSD / stopDistanceUSD
	notional := quantity * in.EntryPrice

	cap := notionalCap(in)
	if notional > cap {
		scale := cap / notional
		quantity *= scale
		notional = cap
		riskUSD *= scale
		res.Adjustments = append(res.Adjustments, Adjustment{Name: "notional_cap", Multiplier: scale})
	}

	leverage := sizerMaxLeverage
	if in.LeverageOverride != nil {
		leverage = *in.LeverageOverride
	} else if in.Balance > 0 {
		leverage = int(math.Ceil(notional / in.Balance))
	}
	maxLev := in.MaxLeverage
	if maxLev <= 0 {
		maxLev = sizerMaxLeverage
	}
	if leverage > maxLev {
		leverage = maxLev
	}
	if leverage < 1 {
		leverage = 1
	}

	res.Quantity = quantity
	res.Notional = notional
	res.Leverage = leverage
	res.Margin = notional / float64(leverage)
	res.RealizedRiskUSD = riskUSD
	return res
}

// placeStop implements the stop-placement search: strongest unmitigated protective-side zone
// within a conviction-dependent max distance, else the caller's stop if sensible, else an ATR
// fallback.
func (s *Sizer) placeStop(in SizingInputs, genuine bool, slMin, slMax float64) (price float64, source string, zoneID string) {
	maxDist := 0.015
	if genuine {
		maxDist = 0.04
	}

	if s.Zones != nil {
		var lo, hi float64
		if in.Direction == DirBullish {
			lo, hi = in.EntryPrice*(1-maxDist), in.EntryPrice
		} else {
			lo, hi = in.EntryPrice, in.EntryPrice*(1+maxDist)
		}
		zones := s.Zones.ActiveZones(in.Symbol, lo, hi)
		var best *Zone
		for i := range zones {
			z := zones[i]
			protective := (in.Direction == DirBullish && z.Bottom < in.EntryPrice) ||
				(in.Direction == DirBearish && z.Top > in.EntryPrice)
			if !protective {
				continue
			}
			dist := zoneProtectiveDistance(in, z)
			if dist < 0.003 || dist > slMax {
				continue
			}
			if best == nil || z.Strength > best.Strength {
				zc := z
				best = &zc
			}
		}
		if best != nil {
			if in.Direction == DirBullish {
				return best.Bottom * (1 - structureBuffer), "zone", best.ID
			}
			return best.Top * (1 + structureBuffer), "zone", best.ID
		}
	}

	if in.CallerStopLoss != nil {
		dist := math.Abs(in.EntryPrice-*in.CallerStopLoss) / in.EntryPrice
		if dist >= slMin && dist <= slMax {
			return *in.CallerStopLoss, "caller_stop", ""
		}
	}

	fallbackPct := atrFallbackRisky
	if genuine {
		fallbackPct = atrFallbackGenuine
	}
	if in.Direction == DirBullish {
		return in.EntryPrice * (1 - fallbackPct), "atr_fallback", ""
	}
	return in.EntryPrice * (1 + fallbackPct), "atr_fallback", ""
}

func zoneProtectiveDistance(in SizingInputs, z Zone) float64 {
	if in.Direction == DirBullish {
		return math.Abs(in.EntryPrice-z.Bottom) / in.EntryPrice
	}
	return math.Abs(z.Top-in.EntryPrice) / in.EntryPrice
}

func adjustedStopFromPct(in SizingInputs, pct float64) float64 {
	if in.Direction == DirBullish {
		return in.EntryPrice * (1 - pct)
	}
	return in.EntryPrice * (1 + pct)
}

// determineRisk implements spec.md §4.5's risk chain: explicit override used verbatim, else
// base risk scaled by every discipline/macro/funding/exposure scalar in turn.
func (s *Sizer) determineRisk(in SizingInputs) (float64, []Adjustment) {
	if in.RiskOverrideUSD != nil && *in.RiskOverrideUSD > 0 {
		return *in.RiskOverrideUSD, []Adjustment{{Name: "analyst_override", Multiplier: 1}}
	}

	configUSD := in.ConfigRiskUSD
	if configUSD <= 0 {
		configUSD = sizerDefaultRiskUSD
	}
	configPct := in.ConfigRiskPct
	if configPct <= 0 {
		configPct = sizerDefaultRiskPct
	}
	base := math.Min(configUSD, in.Balance*configPct/100)

	var adjustments []Adjustment
	apply := func(name string, m float64) {
		if m <= 0 {
			m = 1
		}
		if m > 1 {
			m = 1 // discipline scalars only ever reduce risk, never amplify
		}
		base *= m
		adjustments = append(adjustments, Adjustment{Name: name, Multiplier: m})
	}

	if in.ConvictionMultiplier > 0 {
		apply("conviction", in.ConvictionMultiplier)
	}
	if in.MacroMultiplier > 0 {
		apply("macro", in.MacroMultiplier)
	}
	if in.VolatilityScalar > 0 {
		apply("volatility", in.VolatilityScalar)
	}
	if in.DrawdownScalar > 0 {
		apply("drawdown", in.DrawdownScalar)
	}
	if in.EdgeScalar > 0 {
		apply("edge", in.EdgeScalar)
	}

	collecting := (in.Direction == DirBullish && in.FundingRate8h < 0) || (in.Direction == DirBearish && in.FundingRate8h > 0)
	rateAbs := math.Abs(in.FundingRate8h)
	if collecting && rateAbs >= fundingArbMinForBonus {
		base *= fundingBonusMult
		adjustments = append(adjustments, Adjustment{Name: "funding_bonus", Multiplier: fundingBonusMult})
	} else if !collecting && rateAbs >= fundingPenaltyTrigger {
		base *= fundingPenaltyMult
		adjustments = append(adjustments, Adjustment{Name: "funding_penalty", Multiplier: fundingPenaltyMult})
	}

	if in.ExposureRatio > exposureHighRatio {
		base *= exposureHighScale
		adjustments = append(adjustments, Adjustment{Name: "exposure_high", Multiplier: exposureHighScale})
	} else if in.ExposureRatio > exposureMedRatio {
		base *= exposureMedScale
		adjustments = append(adjustments, Adjustment{Name: "exposure_med", Multiplier: exposureMedScale})
	}

	return base, adjustments
}

// notionalCap implements spec.md §4.5's tier-aware ceiling: caller-supplied override, or the
// discrete small-account schedule, or 10x balance.
func notionalCap(in SizingInputs) float64 {
	if in.NotionalCapOverride != nil && *in.NotionalCapOverride > 0 {
		return *in.NotionalCapOverride
	}
	b := in.Balance
	switch {
	case b >= 1000:
		return b * 10
	case b >= 500:
		return 5000
	case b >= 300:
		return 3000
	case b >= 200:
		return 2000
	default:
		return math.Max(100, b*10)
	}
}
