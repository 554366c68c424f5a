// FILE: analyst.go
// Package main – Analyst Boundary (C11): the external-LLM oracle contract and its strict
// validator, plus a local-fallback analyst used when no LLM endpoint is configured.
//
// Grounded on spec.md §4.11 for the contract/validation thresholds, and on the teacher's
// strategy.go `decide()` EMA-crossover-plus-micro-model logic (adapted here into
// LocalFallbackAnalyst.Decide, which replaces strategy.go's Signal/Decision/Candle types —
// candle.go now owns Candle) for the no-LLM-configured path.
package main

import "math"

type AnalystAction string

const (
	ActionLong  AnalystAction = "LONG"
	ActionShort AnalystAction = "SHORT"
	ActionFlat  AnalystAction = "FLAT"
)

// AnalystInput bundles everything spec.md §4.11 says the oracle needs.
type AnalystInput struct {
	Symbol          string
	HTF, MTF, LTF   []Candle
	Regime          GlobalRegime
	Opportunity     SymbolOpportunity
	NearbyZones     []Zone
	Balance         float64
	OpenPositions   int
	PastLessons     []string
}

// AnalystOutput is the oracle's strict-JSON response shape.
type AnalystOutput struct {
	Action        AnalystAction
	Conviction    float64
	EntryPrice    float64
	StopLoss      float64
	TakeProfit1   float64
	TakeProfit2   float64 // optional, zero if unset
	RiskReward    float64
	TradeType     TradeType
	RiskUSD       float64
	Reasoning     []string
}

// AnalystValidationConfig carries the tunables from spec.md §6's analyst category.
type AnalystValidationConfig struct {
	MinConviction float64
	MinRiskUSD    float64
	MaxRiskUSD    float64
}

func DefaultAnalystValidationConfig() AnalystValidationConfig {
	return AnalystValidationConfig{MinConviction: 50, MinRiskUSD: 5, MaxRiskUSD: 500}
}

const (
	stopPctScalpMin = 0.002
	stopPctScalpMax = 0.02
	stopPctSwingMin = 0.005
	stopPctSwingMax = 0.05
	rrMinScalp      = 1.0
	rrMinSwing      = 1.5
)

// ValidateAnalystOutput implements spec.md §4.11's acceptance rule exactly. Any failure
// returns a non-nil error describing the first violation found; the caller discards the
// signal for this cycle (spec.md §7: "Analyst-invalid ... rejected silently for this cycle").
func ValidateAnalystOutput(out AnalystOutput, cfg AnalystValidationConfig) error {
	if out.Action == ActionFlat {
		return analystInvalidf("action is FLAT")
	}
	if out.Conviction < cfg.MinConviction {
		return analystInvalidf("conviction %.1f below minimum %.1f", out.Conviction, cfg.MinConviction)
	}

	switch out.Action {
	case ActionLong:
		if !(out.StopLoss < out.EntryPrice && out.EntryPrice < out.TakeProfit1) {
			return analystInvalidf("long requires stop < entry < tp1, got stop=%.4f entry=%.4f tp1=%.4f", out.StopLoss, out.EntryPrice, out.TakeProfit1)
		}
	case ActionShort:
		if !(out.StopLoss > out.EntryPrice && out.EntryPrice > out.TakeProfit1) {
			return analystInvalidf("short requires stop > entry > tp1, got stop=%.4f entry=%.4f tp1=%.4f", out.StopLoss, out.EntryPrice, out.TakeProfit1)
		}
	}

	if out.EntryPrice <= 0 {
		return analystInvalidf("entry price must be positive")
	}
	stopPct := math.Abs(out.EntryPrice-out.StopLoss) / out.EntryPrice
	var minPct, maxPct, minRR float64
	if out.TradeType == TradeScalp {
		minPct, maxPct, minRR = stopPctScalpMin, stopPctScalpMax, rrMinScalp
	} else {
		minPct, maxPct, minRR = stopPctSwingMin, stopPctSwingMax, rrMinSwing
	}
	if stopPct < minPct || stopPct > maxPct {
		return analystInvalidf("stop distance %.4f%% outside %s band [%.2f%%,%.2f%%]", stopPct*100, out.TradeType, minPct*100, maxPct*100)
	}
	if out.RiskReward < minRR {
		return analystInvalidf("risk_reward %.2f below %s minimum %.2f", out.RiskReward, out.TradeType, minRR)
	}
	return nil
}

// ClampRisk implements the "requested risk clamped to [min_risk, max_risk]" rule.
func ClampRisk(requested float64, cfg AnalystValidationConfig) float64 {
	return clamp(requested, cfg.MinRiskUSD, cfg.MaxRiskUSD)
}

// LocalFallbackAnalyst is used when no external LLM endpoint is configured. Adapted from the
// teacher's AIMicroModel + EMA(4)/EMA(8) crossover `decide()` logic (strategy.go), retargeted
// from a spot BUY/SELL/FLAT signal onto the wider LONG/SHORT/FLAT analyst contract.
type LocalFallbackAnalyst struct {
	model *AIMicroModel
}

func NewLocalFallbackAnalyst() *LocalFallbackAnalyst {
	return &LocalFallbackAnalyst{model: newModel()}
}

// Decide mirrors strategy.go's decide(): a micro-model pUp gated by an EMA(4)/EMA(8)
// crossover regime filter, retargeted to emit an AnalystOutput instead of a spot Signal.
func (a *LocalFallbackAnalyst) Decide(in AnalystInput, buyThreshold, sellThreshold float64) AnalystOutput {
	c := in.LTF
	if len(c) < 40 {
		return AnalystOutput{Action: ActionFlat, Reasoning: []string{"not_enough_data"}}
	}
	i := len(c) - 1

	rsis := RSI(c, 14)
	zs := ZScore(c, 20)
	ret1 := (c[i].Close - c[i-1].Close) / c[i-1].Close
	ret5 := (c[i].Close - c[i-5].Close) / c[i-5].Close
	features := []float64{ret1, ret5, rsis[i] / 100.0, zs[i]}
	pUp := a.model.predict(features)

	closes := make([]float64, len(c))
	for k := range c {
		closes[k] = c[k].Close
	}
	ema4 := emaFloat(closes, 4)
	ema8 := emaFloat(closes, 8)
	fast, slow := ema4[i], ema8[i]
	fast3, slow3 := ema4[i-3], ema8[i-3]

	bullish := fast3 < slow3 && fast > slow
	bearish := fast3 > slow3 && fast < slow

	price := c[i].Close
	atr := ATR(c, 14)[i]
	if math.IsNaN(atr) || atr <= 0 {
		atr = price * 0.01
	}

	if pUp > buyThreshold && bullish {
		stop := price - atr*1.5
		tp1 := price + atr*2.25
		return AnalystOutput{
			Action: ActionLong, Conviction: pUp * 100, EntryPrice: price,
			StopLoss: stop, TakeProfit1: tp1, RiskReward: (tp1 - price) / (price - stop),
			TradeType: TradeSwing, RiskUSD: 0, Reasoning: []string{"micro-model pUp + ema crossover bullish"},
		}
	}
	if pUp < sellThreshold && bearish {
		stop := price + atr*1.5
		tp1 := price - atr*2.25
		return AnalystOutput{
			Action: ActionShort, Conviction: (1 - pUp) * 100, EntryPrice: price,
			StopLoss: stop, TakeProfit1: tp1, RiskReward: (price - tp1) / (stop - price),
			TradeType: TradeSwing, RiskUSD: 0, Reasoning: []string{"micro-model pUp + ema crossover bearish"},
		}
	}
	return AnalystOutput{Action: ActionFlat, Reasoning: []string{"no edge"}}
}

// emaFloat is the plain []float64 EMA used by the fallback analyst (indicators.go's EMA takes
// []Candle; this mirrors the teacher's strategy.go which operated on closes directly).
func emaFloat(v []float64, n int) []float64 {
	out := make([]float64, len(v))
	if len(v) == 0 {
		return out
	}
	alpha := 2.0 / (float64(n) + 1.0)
	var sum float64
	seed := n
	if seed > len(v) {
		seed = len(v)
	}
	for i := 0; i < seed; i++ {
		sum += v[i]
		out[i] = sum / float64(i+1)
	}
	for i := seed; i < len(v); i++ {
		out[i] = alpha*v[i] + (1-alpha)*out[i-1]
	}
	return out
}
