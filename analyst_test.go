package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestValidatorRejectsLongWithStopAboveEntry reproduces spec.md §8 scenario 6: analyst
// returns action=LONG, entry=100, stop_loss=101, tp1=110 -> rejected, stop >= entry for long.
func TestValidatorRejectsLongWithStopAboveEntry(t *testing.T) {
	out := AnalystOutput{
		Action: ActionLong, Conviction: 80, EntryPrice: 100, StopLoss: 101, TakeProfit1: 110,
		RiskReward: 2.0, TradeType: TradeSwing,
	}
	err := ValidateAnalystOutput(out, DefaultAnalystValidationConfig())
	require.Error(t, err)
}

func TestValidatorAcceptsWellFormedLong(t *testing.T) {
	out := AnalystOutput{
		Action: ActionLong, Conviction: 80, EntryPrice: 100, StopLoss: 97, TakeProfit1: 106,
		RiskReward: 2.0, TradeType: TradeSwing,
	}
	err := ValidateAnalystOutput(out, DefaultAnalystValidationConfig())
	require.NoError(t, err)
}

func TestValidatorRejectsLowConviction(t *testing.T) {
	out := AnalystOutput{
		Action: ActionLong, Conviction: 10, EntryPrice: 100, StopLoss: 97, TakeProfit1: 106,
		RiskReward: 2.0, TradeType: TradeSwing,
	}
	err := ValidateAnalystOutput(out, DefaultAnalystValidationConfig())
	require.Error(t, err)
}

func TestValidatorRejectsStopDistanceOutsideScalpBand(t *testing.T) {
	out := AnalystOutput{
		Action: ActionLong, Conviction: 80, EntryPrice: 100, StopLoss: 99.99, TakeProfit1: 100.5,
		RiskReward: 2.0, TradeType: TradeScalp, // 0.01% stop distance, below the 0.2% floor
	}
	err := ValidateAnalystOutput(out, DefaultAnalystValidationConfig())
	require.Error(t, err)
}

func TestValidatorRejectsLowRiskReward(t *testing.T) {
	out := AnalystOutput{
		Action: ActionShort, Conviction: 80, EntryPrice: 100, StopLoss: 103, TakeProfit1: 99,
		RiskReward: 0.5, TradeType: TradeSwing,
	}
	err := ValidateAnalystOutput(out, DefaultAnalystValidationConfig())
	require.Error(t, err)
}

func TestClampRiskBounds(t *testing.T) {
	cfg := DefaultAnalystValidationConfig()
	require.Equal(t, cfg.MinRiskUSD, ClampRisk(1, cfg))
	require.Equal(t, cfg.MaxRiskUSD, ClampRisk(10000, cfg))
	require.InDelta(t, 50.0, ClampRisk(50, cfg), 1e-9)
}

func TestLocalFallbackAnalystFlatOnInsufficientData(t *testing.T) {
	a := NewLocalFallbackAnalyst()
	out := a.Decide(AnalystInput{LTF: mkCandles([]float64{1, 2, 3})}, 0.55, 0.45)
	require.Equal(t, ActionFlat, out.Action)
}
