package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSizerZeroBalanceTooSmall(t *testing.T) {
	s := NewSizer(nil)
	in := SizingInputs{
		Symbol: "BTCUSDT", Direction: DirBullish, EntryPrice: 100, Conviction: 50,
		Balance: 0, ConfigRiskUSD: 25, ConfigRiskPct: 3.25,
		ConvictionMultiplier: 1, MacroMultiplier: 1, VolatilityScalar: 1, DrawdownScalar: 1, EdgeScalar: 1,
	}
	res := s.Calculate(in)
	require.True(t, res.TooSmall)
	require.Equal(t, 0.0, res.Quantity)
	require.Equal(t, "too_small", res.Reason)
}

func TestSizerInvalidInputsZeroStopDistance(t *testing.T) {
	s := NewSizer(nil)
	stop := 100.0
	in := SizingInputs{
		Symbol: "BTCUSDT", Direction: DirBullish, EntryPrice: 100, Conviction: 50,
		CallerStopLoss: &stop, Balance: 1000, ConfigRiskUSD: 25, ConfigRiskPct: 3.25,
	}
	res := s.Calculate(in)
	require.Equal(t, "invalid_inputs", res.Reason)
}

func TestSizerMinimumViableRisk(t *testing.T) {
	s := NewSizer(nil)
	in := SizingInputs{
		Symbol: "BTCUSDT", Direction: DirBullish, EntryPrice: 100, Conviction: 80,
		Balance: 50, ConfigRiskUSD: 1, ConfigRiskPct: 1,
		ConvictionMultiplier: 1, MacroMultiplier: 1, VolatilityScalar: 1, DrawdownScalar: 1, EdgeScalar: 1,
	}
	res := s.Calculate(in)
	require.True(t, res.TooSmall)
}

func TestSizerNotionalCapShrinksQuantity(t *testing.T) {
	s := NewSizer(nil)
	cap := 500.0
	in := SizingInputs{
		Symbol: "BTCUSDT", Direction: DirBullish, EntryPrice: 100, Conviction: 80,
		Balance: 10000, ConfigRiskUSD: 500, ConfigRiskPct: 50,
		ConvictionMultiplier: 1, MacroMultiplier: 1, VolatilityScalar: 1, DrawdownScalar: 1, EdgeScalar: 1,
		NotionalCapOverride: &cap, MaxLeverage: 50,
	}
	res := s.Calculate(in)
	require.InDelta(t, 500.0, res.Notional, 1e-6)
	require.False(t, res.TooSmall)
}
