package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecuteSignalRejectsBelowMinNotional(t *testing.T) {
	venue := NewPaperVenue(1000)
	venue.SetPrice("BTCUSDT", 100)
	om := NewOrderManager(venue, DefaultExitParams())

	sizing := SizingResult{Quantity: 0.01, Notional: 1.0, StopPrice: 95}
	id, err := om.ExecuteSignal(context.Background(), "BTCUSDT", DirBullish, TradeSwing, sizing, time.Unix(0, 0))
	require.NoError(t, err)
	require.Empty(t, id)
	require.Equal(t, 0, om.OpenCount())
}

func TestExecuteSignalOpensManagedPosition(t *testing.T) {
	venue := NewPaperVenue(1000)
	venue.SetPrice("BTCUSDT", 100)
	om := NewOrderManager(venue, DefaultExitParams())

	sizing := SizingResult{Quantity: 1, Notional: 100, StopPrice: 95, Leverage: 2}
	id, err := om.ExecuteSignal(context.Background(), "BTCUSDT", DirBullish, TradeSwing, sizing, time.Unix(0, 0))
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Equal(t, 1, om.OpenCount())
	require.True(t, om.HasPositionForSymbol("BTCUSDT"))
}

func TestApplyTickAccruesFeesPerPartial(t *testing.T) {
	venue := NewPaperVenue(1000)
	venue.SetPrice("BTCUSDT", 100)
	om := NewOrderManager(venue, DefaultExitParams())

	sizing := SizingResult{Quantity: 10, Notional: 1000, StopPrice: 90}
	id, err := om.ExecuteSignal(context.Background(), "BTCUSDT", DirBullish, TradeSwing, sizing, time.Unix(0, 0))
	require.NoError(t, err)

	results, err := om.ApplyTick(context.Background(), id, 110, 110, 110, time.Unix(0, 0), RegimeNeutral, 1)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		require.Greater(t, r.FeesUSD, 0.0)
	}
}

func TestApplyTickEarlyPartialClosesCorrectQuantity(t *testing.T) {
	venue := NewPaperVenue(1000)
	venue.SetPrice("BTCUSDT", 100)
	om := NewOrderManager(venue, DefaultExitParams())

	sizing := SizingResult{Quantity: 10, Notional: 1000, StopPrice: 90}
	id, err := om.ExecuteSignal(context.Background(), "BTCUSDT", DirBullish, TradeSwing, sizing, time.Unix(0, 0))
	require.NoError(t, err)

	// r = (110-100)/(100-90) = 1.0 triggers only the early 25% partial this tick.
	results, err := om.ApplyTick(context.Background(), id, 110, 110, 110, time.Unix(0, 0), RegimeNeutral, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "early", results[0].Label)
	require.InDelta(t, 2.5, results[0].Quantity, 1e-9)

	mp, ok := om.Position(id)
	require.True(t, ok)
	require.InDelta(t, 7.5, mp.ExitState.RemainingQuantity, 1e-9)
}

func TestApplyTickStopLossRecordsFullRemainingAsTradeResult(t *testing.T) {
	venue := NewPaperVenue(1000)
	venue.SetPrice("BTCUSDT", 100)
	om := NewOrderManager(venue, DefaultExitParams())

	sizing := SizingResult{Quantity: 10, Notional: 1000, StopPrice: 90}
	id, err := om.ExecuteSignal(context.Background(), "BTCUSDT", DirBullish, TradeSwing, sizing, time.Unix(0, 0))
	require.NoError(t, err)

	results, err := om.ApplyTick(context.Background(), id, 90, 85, 90, time.Unix(0, 0), RegimeNeutral, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "stop", results[0].Label)
	require.InDelta(t, 10, results[0].Quantity, 1e-9)
	require.Less(t, results[0].PnLUSD, 0.0)

	mp, ok := om.Position(id)
	require.True(t, ok)
	require.Equal(t, 0.0, mp.ExitState.RemainingQuantity)
}

func TestApplyTickUnknownPositionIsInvariantError(t *testing.T) {
	venue := NewPaperVenue(1000)
	om := NewOrderManager(venue, DefaultExitParams())
	_, err := om.ApplyTick(context.Background(), "missing", 100, 100, 100, time.Unix(0, 0), RegimeNeutral, 1)
	require.Error(t, err)
}
