package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mkCandles(closes []float64) []Candle {
	out := make([]Candle, len(closes))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = Candle{
			Time: base.Add(time.Duration(i) * time.Minute),
			Open: c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 100,
		}
	}
	return out
}

func TestSMA(t *testing.T) {
	c := mkCandles([]float64{1, 2, 3, 4, 5})
	out := SMA(c, 3)
	require.True(t, out[0] != out[0]) // NaN
	require.InDelta(t, 2.0, out[2], 1e-9)
	require.InDelta(t, 4.0, out[4], 1e-9)
}

func TestEMASeedsWithSMA(t *testing.T) {
	c := mkCandles([]float64{1, 2, 3, 4, 5, 6})
	out := EMA(c, 3)
	require.InDelta(t, 2.0, out[2], 1e-9)
	require.Greater(t, out[5], out[2])
}

func TestATRWilder(t *testing.T) {
	c := mkCandles([]float64{10, 11, 12, 11, 13, 14, 15, 16})
	out := ATR(c, 3)
	require.True(t, out[2] == out[2]) // seeded, not NaN
	require.True(t, out[1] != out[1]) // NaN before seed
	require.Greater(t, out[7], 0.0)
}

func TestResampleDiscardsIncompleteTrailingGroup(t *testing.T) {
	c := mkCandles([]float64{1, 2, 3, 4, 5, 6, 7})
	out := Resample(c, 3, "3m")
	require.Len(t, out, 2) // 7 candles / 3 => 2 full groups, 1 discarded
	require.Equal(t, 1.0, out[0].Open)
	require.Equal(t, 3.0, out[0].Close)
	require.Equal(t, 300.0, out[0].Volume)
}

func TestVolumeZScoreZeroBeforeWindow(t *testing.T) {
	c := mkCandles([]float64{1, 2, 3})
	out := VolumeZScore(c, 5)
	for _, v := range out {
		require.Equal(t, 0.0, v)
	}
}
