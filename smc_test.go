package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnalyzeStructureRequiresMinBars(t *testing.T) {
	c := mkCandles(make([]float64, 10))
	ms := AnalyzeStructure(c)
	require.Equal(t, DirNeutral, ms.Trend)
	require.Nil(t, ms.PointsOfInterest)
}

func TestCompilePOISortedAndFiltered(t *testing.T) {
	obs := []OrderBlock{{Strength: 70, Top: 10, Bottom: 9}, {Strength: 30, Top: 5, Bottom: 4}}
	fvgs := []FVG{{Strength: 50, Top: 20, Bottom: 19}, {Strength: 10, Top: 1, Bottom: 0.5}}
	poi := compilePOI(obs, fvgs)
	require.Len(t, poi, 2) // the 30-strength OB and 10-strength FVG are filtered out
	require.Equal(t, 70.0, poi[0].Strength)
	require.Equal(t, 50.0, poi[1].Strength)
}

func TestFVGDirectionAndOrdering(t *testing.T) {
	closes := []float64{100, 101, 102, 110, 111, 112, 113, 114, 115, 116}
	c := mkCandles(closes)
	// force a bullish gap: bar[3].Low > bar[1].High
	c[3].Low = c[1].High + 5
	c[3].High = c[3].Low + 1
	atr := make([]float64, len(c))
	for i := range atr {
		atr[i] = 1.0
	}
	fvgs := detectFVGs(c, atr)
	found := false
	for _, f := range fvgs {
		if f.Index == 3 && f.Direction == DirBullish {
			found = true
			require.Greater(t, f.Top, f.Bottom)
		}
	}
	require.True(t, found)
}
