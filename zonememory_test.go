package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestZoneMemoryUpsertKeepsMaxStrength(t *testing.T) {
	zm := NewZoneMemory("")
	z1 := Zone{Symbol: "BTCUSDT", Timeframe: "4H", Kind: ZoneKindOB, Direction: DirBullish, PriceLevel: 100, Top: 101, Bottom: 99, Strength: 40}
	z2 := Zone{Symbol: "BTCUSDT", Timeframe: "4H", Kind: ZoneKindOB, Direction: DirBullish, PriceLevel: 100, Top: 101, Bottom: 99, Strength: 70}
	zm.Upsert(z1)
	got := zm.Upsert(z2)
	require.Equal(t, 70.0, got.Strength)

	active := zm.ActiveZones("BTCUSDT", 0, 1000)
	require.Len(t, active, 1)
}

func TestZoneMemoryMitigatedSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zones.json")
	zm := NewZoneMemory(path)
	z := zm.Upsert(Zone{Symbol: "ETHUSDT", Timeframe: "1D", Kind: ZoneKindFVG, Direction: DirBearish, PriceLevel: 2000, Top: 2010, Bottom: 1990, Strength: 50})
	zm.MarkMitigated(z.ID)

	reloaded := NewZoneMemory(path)
	hist := reloaded.HistoricalZones("ETHUSDT", 10)
	require.Len(t, hist, 1)
	require.True(t, hist[0].Mitigated)
	require.Empty(t, reloaded.ActiveZones("ETHUSDT", 0, 1e9))
}

func TestPredictRevisitsFormula(t *testing.T) {
	zm := NewZoneMemory("")
	z := zm.Upsert(Zone{Symbol: "BTCUSDT", Timeframe: "4H", Kind: ZoneKindOB, Direction: DirBullish, PriceLevel: 100, Top: 101, Bottom: 99, Strength: 100})
	zm.RecordHit(z.ID, true)
	zm.RecordHit(z.ID, true)
	zm.RecordHit(z.ID, true) // hit_count=3 now, history uses actual hit rate (100%)

	preds := zm.PredictRevisits("BTCUSDT", 100, 0.03)
	require.Len(t, preds, 1)
	// distance=0 => proximity=1; strength=100 => 0.4; history=1.0 => 0.25; total = (0.4+0.35+0.25)*100=100
	require.InDelta(t, 100.0, preds[0].Probability, 1e-6)
}
