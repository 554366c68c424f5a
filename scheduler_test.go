package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextUTCMidnightRollsToNextDay(t *testing.T) {
	now := time.Date(2026, 7, 30, 23, 59, 0, 0, time.UTC)
	next := nextUTCMidnight(now)
	require.Equal(t, time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC), next)
}

func TestNextUTCWeekStartIsAMonday(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC) // a Thursday
	next := nextUTCWeekStart(now)
	require.Equal(t, time.Monday, next.Weekday())
	require.True(t, next.After(now))
}

func TestNextUTCMonthStartIsFirstOfNextMonth(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	next := nextUTCMonthStart(now)
	require.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), next)
}

func TestNextWeeklyOccurrenceSkipsPastTimesThisWeek(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC) // Thursday noon
	next := nextWeeklyOccurrence(now, time.Thursday, 6)  // already passed 06:00 today
	require.Equal(t, time.Thursday, next.Weekday())
	require.True(t, next.After(now))
	require.Equal(t, 6, next.Hour())
}

type fakeDerivFeed struct {
	metrics map[string]DerivMetrics
}

func (f *fakeDerivFeed) FetchUniverse(ctx context.Context, symbols []string) (map[string]DerivMetrics, error) {
	return f.metrics, nil
}

func newTestScheduler(t *testing.T, venue *PaperVenue) *Scheduler {
	zones := NewZoneMemory("")
	sizer := NewSizer(zones)
	cb := NewCircuitBreaker(1000, "")
	guard := NewPortfolioGuard(DefaultPortfolioGuardConfig(), "")
	om := NewOrderManager(venue, DefaultExitParams())
	ws := NewWSBridge("ws://unused", 10)
	analyst := &LocalAnalystAdapter{Inner: NewLocalFallbackAnalyst(), BuyThreshold: 0.55, SellThreshold: 0.45}
	deriv := &fakeDerivFeed{metrics: map[string]DerivMetrics{
		"BTCUSDT": {PriceChange4h: 1, PriceChange24h: 1, LongShortRatio: 0.5},
	}}
	cfg := SchedulerConfig{
		CycleInterval: time.Hour, ScalpCycleInterval: time.Minute, RegimeRefresh: time.Hour,
		HealthReportEvery: time.Hour, ExitEvalThrottle: 2 * time.Second,
		WSStaleThreshold: 30 * time.Second, RestFallbackPoll: time.Hour,
		CalibrationWeekday: time.Sunday, CalibrationHour: 0,
		OpportunityFloor: 60, MoveFloorPct: 10, Universe: []string{"BTCUSDT"},
	}
	return NewScheduler(cfg, venue, analyst, DefaultAnalystValidationConfig(), zones, sizer, DefaultExitParams(), cb, guard, om, ws, deriv)
}

// TestRunCycleWithInsufficientDataOpensNothing runs one cycle against the paper venue, which has
// no candle feed: considerSymbol stops at GetKlines with a transient error, which runCycle logs
// and skips, so no position opens and runCycle returns without error.
func TestRunCycleWithInsufficientDataOpensNothing(t *testing.T) {
	venue := NewPaperVenue(1000)
	venue.SetPrice("BTCUSDT", 100)
	sc := newTestScheduler(t, venue)
	sc.refreshRegime(context.Background())

	err := sc.runCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, sc.om.OpenCount())
}

func TestKillSwitchActiveWhenFilePresent(t *testing.T) {
	venue := NewPaperVenue(1000)
	sc := newTestScheduler(t, venue)
	dir := t.TempDir()
	path := filepath.Join(dir, "KILL_SWITCH")
	require.NoError(t, os.WriteFile(path, []byte("1"), 0o644))
	sc.cfg.KillSwitchPath = path
	require.True(t, sc.killSwitchActive())
}

func TestNextCycleIntervalShrinksWithOpenScalpPosition(t *testing.T) {
	venue := NewPaperVenue(1000)
	venue.SetPrice("BTCUSDT", 100)
	sc := newTestScheduler(t, venue)
	require.Equal(t, sc.cfg.CycleInterval, sc.nextCycleInterval())

	sizing := SizingResult{Quantity: 1, Notional: 100, StopPrice: 95}
	_, err := sc.om.ExecuteSignal(context.Background(), "BTCUSDT", DirBullish, TradeScalp, sizing, time.Unix(0, 0))
	require.NoError(t, err)
	require.Equal(t, sc.cfg.ScalpCycleInterval, sc.nextCycleInterval())
}

func TestEvaluateExitsForSymbolAppliesStopAndRecordsTrade(t *testing.T) {
	venue := NewPaperVenue(1000)
	venue.SetPrice("BTCUSDT", 100)
	sc := newTestScheduler(t, venue)

	sizing := SizingResult{Quantity: 1, Notional: 100, StopPrice: 95}
	id, err := sc.om.ExecuteSignal(context.Background(), "BTCUSDT", DirBullish, TradeSwing, sizing, time.Unix(0, 0))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	err = sc.evaluateExitsForSymbol(context.Background(), "BTCUSDT", 90, time.Unix(0, 0).Add(time.Minute))
	require.NoError(t, err)

	mp, ok := sc.om.Position(id)
	require.True(t, ok)
	require.Equal(t, 0.0, mp.ExitState.RemainingQuantity)
	require.Equal(t, 1, sc.cb.Snapshot().ConsecutiveLosses)
}
