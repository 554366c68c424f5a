// FILE: scheduler.go
// Package main – Scheduler (C10): the cooperative event loop fusing the periodic trading
// cycle, the regime-refresh cadence, and tick-driven exits into one goroutine.
//
// Grounded on the teacher's live.go (a ticker-driven loop selecting between a trade interval
// and context cancellation) generalized here to multiple cadences behind one select, per
// spec.md §4.10's "single-threaded cooperative event loop" model. Kill-switch, UTC-boundary
// resets, and the weekly calibration review are additions this component owns outright.
package main

import (
	"context"
	"os"
	"time"
)

// Analyst is the oracle boundary (spec.md §4.11): either an external LLM client or the local
// fallback, both producing an AnalystOutput from an AnalystInput.
type Analyst interface {
	Decide(ctx context.Context, in AnalystInput) (AnalystOutput, error)
}

// LocalAnalystAdapter satisfies Analyst using the teacher-derived micro-model/EMA fallback.
type LocalAnalystAdapter struct {
	Inner                      *LocalFallbackAnalyst
	BuyThreshold, SellThreshold float64
}

func (a *LocalAnalystAdapter) Decide(ctx context.Context, in AnalystInput) (AnalystOutput, error) {
	return a.Inner.Decide(in, a.BuyThreshold, a.SellThreshold), nil
}

// DerivativesFeed abstracts the regime refresh's market-data dependency (spec.md §4.10's
// "scan derivatives API for the universe"), so the Scheduler never depends on a concrete venue.
type DerivativesFeed interface {
	FetchUniverse(ctx context.Context, symbols []string) (map[string]DerivMetrics, error)
}

// SchedulerConfig carries the cadence/threshold knobs the Scheduler reads from Config.
type SchedulerConfig struct {
	CycleInterval       time.Duration
	ScalpCycleInterval  time.Duration
	RegimeRefresh       time.Duration
	HealthReportEvery   time.Duration
	ExitEvalThrottle    time.Duration
	WSStaleThreshold    time.Duration
	RestFallbackPoll    time.Duration
	CalibrationWeekday  time.Weekday
	CalibrationHour     int
	KillSwitchPath      string
	OpportunityFloor    float64
	MoveFloorPct        float64
	Universe            []string
}

// Scheduler owns the single cooperative loop. All mutation of CircuitBreaker, PortfolioGuard,
// the Order Manager's position book, and every Exit State happens from this one goroutine, or
// (for the tick path) is serialized through it — satisfying spec.md §5's non-interference rule
// without any extra locking at this layer.
type Scheduler struct {
	cfg        SchedulerConfig
	venue      Venue
	analyst    Analyst
	analystCfg AnalystValidationConfig
	zones      *ZoneMemory
	sizer      *Sizer
	exitParams ExitParams
	cb         *CircuitBreaker
	guard      *PortfolioGuard
	om         *OrderManager
	ws         *WSBridge
	deriv      DerivativesFeed
	regime     RegimeState
	cursor     int // rotates the universe across cycles
	atrCache   map[string]float64
}

func NewScheduler(cfg SchedulerConfig, venue Venue, analyst Analyst, analystCfg AnalystValidationConfig,
	zones *ZoneMemory, sizer *Sizer, exitParams ExitParams, cb *CircuitBreaker, guard *PortfolioGuard,
	om *OrderManager, ws *WSBridge, deriv DerivativesFeed) *Scheduler {
	return &Scheduler{
		cfg: cfg, venue: venue, analyst: analyst, analystCfg: analystCfg,
		zones: zones, sizer: sizer, exitParams: exitParams, cb: cb, guard: guard, om: om,
		ws: ws, deriv: deriv, atrCache: map[string]float64{},
	}
}

// Run is the cooperative loop. It returns nil on graceful shutdown (ctx cancelled) or a
// non-nil error only for an internal invariant violation (spec.md §7: the only case that
// halts the process).
func (sc *Scheduler) Run(ctx context.Context) error {
	cycle := time.NewTimer(sc.cfg.CycleInterval)
	defer cycle.Stop()
	regimeTimer := time.NewTimer(sc.cfg.RegimeRefresh)
	defer regimeTimer.Stop()
	healthTimer := time.NewTimer(sc.cfg.HealthReportEvery)
	defer healthTimer.Stop()
	restFallback := time.NewTimer(sc.cfg.RestFallbackPoll)
	defer restFallback.Stop()

	dailyTimer := time.NewTimer(time.Until(nextUTCMidnight(time.Now().UTC())))
	defer dailyTimer.Stop()
	weeklyTimer := time.NewTimer(time.Until(nextUTCWeekStart(time.Now().UTC())))
	defer weeklyTimer.Stop()
	monthlyTimer := time.NewTimer(time.Until(nextUTCMonthStart(time.Now().UTC())))
	defer monthlyTimer.Stop()
	calibrationTimer := time.NewTimer(time.Until(nextWeeklyOccurrence(time.Now().UTC(), sc.cfg.CalibrationWeekday, sc.cfg.CalibrationHour)))
	defer calibrationTimer.Stop()

	var lastExitEval time.Time

	for {
		select {
		case <-ctx.Done():
			logInfo("scheduler: shutdown signal received, draining")
			return nil

		case ev, ok := <-sc.ws.Ticks():
			if !ok {
				continue
			}
			now := time.Now().UTC()
			if now.Sub(lastExitEval) < sc.cfg.ExitEvalThrottle {
				continue
			}
			lastExitEval = now
			if err := sc.evaluateExitsForSymbol(ctx, ev.Symbol, ev.Price, now); err != nil && isFatal(err) {
				return err
			}

		case <-restFallback.C:
			restFallback.Reset(sc.cfg.RestFallbackPoll)
			now := time.Now().UTC()
			if sc.ws.StaleFor(now) > sc.cfg.WSStaleThreshold {
				logWarn("scheduler: ws stale for %s, falling back to REST exit checks", sc.ws.StaleFor(now))
				if err := sc.evaluateExitsViaREST(ctx, now); err != nil && isFatal(err) {
					return err
				}
			}

		case <-cycle.C:
			interval := sc.nextCycleInterval()
			cycle.Reset(interval)
			if err := sc.runCycle(ctx); err != nil && isFatal(err) {
				return err
			}

		case <-regimeTimer.C:
			regimeTimer.Reset(sc.cfg.RegimeRefresh)
			sc.refreshRegime(ctx)

		case <-healthTimer.C:
			healthTimer.Reset(sc.cfg.HealthReportEvery)
			sc.reportHealth()

		case <-dailyTimer.C:
			dailyTimer.Reset(time.Until(nextUTCMidnight(time.Now().UTC().Add(time.Second))))
			sc.cb.ResetDaily()
			logInfo("scheduler: daily counters reset")

		case <-weeklyTimer.C:
			weeklyTimer.Reset(time.Until(nextUTCWeekStart(time.Now().UTC().Add(time.Second))))
			sc.cb.ResetWeekly()
			logInfo("scheduler: weekly counters reset")

		case <-monthlyTimer.C:
			monthlyTimer.Reset(time.Until(nextUTCMonthStart(time.Now().UTC().Add(time.Second))))
			sc.cb.ResetMonthly()
			logInfo("scheduler: monthly counters reset")

		case <-calibrationTimer.C:
			calibrationTimer.Reset(time.Until(nextWeeklyOccurrence(time.Now().UTC().Add(time.Second), sc.cfg.CalibrationWeekday, sc.cfg.CalibrationHour)))
			sc.runCalibrationReview()
		}
	}
}

// nextCycleInterval implements spec.md §4.10's adaptive cadence: the default 5-minute cycle
// shrinks to the scalp cadence while any scalp position is open.
func (sc *Scheduler) nextCycleInterval() time.Duration {
	for _, mp := range sc.om.positions {
		if mp.TradeType == TradeScalp && mp.ExitState.RemainingQuantity > 0 {
			return sc.cfg.ScalpCycleInterval
		}
	}
	return sc.cfg.CycleInterval
}

// runCycle implements spec.md §4.10 step 1: balance -> Circuit Breaker -> symbol selection ->
// screening -> Analyst -> validate -> Portfolio Guard -> Sizer -> Order Manager.
func (sc *Scheduler) runCycle(ctx context.Context) error {
	killed := sc.killSwitchActive()
	if killed {
		logWarn("scheduler: kill switch active, suspending new entries this cycle")
	}

	balance, err := sc.venue.GetBalance(ctx)
	if err != nil {
		logWarn("scheduler: get balance failed: %v", err)
		return nil
	}
	SetEquityMetric(balance)

	sc.guard.UpdateState(balance, sc.om.OpenPositionSnapshot())

	symbols := sc.selectSymbols()
	if len(symbols) == 0 {
		symbols = sc.fallbackMajors()
	}

	for _, symbol := range symbols {
		if killed {
			break
		}
		if sc.om.HasPositionForSymbol(symbol) {
			continue
		}
		gate := sc.cb.Check(time.Now().UTC(), symbol)
		if !gate.Allowed {
			logInfo("scheduler: circuit breaker blocked %s: %s", symbol, gate.Reason)
			continue
		}
		if err := sc.considerSymbol(ctx, symbol, gate, balance); err != nil {
			if isFatal(err) {
				return err
			}
			logWarn("scheduler: %s: %v", symbol, err)
		}
	}
	return nil
}

func (sc *Scheduler) considerSymbol(ctx context.Context, symbol string, gate GateResult, balance float64) error {
	ltf, err := sc.venue.GetKlines(ctx, symbol, "15m", 200)
	if err != nil {
		return transientf("klines %s: %v", symbol, err)
	}
	htf, _ := sc.venue.GetKlines(ctx, symbol, "4h", 100)
	mtf, _ := sc.venue.GetKlines(ctx, symbol, "1h", 100)

	if series := ATR(ltf, 14); len(series) > 0 {
		sc.atrCache[symbol] = series[len(series)-1]
	}

	opp := sc.opportunityFor(symbol)
	nearby := sc.zones.ActiveZones(symbol, ltfLowBound(ltf), ltfHighBound(ltf))

	in := AnalystInput{
		Symbol: symbol, HTF: htf, MTF: mtf, LTF: ltf,
		Regime: sc.regime.Global, Opportunity: opp, NearbyZones: nearby,
		Balance: balance, OpenPositions: sc.om.OpenCount(),
	}
	out, err := sc.analyst.Decide(ctx, in)
	if err != nil {
		return analystInvalidf("%s: %v", symbol, err)
	}
	if err := ValidateAnalystOutput(out, sc.analystCfg); err != nil {
		logInfo("scheduler: %s analyst output rejected: %v", symbol, err)
		return nil
	}

	riskUSD := ClampRisk(out.RiskUSD, sc.analystCfg)
	direction := "long"
	if out.Action == ActionShort {
		direction = "short"
	}
	stopDistPct := absFloat(out.EntryPrice-out.StopLoss) / out.EntryPrice
	notional := riskUSD / stopDistPct

	decision := sc.guard.CheckTrade(symbol, direction, riskUSD, notional, out.TradeType, time.Now().UTC())
	if !decision.Allowed {
		logInfo("scheduler: %s blocked by portfolio guard: %v", symbol, decision.Reasons)
		IncGuardDenialMetric(firstOrDefault(decision.Reasons, "unknown"))
		return nil
	}
	if decision.AdjustedRiskUSD != nil {
		riskUSD = *decision.AdjustedRiskUSD
	}

	dir := DirBullish
	if out.Action == ActionShort {
		dir = DirBearish
	}
	sizing := sc.sizer.Calculate(SizingInputs{
		Symbol: symbol, Direction: dir, TradeType: out.TradeType, EntryPrice: out.EntryPrice,
		Conviction: out.Conviction, CallerStopLoss: &out.StopLoss, RiskOverrideUSD: &riskUSD,
		Balance: balance, MaxLeverage: sizerMaxLeverage,
		NotionalCapOverride: decision.NotionalCap,
		ExposureRatio:       sc.guard.Status().TotalHeatPct / 100,
	})
	if sizing.TooSmall {
		logInfo("scheduler: %s sizing too small: %s", symbol, sizing.Reason)
		return nil
	}

	id, err := sc.om.ExecuteSignal(ctx, symbol, dir, out.TradeType, sizing, time.Now().UTC())
	if err != nil {
		return err
	}
	if id != "" {
		side := "buy"
		if dir == DirBearish {
			side = "sell"
		}
		IncOrderMetric(sc.venue.Name(), side)
		logInfo("scheduler: opened %s %s id=%s risk=$%.2f", symbol, direction, id, sizing.RealizedRiskUSD)
	}
	return nil
}

// selectSymbols implements the cheap local screen: opportunity score at or above
// OpportunityFloor, or a score at least MoveFloorPct points away from the neutral 50 (price
// moves and volume are not screened directly), rotated across the universe so every coin is eventually
// evaluated (spec.md §4.10: "rotated across the tradeable universe so all coins get evaluated
// over several cycles").
func (sc *Scheduler) selectSymbols() []string {
	if len(sc.cfg.Universe) == 0 {
		return nil
	}
	n := len(sc.cfg.Universe)
	window := n
	if window > 10 {
		window = 10
	}
	var out []string
	for i := 0; i < window; i++ {
		symbol := sc.cfg.Universe[(sc.cursor+i)%n]
		opp := sc.opportunityFor(symbol)
		if opp.Score >= sc.cfg.OpportunityFloor || absFloat(opp.Score-50) >= sc.cfg.MoveFloorPct {
			out = append(out, symbol)
		}
	}
	sc.cursor = (sc.cursor + window) % n
	return out
}

func (sc *Scheduler) fallbackMajors() []string {
	var out []string
	for _, s := range sc.cfg.Universe {
		if CoinTier(s) == "major" {
			out = append(out, s)
		}
	}
	return out
}

func (sc *Scheduler) opportunityFor(symbol string) SymbolOpportunity {
	for _, o := range sc.regime.Opportunities {
		if o.Symbol == symbol {
			return o
		}
	}
	return SymbolOpportunity{Symbol: symbol, Direction: DirNeutral, Score: 50}
}

// refreshRegime implements spec.md §4.10 step 2: scan the derivatives feed, atomically replace
// the Regime State, enrich with funding-arb info.
func (sc *Scheduler) refreshRegime(ctx context.Context) {
	if sc.deriv == nil {
		return
	}
	metrics, err := sc.deriv.FetchUniverse(ctx, sc.cfg.Universe)
	if err != nil {
		logWarn("scheduler: regime refresh failed: %v", err)
		return
	}
	var opportunities []SymbolOpportunity
	var arb []FundingArbEntry
	var globalAgg DerivMetrics
	count := 0
	for symbol, m := range metrics {
		opportunities = append(opportunities, ScoreSymbol(symbol, m))
		if entry := FundingArbOpportunity(symbol, m, 1000); entry != nil {
			arb = append(arb, *entry)
		}
		globalAgg.FundingRate8h += m.FundingRate8h
		globalAgg.OIChange1h += m.OIChange1h
		globalAgg.PriceChange1h += m.PriceChange1h
		globalAgg.PriceChange4h += m.PriceChange4h
		globalAgg.PriceChange24h += m.PriceChange24h
		globalAgg.LongShortRatio += m.LongShortRatio
		globalAgg.LiqLongUSD += m.LiqLongUSD
		globalAgg.LiqShortUSD += m.LiqShortUSD
		count++
	}
	if count > 0 {
		globalAgg.FundingRate8h /= float64(count)
		globalAgg.OIChange1h /= float64(count)
		globalAgg.PriceChange1h /= float64(count)
		globalAgg.PriceChange4h /= float64(count)
		globalAgg.PriceChange24h /= float64(count)
		globalAgg.LongShortRatio /= float64(count)
	}
	sc.regime = RegimeState{Global: ClassifyGlobal(globalAgg), Opportunities: opportunities, FundingArb: arb}
	for _, o := range opportunities {
		SetOpportunityScoreMetric(o.Symbol, o.Score)
	}
	SetCircuitBreakerLevelMetric(circuitBreakerLevel(sc.cb.Check(time.Now().UTC(), "")))
}

// evaluateExitsForSymbol applies one WS tick price to every open position on that symbol.
func (sc *Scheduler) evaluateExitsForSymbol(ctx context.Context, symbol string, price float64, now time.Time) error {
	if pv, ok := sc.venue.(*PaperVenue); ok {
		pv.SetPrice(symbol, price)
	}
	for id, mp := range sc.om.positions {
		if mp.Symbol != symbol || mp.ExitState.RemainingQuantity <= 0 {
			continue
		}
		atr := sc.atrCache[symbol]
		results, err := sc.om.ApplyTick(ctx, id, price, price, price, now, sc.regime.Global.Label, atr)
		if err != nil {
			if isFatal(err) {
				return err
			}
			logWarn("scheduler: apply tick %s: %v", id, err)
			continue
		}
		sc.recordResults(symbol, mp, results, now)
	}
	return nil
}

// evaluateExitsViaREST is the staleness fallback (spec.md §4.10): poll each open symbol's last
// price over REST instead of waiting on a dead WS feed.
func (sc *Scheduler) evaluateExitsViaREST(ctx context.Context, now time.Time) error {
	seen := map[string]bool{}
	for _, mp := range sc.om.positions {
		if mp.ExitState.RemainingQuantity <= 0 || seen[mp.Symbol] {
			continue
		}
		seen[mp.Symbol] = true
		price, err := sc.venue.GetPrice(ctx, mp.Symbol)
		if err != nil {
			logWarn("scheduler: rest price %s: %v", mp.Symbol, err)
			continue
		}
		if err := sc.evaluateExitsForSymbol(ctx, mp.Symbol, price, now); err != nil {
			return err
		}
	}
	return nil
}

func (sc *Scheduler) recordResults(symbol string, mp *ManagedPosition, results []TradeResult, now time.Time) {
	for _, r := range results {
		sc.cb.RecordTrade(r.PnLUSD, symbol, now)
		IncExitReasonMetric(r.Label)
		if r.PnLUSD >= 0 {
			IncTradeResultMetric("win")
			sc.guard.RecordWin(symbol)
		} else {
			IncTradeResultMetric("loss")
			sc.guard.RecordLoss(symbol, now)
		}
		if mp.Sizing.ZoneID != "" {
			sc.zones.RecordHit(mp.Sizing.ZoneID, r.PnLUSD >= 0)
		}
	}
}

func (sc *Scheduler) killSwitchActive() bool {
	if sc.cfg.KillSwitchPath == "" {
		return false
	}
	_, err := os.Stat(sc.cfg.KillSwitchPath)
	return err == nil
}

// reportHealth is the 30-minute health-diagnostic report (spec.md §4.10).
func (sc *Scheduler) reportHealth() {
	status := sc.guard.Status()
	zstats := sc.zones.Stats()
	SetZoneMemoryCountMetric("*", "active", zstats.ActiveZones)
	logInfo("health: open=%d heat=%.2f%% zones=%d/%d hit_rate=%.1f%%",
		status.OpenPositions, status.TotalHeatPct, zstats.ActiveZones, zstats.TotalZones, zstats.OverallHitRate)
}

// runCalibrationReview is the weekly calibration hook (spec.md §4.10): logs a summary an
// operator (or a future automated reviewer) can act on. Deeper model recalibration is out of
// scope for this process per spec.md's Non-goals around backtesting/training.
func (sc *Scheduler) runCalibrationReview() {
	snap := sc.cb.Snapshot()
	logInfo("calibration review: total_pnl=$%.2f peak_balance=$%.2f current_balance=$%.2f",
		snap.TotalPnL, snap.PeakBalance, snap.CurrentBalance)
}

func circuitBreakerLevel(g GateResult) int {
	switch {
	case !g.Allowed && g.Reason == "halt: total drawdown limit reached":
		return 4
	case !g.Allowed:
		return 3
	case g.SizeMult > 0 && g.SizeMult < 0.6:
		return 2
	case g.SizeMult > 0 && g.SizeMult < 1.0:
		return 1
	default:
		return 0
	}
}

func firstOrDefault(s []string, def string) string {
	if len(s) == 0 {
		return def
	}
	return s[0]
}

func ltfLowBound(c []Candle) float64 {
	if len(c) == 0 {
		return 0
	}
	low := c[0].Low
	for _, k := range c {
		if k.Low < low {
			low = k.Low
		}
	}
	return low
}

func ltfHighBound(c []Candle) float64 {
	if len(c) == 0 {
		return 0
	}
	high := c[0].High
	for _, k := range c {
		if k.High > high {
			high = k.High
		}
	}
	return high
}

// --- UTC boundary helpers (spec.md §4.10's daily/weekly/monthly counter resets) ---

func nextUTCMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

func nextUTCWeekStart(now time.Time) time.Time {
	next := nextUTCMidnight(now)
	for next.Weekday() != time.Monday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func nextUTCMonthStart(now time.Time) time.Time {
	y, m, _ := now.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

// nextWeeklyOccurrence returns the next time now crosses into the given weekday+hour, UTC.
func nextWeeklyOccurrence(now time.Time, weekday time.Weekday, hour int) time.Time {
	y, m, d := now.Date()
	candidate := time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
	for candidate.Weekday() != weekday || !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}
