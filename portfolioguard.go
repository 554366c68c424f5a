// FILE: portfolioguard.go
// Package main – Portfolio Guard (C8): portfolio-level constraints across many simultaneously
// traded symbols. Fail-open by design: callers that hit an internal error get an allowed trade
// with a warning reason, never a silent block.
//
// Grounded on original_source/odin/risk/portfolio_guard.py: coin tiers, correlation groups,
// the ordered check list, and every threshold/formula below.
package main

import (
	"sort"
	"strings"
	"sync"
	"time"
)

var majorCoins = map[string]bool{"BTC": true, "ETH": true}
var midCoins = map[string]bool{
	"SOL": true, "XRP": true, "BNB": true, "DOGE": true,
	"ADA": true, "AVAX": true, "LINK": true, "DOT": true,
}

var correlationGroups = []map[string]bool{
	{"BTC": true, "ETH": true},
	{"SOL": true, "AVAX": true, "DOT": true},
	{"DOGE": true, "SHIB": true, "PEPE": true},
	{"LINK": true, "AAVE": true, "UNI": true},
}

const (
	pgBlacklistDuration   = time.Hour
	pgHeatHeadroomFloor   = 5.0
	pgNotionalHeadroomMin = 100.0
	pgSwingTaperStart     = 3
	pgSwingTaperStep      = 0.15
	pgSwingTaperFloor     = 0.50
)

func bareCoin(symbol string) string {
	s := strings.ToUpper(symbol)
	s = strings.TrimSuffix(s, "USDT")
	s = strings.TrimSuffix(s, "USD")
	return s
}

// CoinTier buckets a symbol for notional-cap and correlation purposes.
func CoinTier(symbol string) string {
	b := bareCoin(symbol)
	if majorCoins[b] {
		return "major"
	}
	if midCoins[b] {
		return "mid"
	}
	return "alt"
}

// PortfolioGuardConfig holds the tunables from spec.md §6's portfolio category.
type PortfolioGuardConfig struct {
	MaxOpenPositions        int
	ScalpMaxPositions       int
	SwingMaxPositions       int
	PortfolioMaxHeatPct     float64
	MaxSameDirection        int
	NotionalCapMajor        float64
	NotionalCapMid          float64
	NotionalCapAlt          float64
	CoinBlacklistAfterLosses int
}

func DefaultPortfolioGuardConfig() PortfolioGuardConfig {
	return PortfolioGuardConfig{
		MaxOpenPositions:        20,
		ScalpMaxPositions:       8,
		SwingMaxPositions:       15,
		PortfolioMaxHeatPct:     10.0,
		MaxSameDirection:        12,
		NotionalCapMajor:        20000,
		NotionalCapMid:          10000,
		NotionalCapAlt:          5000,
		CoinBlacklistAfterLosses: 3,
	}
}

func notionalCapForTier(tier string, cfg PortfolioGuardConfig) float64 {
	switch tier {
	case "major":
		return cfg.NotionalCapMajor
	case "mid":
		return cfg.NotionalCapMid
	default:
		return cfg.NotionalCapAlt
	}
}

// OpenPosition is the minimal shape PortfolioGuard needs from each live position.
type OpenPosition struct {
	Symbol    string
	Direction string // "long" or "short"
	RiskUSD   float64
	Notional  float64
	TradeType TradeType
}

// PortfolioState is the derived snapshot recomputed on every UpdateState call.
type PortfolioState struct {
	Balance          float64
	TotalHeatUSD     float64
	TotalHeatPct     float64
	LongCount        int
	ShortCount       int
	LongNotional     float64
	ShortNotional    float64
	PerCoinNotional  map[string]float64
	PerCoinDirection map[string]string
	ScalpCount       int
	SwingCount       int
}

// GuardDecision is PortfolioGuard's verdict on one proposed trade.
type GuardDecision struct {
	Allowed         bool
	Reasons         []string
	AdjustedRiskUSD *float64
	NotionalCap     *float64
}

type blacklistEntry struct {
	ConsecutiveLosses int       `json:"consecutive_losses"`
	BlockedUntil      time.Time `json:"blocked_until"`
}

// PortfolioGuard is the process-wide singleton guarding multi-symbol exposure.
type PortfolioGuard struct {
	mu        sync.Mutex
	cfg       PortfolioGuardConfig
	state     PortfolioState
	blacklist map[string]*blacklistEntry
	path      string
}

func NewPortfolioGuard(cfg PortfolioGuardConfig, path string) *PortfolioGuard {
	pg := &PortfolioGuard{cfg: cfg, path: path, blacklist: map[string]*blacklistEntry{}}
	pg.loadBlacklist()
	return pg
}

// UpdateState recomputes the portfolio snapshot from the current position book.
func (pg *PortfolioGuard) UpdateState(balance float64, positions []OpenPosition) PortfolioState {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	st := PortfolioState{
		Balance:          balance,
		PerCoinNotional:  map[string]float64{},
		PerCoinDirection: map[string]string{},
	}
	for _, p := range positions {
		b := bareCoin(p.Symbol)
		st.TotalHeatUSD += absFloat(p.RiskUSD)
		st.PerCoinNotional[b] += absFloat(p.Notional)
		st.PerCoinDirection[b] = strings.ToLower(p.Direction)
		switch strings.ToLower(p.Direction) {
		case "long", "buy":
			st.LongCount++
			st.LongNotional += absFloat(p.Notional)
		case "short", "sell":
			st.ShortCount++
			st.ShortNotional += absFloat(p.Notional)
		}
		if p.TradeType == TradeScalp {
			st.ScalpCount++
		} else {
			st.SwingCount++
		}
	}
	if balance > 0 {
		st.TotalHeatPct = st.TotalHeatUSD / balance * 100
	}
	pg.state = st
	return st
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// CheckTrade runs the full ordered check list of spec.md §4.8. Fail-open: internal guard state
// that looks inconsistent never blocks a trade outright, it is simply skipped for that check.
func (pg *PortfolioGuard) CheckTrade(symbol, direction string, riskUSD, notionalUSD float64, tradeType TradeType, now time.Time) GuardDecision {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	return pg.check(symbol, direction, riskUSD, notionalUSD, tradeType, now)
}

func (pg *PortfolioGuard) check(symbol, direction string, riskUSD, notionalUSD float64, tradeType TradeType, now time.Time) GuardDecision {
	s := &pg.state
	bare := bareCoin(symbol)
	tier := CoinTier(symbol)
	direction = strings.ToLower(direction)
	var d GuardDecision
	d.Allowed = true

	// 1. Per-coin blacklist.
	if pg.isBlacklistedLocked(bare, now) {
		e := pg.blacklist[bare]
		d.Allowed = false
		d.Reasons = append(d.Reasons, bare+" blacklisted after consecutive losses")
		_ = e
		return d
	}

	// 2. Max open positions, scalp/swing sub-caps.
	totalOpen := s.LongCount + s.ShortCount
	if totalOpen >= pg.cfg.MaxOpenPositions {
		d.Allowed = false
		d.Reasons = append(d.Reasons, "max total positions reached")
		return d
	}
	if tradeType == TradeScalp && s.ScalpCount >= pg.cfg.ScalpMaxPositions {
		d.Allowed = false
		d.Reasons = append(d.Reasons, "max scalp positions reached")
		return d
	}
	if tradeType == TradeSwing && s.SwingCount >= pg.cfg.SwingMaxPositions {
		d.Allowed = false
		d.Reasons = append(d.Reasons, "max swing positions reached")
		return d
	}

	// 3. Portfolio heat: scale down rather than block when headroom remains.
	bal := s.Balance
	if bal <= 0 {
		bal = 1
	}
	newHeatPct := (s.TotalHeatUSD + riskUSD) / bal * 100
	if newHeatPct > pg.cfg.PortfolioMaxHeatPct {
		available := pg.cfg.PortfolioMaxHeatPct/100*s.Balance - s.TotalHeatUSD
		if available < 0 {
			available = 0
		}
		if available < pgHeatHeadroomFloor {
			d.Allowed = false
			d.Reasons = append(d.Reasons, "portfolio heat exceeds max")
			return d
		}
		adj := riskUSD
		if available < adj {
			adj = available
		}
		d.AdjustedRiskUSD = &adj
		d.Reasons = append(d.Reasons, "risk scaled (heat cap)")
	}

	// 4. Direction balance.
	if (direction == "long" || direction == "buy") && s.LongCount >= pg.cfg.MaxSameDirection {
		d.Allowed = false
		d.Reasons = append(d.Reasons, "max LONG positions reached")
		return d
	}
	if (direction == "short" || direction == "sell") && s.ShortCount >= pg.cfg.MaxSameDirection {
		d.Allowed = false
		d.Reasons = append(d.Reasons, "max SHORT positions reached")
		return d
	}

	// 5. Correlation groups: at most 2 same-direction positions per group.
	for _, group := range correlationGroups {
		if !group[bare] {
			continue
		}
		sameDir := 0
		for coin, dir := range s.PerCoinDirection {
			if group[coin] && dir == direction {
				sameDir++
			}
		}
		if sameDir >= 2 {
			d.Allowed = false
			d.Reasons = append(d.Reasons, "correlated group already has "+direction+" positions")
			return d
		}
	}

	// 6. Per-coin notional cap.
	cap := notionalCapForTier(tier, pg.cfg)
	existing := s.PerCoinNotional[bare]
	if existing+notionalUSD > cap {
		allowed := cap - existing
		if allowed < 0 {
			allowed = 0
		}
		if allowed < pgNotionalHeadroomMin {
			d.Allowed = false
			d.Reasons = append(d.Reasons, bare+" notional exceeds "+tier+" cap")
			return d
		}
		d.NotionalCap = &allowed
		d.Reasons = append(d.Reasons, "notional capped to tier ceiling")
	}

	// 7. Swing risk taper by open-position count (scalps are fast, not tapered).
	if tradeType == TradeSwing && totalOpen >= pgSwingTaperStart && d.AdjustedRiskUSD == nil {
		scale := 1.0 - float64(totalOpen-2)*pgSwingTaperStep
		if scale < pgSwingTaperFloor {
			scale = pgSwingTaperFloor
		}
		scaled := riskUSD * scale
		d.AdjustedRiskUSD = &scaled
		d.Reasons = append(d.Reasons, "risk scaled by open-position taper")
	}

	if d.Allowed && len(d.Reasons) == 0 {
		d.Reasons = append(d.Reasons, "all checks passed")
	}
	return d
}

// RecordLoss/RecordWin manage the per-coin blacklist (spec.md §4.8).
func (pg *PortfolioGuard) RecordLoss(symbol string, now time.Time) {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	bare := bareCoin(symbol)
	e, ok := pg.blacklist[bare]
	if !ok {
		e = &blacklistEntry{}
		pg.blacklist[bare] = e
	}
	e.ConsecutiveLosses++
	if e.ConsecutiveLosses >= pg.cfg.CoinBlacklistAfterLosses {
		e.BlockedUntil = now.Add(pgBlacklistDuration)
	}
	pg.persistBlacklist()
}

func (pg *PortfolioGuard) RecordWin(symbol string) {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	bare := bareCoin(symbol)
	if e, ok := pg.blacklist[bare]; ok {
		e.ConsecutiveLosses = 0
		pg.persistBlacklist()
	}
}

func (pg *PortfolioGuard) IsBlacklisted(symbol string, now time.Time) bool {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	return pg.isBlacklistedLocked(bareCoin(symbol), now)
}

func (pg *PortfolioGuard) isBlacklistedLocked(bare string, now time.Time) bool {
	e, ok := pg.blacklist[bare]
	if !ok {
		return false
	}
	if !e.BlockedUntil.IsZero() && e.BlockedUntil.After(now) {
		return true
	}
	if !e.BlockedUntil.IsZero() {
		e.BlockedUntil = time.Time{}
	}
	return false
}

// Status mirrors spec.md §4.8's dashboard/health-report shape.
type PortfolioGuardStatus struct {
	TotalHeatUSD    float64
	TotalHeatPct    float64
	LongCount       int
	ShortCount      int
	OpenPositions   int
	Blacklisted     []string
}

func (pg *PortfolioGuard) Status() PortfolioGuardStatus {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	s := pg.state
	var bl []string
	for coin, e := range pg.blacklist {
		if e.ConsecutiveLosses > 0 {
			bl = append(bl, coin)
		}
	}
	sort.Strings(bl)
	return PortfolioGuardStatus{
		TotalHeatUSD:  s.TotalHeatUSD,
		TotalHeatPct:  s.TotalHeatPct,
		LongCount:     s.LongCount,
		ShortCount:    s.ShortCount,
		OpenPositions: s.LongCount + s.ShortCount,
		Blacklisted:   bl,
	}
}

func (pg *PortfolioGuard) persistBlacklist() {
	if pg.path == "" {
		return
	}
	if err := atomicWriteJSON(pg.path, pg.blacklist); err != nil {
		logWarn("portfolioguard persist failed: %v", err)
	}
}

func (pg *PortfolioGuard) loadBlacklist() {
	if pg.path == "" {
		return
	}
	var m map[string]*blacklistEntry
	if readJSONIfExists(pg.path, &m) && m != nil {
		pg.blacklist = m
	}
}
