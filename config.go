// FILE: config.go
// Package main – Runtime configuration model and loader.
//
// Config bundles every knob spec.md §6 enumerates, organized the way the spec groups them
// (risk, loss limits, positions, portfolio, exit, timing, analyst, mode). Populated from the
// process environment by loadConfigFromEnv(); the .env file itself is read by loadBotEnv()
// (env.go), so the whole set can be tuned without exports.
//
// Typical flow (see main.go):
//   loadBotEnv()
//   initThresholdsFromEnv()
//   cfg := loadConfigFromEnv()
package main

import "time"

// Config holds every runtime knob for trading and operations.
type Config struct {
	// Trading target / venue
	ProductID   string // e.g., "BTC-PERP"
	Granularity string // e.g., "ONE_MINUTE"
	BridgeURL   string // e.g., http://127.0.0.1:8787
	WSURL       string // venue tick-stream websocket URL
	WSEnabled   bool

	// Mode
	DryRun bool
	Port   int

	// Risk (spec.md §6 "Risk")
	RiskPerTradeUSD float64
	RiskPerTradePct float64
	MaxLeverage     int
	DefaultLeverage int
	MaxExposurePct  float64

	// Loss limits (spec.md §6 "Loss limits")
	MaxDailyLossPct       float64
	MaxWeeklyLossPct      float64
	MaxMonthlyDDPct       float64
	MaxTotalDDPct         float64
	MaxConsecutiveLosses  int
	PauseHoursAfterLosses float64

	// Positions (spec.md §6 "Positions")
	MaxOpenPositions  int
	ScalpMaxPositions int
	SwingMaxPositions int
	MaxSameDirection  int

	// Portfolio (spec.md §6 "Portfolio")
	PortfolioMaxHeatPct      float64
	CoinBlacklistAfterLosses int
	NotionalCapMajor         float64
	NotionalCapMid           float64
	NotionalCapAlt           float64

	// Exit (spec.md §6 "Exit")
	TrailATRMultiplier float64
	TrailBreakevenR    float64
	TrailActivateR     float64
	PartialTP1Pct      float64
	PartialTP1R        float64
	PartialTP2Pct      float64
	PartialTP2R        float64
	PartialTP3R        float64
	MaxStaleHours      float64
	StaleThresholdR    float64
	ExitRegimeChopMult  float64
	ExitRegimeTrendMult float64

	// Timing (spec.md §6 "Timing")
	CycleSeconds         int
	ScalpCycleSeconds    int
	MacroPollSeconds     int
	CoinglassPollSeconds int

	// Derivatives data provider (original_source/odin/macro/coinglass.py). Empty key disables
	// the feed; the Scheduler's regime refresh then no-ops per spec.md §4.10's documented
	// degraded mode.
	CoinglassAPIKey string

	// Analyst (spec.md §6 "Analyst")
	MinConviction float64
	LLMMinRiskUSD float64
	LLMMaxRiskUSD float64

	// Weekly calibration review (spec.md §4.10): UTC day-of-week + hour, once per week.
	CalibrationReviewWeekday time.Weekday
	CalibrationReviewHour    int

	// Kill switch (spec.md §4.10): flag-file path checked at cycle start.
	KillSwitchPath string

	// Persisted-state directory (spec.md §6): every store below lives under this root as one
	// file each, atomic tmp-then-rename.
	StateDir string

	USDEquity float64
}

// loadConfigFromEnv reads the process env (already hydrated by loadBotEnv()) and returns a
// Config with every default spec.md §6 lists.
func loadConfigFromEnv() Config {
	return Config{
		ProductID:   getEnv("PRODUCT_ID", "BTC-PERP"),
		Granularity: getEnv("GRANULARITY", "ONE_MINUTE"),
		BridgeURL:   getEnv("BRIDGE_URL", "http://127.0.0.1:8787"),
		WSURL:       getEnv("WS_URL", "ws://127.0.0.1:8787/ws"),
		WSEnabled:   getEnvBool("WS_ENABLED", true),

		DryRun: getEnvBool("DRY_RUN", true),
		Port:   getEnvInt("PORT", 8080),

		RiskPerTradeUSD: getEnvFloat("RISK_PER_TRADE_USD", 25),
		RiskPerTradePct: getEnvFloat("RISK_PER_TRADE_PCT", 3.25),
		MaxLeverage:     getEnvInt("MAX_LEVERAGE", 50),
		DefaultLeverage: getEnvInt("DEFAULT_LEVERAGE", 10),
		MaxExposurePct:  getEnvFloat("MAX_EXPOSURE_PCT", 50),

		MaxDailyLossPct:       getEnvFloat("MAX_DAILY_LOSS_PCT", 3),
		MaxWeeklyLossPct:      getEnvFloat("MAX_WEEKLY_LOSS_PCT", 6),
		MaxMonthlyDDPct:       getEnvFloat("MAX_MONTHLY_DD_PCT", 15),
		MaxTotalDDPct:         getEnvFloat("MAX_TOTAL_DD_PCT", 25),
		MaxConsecutiveLosses:  getEnvInt("MAX_CONSECUTIVE_LOSSES", 3),
		PauseHoursAfterLosses: getEnvFloat("PAUSE_HOURS_AFTER_LOSSES", 4),

		MaxOpenPositions:  getEnvInt("MAX_OPEN_POSITIONS", 2),
		ScalpMaxPositions: getEnvInt("SCALP_MAX_POSITIONS", 8),
		SwingMaxPositions: getEnvInt("SWING_MAX_POSITIONS", 15),
		MaxSameDirection:  getEnvInt("MAX_SAME_DIRECTION", 4),

		PortfolioMaxHeatPct:      getEnvFloat("PORTFOLIO_MAX_HEAT_PCT", 10),
		CoinBlacklistAfterLosses: getEnvInt("COIN_BLACKLIST_AFTER_LOSSES", 3),
		NotionalCapMajor:         getEnvFloat("NOTIONAL_CAP_MAJOR", 20000),
		NotionalCapMid:           getEnvFloat("NOTIONAL_CAP_MID", 10000),
		NotionalCapAlt:           getEnvFloat("NOTIONAL_CAP_ALT", 5000),

		TrailATRMultiplier:  getEnvFloat("TRAIL_ATR_MULTIPLIER", 1.5),
		TrailBreakevenR:     getEnvFloat("TRAIL_BREAKEVEN_R", 1.0),
		TrailActivateR:      getEnvFloat("TRAIL_ACTIVATE_R", 2.0),
		PartialTP1Pct:       getEnvFloat("PARTIAL_TP1_PCT", 0.25),
		PartialTP1R:         getEnvFloat("PARTIAL_TP1_R", 1.5),
		PartialTP2Pct:       getEnvFloat("PARTIAL_TP2_PCT", 0.30),
		PartialTP2R:         getEnvFloat("PARTIAL_TP2_R", 2.5),
		PartialTP3R:         getEnvFloat("PARTIAL_TP3_R", 4.0),
		MaxStaleHours:       getEnvFloat("MAX_STALE_HOURS", 12),
		StaleThresholdR:     getEnvFloat("STALE_THRESHOLD_R", 0.3),
		ExitRegimeChopMult:  getEnvFloat("EXIT_REGIME_CHOP_MULT", 0.7),
		ExitRegimeTrendMult: getEnvFloat("EXIT_REGIME_TREND_MULT", 1.5),

		CycleSeconds:         getEnvInt("CYCLE_SECONDS", 300),
		ScalpCycleSeconds:    getEnvInt("SCALP_CYCLE_SECONDS", 30),
		MacroPollSeconds:     getEnvInt("MACRO_POLL_SECONDS", 600),
		CoinglassPollSeconds: getEnvInt("COINGLASS_POLL_SECONDS", 180),
		CoinglassAPIKey:      getEnv("COINGLASS_API_KEY", ""),

		MinConviction: getEnvFloat("MIN_CONVICTION", 50),
		LLMMinRiskUSD: getEnvFloat("LLM_MIN_RISK_USD", 5),
		LLMMaxRiskUSD: getEnvFloat("LLM_MAX_RISK_USD", 500),

		CalibrationReviewWeekday: time.Weekday(getEnvInt("CALIBRATION_REVIEW_WEEKDAY", int(time.Sunday))),
		CalibrationReviewHour:    getEnvInt("CALIBRATION_REVIEW_HOUR", 0),

		KillSwitchPath: getEnv("KILL_SWITCH_PATH", "./state/KILL_SWITCH"),
		StateDir:       getEnv("STATE_DIR", "./state"),

		USDEquity: getEnvFloat("USD_EQUITY", 1000.0),
	}
}

// ExitParams projects Config's exit category onto the Exit Engine's parameter struct.
func (c *Config) ExitParams() ExitParams {
	return ExitParams{
		TrailATRMultiplier: c.TrailATRMultiplier,
		TrailBreakevenR:    c.TrailBreakevenR,
		TrailActivateR:     c.TrailActivateR,
		Partial1Pct:        c.PartialTP1Pct,
		Partial1R:          c.PartialTP1R,
		Partial2Pct:        c.PartialTP2Pct,
		Partial2R:          c.PartialTP2R,
		Partial3R:          c.PartialTP3R,
		MaxStaleHours:      c.MaxStaleHours,
		StaleThresholdR:    c.StaleThresholdR,
		RegimeChopMult:     c.ExitRegimeChopMult,
		RegimeTrendMult:    c.ExitRegimeTrendMult,
	}
}

// PortfolioGuardConfig projects Config's portfolio+positions categories onto PortfolioGuard's
// config struct.
func (c *Config) PortfolioGuardConfig() PortfolioGuardConfig {
	return PortfolioGuardConfig{
		MaxOpenPositions:         c.MaxOpenPositions,
		ScalpMaxPositions:        c.ScalpMaxPositions,
		SwingMaxPositions:        c.SwingMaxPositions,
		PortfolioMaxHeatPct:      c.PortfolioMaxHeatPct,
		MaxSameDirection:         c.MaxSameDirection,
		NotionalCapMajor:         c.NotionalCapMajor,
		NotionalCapMid:           c.NotionalCapMid,
		NotionalCapAlt:           c.NotionalCapAlt,
		CoinBlacklistAfterLosses: c.CoinBlacklistAfterLosses,
	}
}

// AnalystValidationConfig projects Config's analyst category onto the validator's config struct.
func (c *Config) AnalystValidationConfig() AnalystValidationConfig {
	return AnalystValidationConfig{
		MinConviction: c.MinConviction,
		MinRiskUSD:    c.LLMMinRiskUSD,
		MaxRiskUSD:    c.LLMMaxRiskUSD,
	}
}

// UseLiveEquity returns true if live balances should rebase equity.
func (c *Config) UseLiveEquity() bool {
	return getEnvBool("USE_LIVE_EQUITY", false)
}

// ---- Phase-7 toggles (append-only; no behavior changes unless envs set) ----

// ModelMode selects the prediction path; baseline is the default.
type ModelMode string

const (
	ModelModeBaseline ModelMode = "baseline"
	ModelModeExtended ModelMode = "extended"
)

// ExtendedToggles exposes optional Phase-7 features without altering existing behavior.
type ExtendedToggles struct {
	ModelMode      ModelMode // baseline (default) or extended
	WalkForwardMin int       // WALK_FORWARD_MIN; read but not consulted by any component
	VolRiskAdjust  bool      // VOL_RISK_ADJUST; read but not consulted by any component
	UseDirectSlack bool      // true if SLACK_WEBHOOK is set (optional direct pings)
}

// Extended reads optional Phase-7 toggles from env. Defaults preserve baseline behavior.
func (c *Config) Extended() ExtendedToggles {
	mm := ModelMode(getEnv("MODEL_MODE", string(ModelModeBaseline)))
	if mm != ModelModeExtended {
		mm = ModelModeBaseline
	}
	return ExtendedToggles{
		ModelMode:      mm,
		WalkForwardMin: getEnvInt("WALK_FORWARD_MIN", 0),
		VolRiskAdjust:  getEnvBool("VOL_RISK_ADJUST", false),
		UseDirectSlack: getEnv("SLACK_WEBHOOK", "") != "",
	}
}
