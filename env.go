// FILE: env.go
// Package main – Environment helpers and safe .env loading for the trading bot.
//
// This file provides:
//   1) Small helpers to read environment variables with sane defaults
//      (strings, ints, floats, bools).
//   2) An allowlisted .env loader (loadBotEnv) that parses ./.env (and ../.env) with
//      github.com/joho/godotenv and injects ONLY the keys the Go bot needs into the process
//      environment. It intentionally ignores secrets not used by the Go process (e.g., the
//      multi-line Coinbase PEM used by the Python sidecar) to avoid shell-export issues.
//   3) Strategy threshold knobs (buyThreshold, sellThreshold, useMAFilter) and an
//      initializer (initThresholdsFromEnv) so the local-fallback analyst's buy/sell
//      thresholds can be tuned via .env without recompiling. useMAFilter is read from
//      USE_MA_FILTER but nothing consults it.
//
// The Python FastAPI sidecar continues to read its own .env (including the PEM).
// The Go bot never requires `export $(cat .env ...)`; just run `go run .`.
package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// --------- Env helpers (used across files) ---------

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
func getEnvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
func getEnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "y", "yes":
		return true
	case "0", "false", "n", "no":
		return false
	case "":
		return def
	default:
		return def
	}
}
func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// --------- Allowlisted .env loader (parsing via godotenv) ---------

// loadBotEnv reads .env from "." and ".." and sets ONLY the keys the Go bot needs.
// It won't override variables already in the environment and ignores multi-line PEMs.
func loadBotEnv() {
	needed := map[string]struct{}{
		"PRODUCT_ID": {}, "GRANULARITY": {}, "BRIDGE_URL": {}, "WS_URL": {}, "WS_ENABLED": {},
		"DRY_RUN": {}, "PORT": {}, "USD_EQUITY": {}, "USE_LIVE_EQUITY": {},

		"RISK_PER_TRADE_USD": {}, "RISK_PER_TRADE_PCT": {}, "MAX_LEVERAGE": {},
		"DEFAULT_LEVERAGE": {}, "MAX_EXPOSURE_PCT": {},

		"MAX_DAILY_LOSS_PCT": {}, "MAX_WEEKLY_LOSS_PCT": {}, "MAX_MONTHLY_DD_PCT": {},
		"MAX_TOTAL_DD_PCT": {}, "MAX_CONSECUTIVE_LOSSES": {}, "PAUSE_HOURS_AFTER_LOSSES": {},

		"MAX_OPEN_POSITIONS": {}, "SCALP_MAX_POSITIONS": {}, "SWING_MAX_POSITIONS": {},
		"MAX_SAME_DIRECTION": {},

		"PORTFOLIO_MAX_HEAT_PCT": {}, "COIN_BLACKLIST_AFTER_LOSSES": {}, "NOTIONAL_CAP_MAJOR": {},
		"NOTIONAL_CAP_MID": {}, "NOTIONAL_CAP_ALT": {},

		"TRAIL_ATR_MULTIPLIER": {}, "TRAIL_BREAKEVEN_R": {}, "TRAIL_ACTIVATE_R": {},
		"PARTIAL_TP1_PCT": {}, "PARTIAL_TP1_R": {}, "PARTIAL_TP2_PCT": {}, "PARTIAL_TP2_R": {},
		"PARTIAL_TP3_R": {}, "MAX_STALE_HOURS": {}, "STALE_THRESHOLD_R": {},
		"EXIT_REGIME_CHOP_MULT": {}, "EXIT_REGIME_TREND_MULT": {},

		"CYCLE_SECONDS": {}, "SCALP_CYCLE_SECONDS": {}, "MACRO_POLL_SECONDS": {},
		"COINGLASS_POLL_SECONDS": {}, "COINGLASS_API_KEY": {},

		"MIN_CONVICTION": {}, "LLM_MIN_RISK_USD": {}, "LLM_MAX_RISK_USD": {},

		"CALIBRATION_REVIEW_WEEKDAY": {}, "CALIBRATION_REVIEW_HOUR": {},
		"KILL_SWITCH_PATH": {}, "STATE_DIR": {},

		"BUY_THRESHOLD": {}, "SELL_THRESHOLD": {}, "USE_MA_FILTER": {},
		"MODEL_MODE": {}, "WALK_FORWARD_MIN": {}, "VOL_RISK_ADJUST": {}, "SLACK_WEBHOOK": {},
	}
	try := func(path string) {
		parsed, err := godotenv.Read(path)
		if err != nil {
			return
		}
		for key, val := range parsed {
			if _, ok := needed[key]; !ok {
				continue // ignore secrets (e.g., PEM) we don't need
			}
			if idx := strings.IndexAny(val, "#"); idx >= 0 {
				val = strings.TrimSpace(val[:idx])
			}
			if os.Getenv(key) == "" {
				_ = os.Setenv(key, val)
			}
		}
	}
	for _, base := range []string{".", ".."} {
		try(filepath.Join(base, ".env"))
	}
}

// --------- Tunable strategy thresholds (initialized in main) ---------

var (
	buyThreshold  float64 // set by initThresholdsFromEnv()
	sellThreshold float64 // set by initThresholdsFromEnv()
	useMAFilter   bool    // set by initThresholdsFromEnv()
)

func initThresholdsFromEnv() {
	buyThreshold = getEnvFloat("BUY_THRESHOLD", 0.55)
	sellThreshold = getEnvFloat("SELL_THRESHOLD", 0.45)
	useMAFilter = getEnvBool("USE_MA_FILTER", true)
}
