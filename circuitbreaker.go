// FILE: circuitbreaker.go
// Package main – Circuit Breaker (C7): multi-level loss-limit gate.
//
// Levels evaluated top-down, first match wins, per spec.md §4.7 and
// original_source/odin/risk/circuit_breaker.py. Persisted via the teacher's tmp-then-rename
// idiom after every mutation (spec.md §4.7: "write-then-replace, to survive mid-update crashes").
package main

import (
	"sync"
	"time"
)

const (
	cbTotalDDHaltPct       = 25.0
	cbConsecutivePauseN    = 3
	cbConsecutivePauseHrs  = 4.0
	cbDailyLossPct         = 3.0
	cbDailyPauseHrs        = 24.0
	cbMonthlyDDPct         = 15.0
	cbMonthlySizeMult      = 0.25
	cbWeeklyLossPct        = 6.0
	cbWeeklySizeMult       = 0.5
	cbConsecutiveSizeMult  = 0.5
	cbSoftConsecutiveN     = 2
	cbSoftSizeMult         = 0.75
)

// CircuitBreakerState is the process-wide singleton, persisted atomically (spec.md §3).
type CircuitBreakerState struct {
	ConsecutiveLosses int                `json:"consecutive_losses"`
	DailyPnL          float64            `json:"daily_pnl"`
	WeeklyPnL         float64            `json:"weekly_pnl"`
	MonthlyPnL        float64            `json:"monthly_pnl"`
	TotalPnL          float64            `json:"total_pnl"`
	PeakBalance       float64            `json:"peak_balance"`
	CurrentBalance    float64            `json:"current_balance"`
	PauseUntil        time.Time          `json:"pause_until"`
	HaltTime          time.Time          `json:"halt_time"`
	PerSymbolLosses   map[string]int     `json:"per_symbol_losses"`
}

// GateResult is returned by Check: whether a new trade is allowed, the reason if not, and any
// size multiplier to apply when it is.
type GateResult struct {
	Allowed    bool
	Reason     string
	SizeMult   float64
}

// CircuitBreaker guards starting_capital-relative loss thresholds and per-symbol streaks.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           CircuitBreakerState
	startingCapital float64
	path            string
}

func NewCircuitBreaker(startingCapital float64, path string) *CircuitBreaker {
	cb := &CircuitBreaker{
		startingCapital: startingCapital,
		path:            path,
		state: CircuitBreakerState{
			CurrentBalance:  startingCapital,
			PeakBalance:     startingCapital,
			PerSymbolLosses: map[string]int{},
		},
	}
	cb.load()
	return cb
}

// Check implements spec.md §4.7's top-down level evaluation, called at the start of each
// trading cycle.
func (cb *CircuitBreaker) Check(now time.Time, symbol string) GateResult {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	s := &cb.state

	if cb.startingCapital > 0 {
		dd := (cb.startingCapital - s.CurrentBalance) / cb.startingCapital * 100
		if dd >= cbTotalDDHaltPct {
			return GateResult{Allowed: false, Reason: "halt: total drawdown limit reached"}
		}
	}
	if !s.PauseUntil.IsZero() && now.Before(s.PauseUntil) {
		if s.ConsecutiveLosses < cbConsecutivePauseN && cb.startingCapital > 0 &&
			s.DailyPnL/cb.startingCapital*100 <= -cbDailyLossPct {
			return GateResult{Allowed: false, Reason: "paused: daily loss limit"}
		}
		return GateResult{Allowed: false, Reason: "paused: 3 consecutive losses"}
	}
	if symbol != "" && s.PerSymbolLosses[symbol] >= cbConsecutivePauseN {
		return GateResult{Allowed: false, Reason: "symbol " + symbol + " blocked after consecutive losses"}
	}
	// Pause has lapsed but the streak is still live: resume at reduced size rather than
	// blocking indefinitely.
	if s.ConsecutiveLosses >= cbConsecutivePauseN {
		return GateResult{Allowed: true, SizeMult: cbConsecutiveSizeMult, Reason: "resumed after consecutive-loss pause"}
	}

	if cb.startingCapital > 0 {
		if s.DailyPnL/cb.startingCapital*100 <= -cbDailyLossPct {
			return GateResult{Allowed: false, Reason: "paused: daily loss limit"}
		}
		if s.MonthlyPnL/cb.startingCapital*100 <= -cbMonthlyDDPct {
			return GateResult{Allowed: true, SizeMult: cbMonthlySizeMult, Reason: "recovery mode: monthly drawdown"}
		}
		if s.WeeklyPnL/cb.startingCapital*100 <= -cbWeeklyLossPct {
			return GateResult{Allowed: true, SizeMult: cbWeeklySizeMult, Reason: "recovery mode: weekly loss"}
		}
	}
	if s.ConsecutiveLosses == cbSoftConsecutiveN {
		return GateResult{Allowed: true, SizeMult: cbSoftSizeMult, Reason: "soft: two consecutive losses"}
	}
	return GateResult{Allowed: true, SizeMult: 1.0}
}

// RecordTrade implements spec.md §8 invariant 6 exactly: current_balance = previous_balance +
// pnl. On a winning/breakeven trade, consecutive_losses and the symbol's streak reset to 0;
// on a loss they increment. A loss that brings the streak to three sets a 4h pause (once it
// lapses, Check resumes at 0.5x size while the streak lasts); otherwise a loss that takes daily
// PnL to -3% of starting capital or below sets a 24h pause.
func (cb *CircuitBreaker) RecordTrade(pnl float64, symbol string, now time.Time) {
	cb.mu.Lock()
	s := &cb.state

	s.CurrentBalance += pnl
	s.TotalPnL += pnl
	s.DailyPnL += pnl
	s.WeeklyPnL += pnl
	s.MonthlyPnL += pnl
	if s.CurrentBalance > s.PeakBalance {
		s.PeakBalance = s.CurrentBalance
	}

	if pnl >= 0 {
		s.ConsecutiveLosses = 0
		if symbol != "" {
			s.PerSymbolLosses[symbol] = 0
		}
	} else {
		s.ConsecutiveLosses++
		if symbol != "" {
			s.PerSymbolLosses[symbol]++
		}
		if s.ConsecutiveLosses >= cbConsecutivePauseN {
			s.PauseUntil = now.Add(cbConsecutivePauseHrs * time.Hour)
		} else if cb.startingCapital > 0 && s.DailyPnL/cb.startingCapital*100 <= -cbDailyLossPct {
			s.PauseUntil = now.Add(cbDailyPauseHrs * time.Hour)
		}
	}
	cb.mu.Unlock()
	cb.persist()
}

// ResetDaily/Weekly/Monthly are invoked by the Scheduler at UTC boundaries (spec.md §4.7).
func (cb *CircuitBreaker) ResetDaily() {
	cb.mu.Lock()
	cb.state.DailyPnL = 0
	cb.mu.Unlock()
	cb.persist()
}
func (cb *CircuitBreaker) ResetWeekly() {
	cb.mu.Lock()
	cb.state.WeeklyPnL = 0
	cb.mu.Unlock()
	cb.persist()
}
func (cb *CircuitBreaker) ResetMonthly() {
	cb.mu.Lock()
	cb.state.MonthlyPnL = 0
	cb.mu.Unlock()
	cb.persist()
}

// Snapshot returns a copy of the current state for persistence round-trip tests.
func (cb *CircuitBreaker) Snapshot() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cp := cb.state
	cp.PerSymbolLosses = make(map[string]int, len(cb.state.PerSymbolLosses))
	for k, v := range cb.state.PerSymbolLosses {
		cp.PerSymbolLosses[k] = v
	}
	return cp
}

func (cb *CircuitBreaker) persist() {
	if cb.path == "" {
		return
	}
	snap := cb.Snapshot()
	if err := atomicWriteJSON(cb.path, snap); err != nil {
		logWarn("circuitbreaker persist failed: %v", err)
	}
}

func (cb *CircuitBreaker) load() {
	if cb.path == "" {
		return
	}
	var s CircuitBreakerState
	if !readJSONIfExists(cb.path, &s) {
		return
	}
	if s.PerSymbolLosses == nil {
		s.PerSymbolLosses = map[string]int{}
	}
	cb.state = s
}
