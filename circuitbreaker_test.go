package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestThreeConsecutiveLossesPauses reproduces spec.md §8 scenario 3: three -$20 losses in a
// row on $1000 starting capital triggers a 4h pause and the "3 consecutive losses" reason.
func TestThreeConsecutiveLossesPauses(t *testing.T) {
	cb := NewCircuitBreaker(1000, "")
	now := time.Unix(0, 0)

	cb.RecordTrade(-20, "BTCUSDT", now)
	cb.RecordTrade(-20, "BTCUSDT", now)
	g := cb.Check(now, "BTCUSDT")
	require.False(t, g.Allowed, "two -$20 losses put daily PnL at -4%, past the 3% daily limit")

	cb.RecordTrade(-20, "BTCUSDT", now)
	require.Equal(t, 3, cb.Snapshot().ConsecutiveLosses)

	g = cb.Check(now, "BTCUSDT")
	require.False(t, g.Allowed)
	require.Equal(t, "paused: 3 consecutive losses", g.Reason)

	snap := cb.Snapshot()
	require.Equal(t, now.Add(4*time.Hour), snap.PauseUntil)

	// a 3h59m-later check is still paused; a 4h-later check on another symbol is not (BTCUSDT
	// itself stays blocked by its own three-loss streak until a win).
	almostExpired := now.Add(3*time.Hour + 59*time.Minute)
	g = cb.Check(almostExpired, "BTCUSDT")
	require.False(t, g.Allowed)

	expired := now.Add(4*time.Hour + time.Second)
	g = cb.Check(expired, "ETHUSDT")
	require.True(t, g.Allowed)
}

// TestWinResetsConsecutiveLosses covers invariant 4: consecutive_losses tracks only the
// trailing losing-trade run-length.
func TestWinResetsConsecutiveLosses(t *testing.T) {
	cb := NewCircuitBreaker(1000, "")
	now := time.Unix(0, 0)
	cb.RecordTrade(-10, "ETHUSDT", now)
	cb.RecordTrade(-10, "ETHUSDT", now)
	cb.RecordTrade(15, "ETHUSDT", now)
	require.Equal(t, 0, cb.Snapshot().ConsecutiveLosses)
}

// TestRecordTradeBalanceExact covers invariant 6: current_balance == previous + pnl, exactly.
func TestRecordTradeBalanceExact(t *testing.T) {
	cb := NewCircuitBreaker(1000, "")
	now := time.Unix(0, 0)
	cb.RecordTrade(37.5, "SOLUSDT", now)
	cb.RecordTrade(-12.25, "SOLUSDT", now)
	require.InDelta(t, 1025.25, cb.Snapshot().CurrentBalance, 1e-9)
}

// TestTotalDrawdownHalt covers the top-level halt gate: 25% drawdown from starting capital
// blocks regardless of streak or pause state.
func TestTotalDrawdownHalt(t *testing.T) {
	cb := NewCircuitBreaker(1000, "")
	now := time.Unix(0, 0)
	cb.RecordTrade(-260, "BTCUSDT", now)
	g := cb.Check(now, "BTCUSDT")
	require.False(t, g.Allowed)
	require.Contains(t, g.Reason, "halt")
}

// TestPersistenceRoundTrip exercises the atomic tmp-rename persistence path.
func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/circuit_breaker_state.json"
	now := time.Unix(0, 0)

	cb := NewCircuitBreaker(1000, path)
	cb.RecordTrade(-20, "BTCUSDT", now)
	cb.RecordTrade(-20, "BTCUSDT", now)

	reloaded := NewCircuitBreaker(1000, path)
	require.Equal(t, 2, reloaded.Snapshot().ConsecutiveLosses)
	require.InDelta(t, 960.0, reloaded.Snapshot().CurrentBalance, 1e-9)
}
