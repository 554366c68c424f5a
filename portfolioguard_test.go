package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestHeatCapScalesRiskDown reproduces spec.md §8 scenario 4: $1000 balance, 10% max heat,
// $95 current heat, a $25 request is allowed but adjusted down to $5.
func TestHeatCapScalesRiskDown(t *testing.T) {
	cfg := DefaultPortfolioGuardConfig()
	cfg.PortfolioMaxHeatPct = 10.0
	pg := NewPortfolioGuard(cfg, "")
	pg.UpdateState(1000, []OpenPosition{
		{Symbol: "BTCUSDT", Direction: "long", RiskUSD: 95, Notional: 500, TradeType: TradeSwing},
	})

	d := pg.CheckTrade("ETHUSDT", "long", 25, 500, TradeSwing, time.Unix(0, 0))
	require.True(t, d.Allowed)
	require.NotNil(t, d.AdjustedRiskUSD)
	require.InDelta(t, 5.0, *d.AdjustedRiskUSD, 1e-6)
}

// TestCorrelationGroupBlocksThirdSameDirection checks the correlated-group block on the L1-alt
// group {SOL, AVAX, DOT}: with AVAX and DOT longs already open, a SOL long is refused. The
// first guard, seeded with BTC/ETH longs, is not asserted on.
func TestCorrelationGroupBlocksThirdSameDirection(t *testing.T) {
	pg := NewPortfolioGuard(DefaultPortfolioGuardConfig(), "")
	pg.UpdateState(10000, []OpenPosition{
		{Symbol: "BTCUSDT", Direction: "long", RiskUSD: 10, Notional: 500, TradeType: TradeSwing},
		{Symbol: "ETHUSDT", Direction: "long", RiskUSD: 10, Notional: 500, TradeType: TradeSwing},
	})

	d := pg.CheckTrade("BTCUSDT", "long", 10, 500, TradeSwing, time.Unix(0, 0))
	// BTC itself isn't a third distinct member, so exercise a third member of the L1-alt group
	// instead: SOL joins {SOL, AVAX, DOT}; seed two same-direction AVAX/DOT longs and check SOL.
	_ = d
	pg2 := NewPortfolioGuard(DefaultPortfolioGuardConfig(), "")
	pg2.UpdateState(10000, []OpenPosition{
		{Symbol: "AVAXUSDT", Direction: "long", RiskUSD: 10, Notional: 500, TradeType: TradeSwing},
		{Symbol: "DOTUSDT", Direction: "long", RiskUSD: 10, Notional: 500, TradeType: TradeSwing},
	})
	blocked := pg2.CheckTrade("SOLUSDT", "long", 10, 500, TradeSwing, time.Unix(0, 0))
	require.False(t, blocked.Allowed)
	require.Contains(t, blocked.Reasons[0], "correlated group")
}

func TestBlacklistAfterThreeLossesExpiresAfterOneHour(t *testing.T) {
	pg := NewPortfolioGuard(DefaultPortfolioGuardConfig(), "")
	now := time.Unix(0, 0)
	pg.RecordLoss("BTCUSDT", now)
	pg.RecordLoss("BTCUSDT", now)
	require.False(t, pg.IsBlacklisted("BTCUSDT", now))
	pg.RecordLoss("BTCUSDT", now)
	require.True(t, pg.IsBlacklisted("BTCUSDT", now))
	require.False(t, pg.IsBlacklisted("BTCUSDT", now.Add(61*time.Minute)))
}

func TestSwingRiskTaperAtThreeOpenPositions(t *testing.T) {
	pg := NewPortfolioGuard(DefaultPortfolioGuardConfig(), "")
	pg.UpdateState(100000, []OpenPosition{
		{Symbol: "BTCUSDT", Direction: "long", RiskUSD: 1, Notional: 100, TradeType: TradeSwing},
		{Symbol: "ETHUSDT", Direction: "short", RiskUSD: 1, Notional: 100, TradeType: TradeSwing},
		{Symbol: "XRPUSDT", Direction: "long", RiskUSD: 1, Notional: 100, TradeType: TradeSwing},
	})
	d := pg.CheckTrade("ADAUSDT", "long", 100, 100, TradeSwing, time.Unix(0, 0))
	require.True(t, d.Allowed)
	require.NotNil(t, d.AdjustedRiskUSD)
	require.InDelta(t, 85.0, *d.AdjustedRiskUSD, 1e-6) // scale = 1-(3-2)*0.15 = 0.85
}

func TestPerCoinNotionalCapBlocksWhenHeadroomTiny(t *testing.T) {
	cfg := DefaultPortfolioGuardConfig()
	cfg.NotionalCapAlt = 1000
	pg := NewPortfolioGuard(cfg, "")
	pg.UpdateState(100000, []OpenPosition{
		{Symbol: "PEPEUSDT", Direction: "long", RiskUSD: 1, Notional: 950, TradeType: TradeSwing},
	})
	d := pg.CheckTrade("PEPEUSDT", "long", 1, 100, TradeSwing, time.Unix(0, 0))
	require.False(t, d.Allowed)
}

func TestBlacklistPersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/portfolio_blacklist.json"
	now := time.Unix(0, 0)

	pg := NewPortfolioGuard(DefaultPortfolioGuardConfig(), path)
	pg.RecordLoss("ETHUSDT", now)
	pg.RecordLoss("ETHUSDT", now)
	pg.RecordLoss("ETHUSDT", now)
	require.True(t, pg.IsBlacklisted("ETHUSDT", now))

	reloaded := NewPortfolioGuard(DefaultPortfolioGuardConfig(), path)
	require.True(t, reloaded.IsBlacklisted("ETHUSDT", now))
}
