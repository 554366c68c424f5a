package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func coinglassStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, data any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "0", "msg": "ok", "data": data})
	}
	mux.HandleFunc("/api/futures/liquidation/coin-list", func(w http.ResponseWriter, r *http.Request) {
		write(w, []map[string]any{
			{"symbol": "BTC", "long_liquidation_usd_24h": "120000", "short_liquidation_usd_24h": "80000"},
		})
	})
	mux.HandleFunc("/api/futures/funding-rate/exchange-list", func(w http.ResponseWriter, r *http.Request) {
		write(w, []map[string]any{
			{"stablecoin_margin_list": []map[string]any{{"funding_rate": 0.004}}},
		})
	})
	mux.HandleFunc("/api/futures/open-interest/exchange-list", func(w http.ResponseWriter, r *http.Request) {
		write(w, []map[string]any{
			{"open_interest_change_percent_1h": 1.5, "open_interest_change_percent_4h": 4.0, "open_interest_change_percent_24h": 9.0},
		})
	})
	mux.HandleFunc("/api/futures/global-long-short-account-ratio/history", func(w http.ResponseWriter, r *http.Request) {
		write(w, []map[string]any{{"global_account_long_percent": 62.0}})
	})
	mux.HandleFunc("/api/futures/taker-buy-sell-volume/exchange-list", func(w http.ResponseWriter, r *http.Request) {
		write(w, []map[string]any{{"taker_buy_volume_usd": 300.0, "taker_sell_volume_usd": 100.0}})
	})
	return httptest.NewServer(mux)
}

func TestFetchUniverseAggregatesAllEndpoints(t *testing.T) {
	srv := coinglassStub(t)
	defer srv.Close()

	feed := NewCoinglassFeed("test-key", nil)
	feed.baseURL = srv.URL

	out, err := feed.FetchUniverse(context.Background(), []string{"BTCUSDT"})
	require.NoError(t, err)
	require.Contains(t, out, "BTCUSDT")

	m := out["BTCUSDT"]
	require.InDelta(t, 0.004, m.FundingRate8h, 1e-9)
	require.InDelta(t, 1.5, m.OIChange1h, 1e-9)
	require.InDelta(t, 4.0, m.OIChange4h, 1e-9)
	require.InDelta(t, 9.0, m.OIChange24h, 1e-9)
	require.InDelta(t, 0.62, m.LongShortRatio, 1e-9)
	require.InDelta(t, 120000, m.LiqLongUSD, 1e-9)
	require.InDelta(t, 80000, m.LiqShortUSD, 1e-9)
	require.InDelta(t, 0.75, m.TakerBuyRatio, 1e-9)
	require.Zero(t, m.PriceChange1h) // no venue wired, so price windows stay zero
}

func TestFetchUniverseCachesWithinTTL(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/api/futures/liquidation/coin-list", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "0", "data": []map[string]any{}})
	})
	mux.HandleFunc("/api/futures/funding-rate/exchange-list", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "0", "data": []map[string]any{}})
	})
	mux.HandleFunc("/api/futures/open-interest/exchange-list", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "0", "data": []map[string]any{}})
	})
	mux.HandleFunc("/api/futures/global-long-short-account-ratio/history", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "0", "data": []map[string]any{}})
	})
	mux.HandleFunc("/api/futures/taker-buy-sell-volume/exchange-list", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "0", "data": []map[string]any{}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	feed := NewCoinglassFeed("test-key", nil)
	feed.baseURL = srv.URL

	_, err := feed.FetchUniverse(context.Background(), []string{"BTCUSDT"})
	require.NoError(t, err)
	_, err = feed.FetchUniverse(context.Background(), []string{"BTCUSDT"})
	require.NoError(t, err)
	require.Equal(t, 1, calls) // second scan hits the response cache, not the coin-list endpoint again
}

func TestRateCheckEnforcesTwentyEightCallBudget(t *testing.T) {
	feed := NewCoinglassFeed("test-key", nil)
	for i := 0; i < 28; i++ {
		require.True(t, feed.rateCheck())
	}
	require.False(t, feed.rateCheck())
}
