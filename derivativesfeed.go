// FILE: derivativesfeed.go
// Package main – CoinGlass-backed DerivativesFeed: the concrete regime-refresh data source
// behind the Scheduler's DerivativesFeed interface.
//
// Adapted from original_source/odin/macro/coinglass.py's CoinGlassClient: same V4 REST surface
// (kebab-case paths, CG-API-KEY header, {"code","msg","data"} envelope), the same 30-req/min
// rate budget with a 2-call buffer, and a per-path response cache with a fixed 170s TTL (not
// derived from the configured poll interval). venue_bridge.go's net/http client idiom (context-aware requests,
// flexible numeric JSON field parsing) is reused for the transport itself.
package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const coinglassBaseURL = "https://open-api-v4.coinglass.com"

type cgCacheEntry struct {
	at   time.Time
	rows []map[string]any
}

// CoinglassFeed implements DerivativesFeed against CoinGlass's hobbyist-tier API. It also holds
// a Venue reference to source price-change windows, since CoinGlass's lower tiers carry no
// historical price series for free (original_source's CoinMetrics.price_change_* fields are
// left unfilled by the client itself and merged in by the scanning layer above it).
type CoinglassFeed struct {
	apiKey  string
	baseURL string
	venue   Venue
	hc      *http.Client

	mu          sync.Mutex
	callCount   int
	minuteStart time.Time
	cache       map[string]cgCacheEntry
	cacheTTL    time.Duration
}

// NewCoinglassFeed builds a feed client. venue may be nil, in which case price-change windows
// are reported as zero and the Regime Classifier falls back on funding/OI/liquidation signals
// alone.
func NewCoinglassFeed(apiKey string, venue Venue) *CoinglassFeed {
	return &CoinglassFeed{
		apiKey:      apiKey,
		baseURL:     coinglassBaseURL,
		venue:       venue,
		hc:          &http.Client{Timeout: 12 * time.Second},
		minuteStart: time.Now(),
		cache:       map[string]cgCacheEntry{},
		cacheTTL:    170 * time.Second, // ~ the default COINGLASS_POLL_SECONDS
	}
}

// rateCheck reserves a call against the 30/min budget, leaving a 2-call buffer, matching
// coinglass.py's _rate_check.
func (cf *CoinglassFeed) rateCheck() bool {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	now := time.Now()
	if now.Sub(cf.minuteStart) > time.Minute {
		cf.callCount = 0
		cf.minuteStart = now
	}
	if cf.callCount >= 28 {
		return false
	}
	cf.callCount++
	return true
}

func (cf *CoinglassFeed) cached(key string) ([]map[string]any, bool) {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	e, ok := cf.cache[key]
	if !ok || time.Since(e.at) >= cf.cacheTTL {
		return nil, false
	}
	return e.rows, true
}

func (cf *CoinglassFeed) store(key string, rows []map[string]any) {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	cf.cache[key] = cgCacheEntry{at: time.Now(), rows: rows}
}

// get issues a single CoinGlass V4 GET, unwraps the {code,msg,data} envelope, and normalizes
// the data payload into a row list (single-object responses become a one-row list).
func (cf *CoinglassFeed) get(ctx context.Context, path, cacheKey string, params url.Values) ([]map[string]any, error) {
	if rows, ok := cf.cached(cacheKey); ok {
		return rows, nil
	}
	if !cf.rateCheck() {
		return nil, ErrRateLimited
	}

	u := cf.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, transientf("coinglass request %s: %v", path, err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("CG-API-KEY", cf.apiKey)

	res, err := cf.hc.Do(req)
	if err != nil {
		return nil, transientf("coinglass %s: %v", path, err)
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusOK {
		return nil, transientf("coinglass %s: http %d", path, res.StatusCode)
	}

	var payload struct {
		Code string          `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &payload); err != nil {
		return nil, transientf("coinglass %s: decode: %v", path, err)
	}
	if payload.Code != "" && payload.Code != "0" {
		return nil, logicalf("coinglass %s: %s", path, payload.Msg)
	}

	var rows []map[string]any
	if err := json.Unmarshal(payload.Data, &rows); err != nil {
		var row map[string]any
		if err2 := json.Unmarshal(payload.Data, &row); err2 == nil && len(row) > 0 {
			rows = []map[string]any{row}
		}
	}
	cf.store(cacheKey, rows)
	return rows, nil
}

func floatField(row map[string]any, key string) float64 {
	switch t := row[key].(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

func coinSymbol(pair string) string {
	coin := strings.TrimSuffix(pair, "USDT")
	coin = strings.TrimSuffix(coin, "-PERP")
	return coin
}

// FetchUniverse implements DerivativesFeed: one liquidation/coin-list scan covering every
// symbol, plus per-symbol funding/OI/long-short/taker-volume calls, mirroring
// coinglass.py's scan_market budget (1 + 4*N calls for N priority symbols).
func (cf *CoinglassFeed) FetchUniverse(ctx context.Context, symbols []string) (map[string]DerivMetrics, error) {
	liqRows, err := cf.get(ctx, "/api/futures/liquidation/coin-list", "liq_coins", nil)
	if err != nil && err != ErrRateLimited {
		return nil, err
	}
	liqBySymbol := make(map[string]map[string]any, len(liqRows))
	for _, row := range liqRows {
		if sym, ok := row["symbol"].(string); ok {
			liqBySymbol[sym] = row
		}
	}

	out := make(map[string]DerivMetrics, len(symbols))
	for _, symbol := range symbols {
		coin := coinSymbol(symbol)
		m := DerivMetrics{LongShortRatio: 0.5, TakerBuyRatio: 0.5}

		if rows, err := cf.get(ctx, "/api/futures/funding-rate/exchange-list", "fr_"+coin,
			url.Values{"symbol": {coin}}); err == nil && len(rows) > 0 {
			if rates, ok := rows[0]["stablecoin_margin_list"].([]any); ok && len(rates) > 0 {
				if first, ok := rates[0].(map[string]any); ok {
					m.FundingRate8h = floatField(first, "funding_rate")
				}
			}
		}

		if rows, err := cf.get(ctx, "/api/futures/open-interest/exchange-list", "oi_"+coin,
			url.Values{"symbol": {coin}}); err == nil && len(rows) > 0 {
			agg := rows[0]
			m.OIChange1h = floatField(agg, "open_interest_change_percent_1h")
			m.OIChange4h = floatField(agg, "open_interest_change_percent_4h")
			m.OIChange24h = floatField(agg, "open_interest_change_percent_24h")
		}

		if rows, err := cf.get(ctx, "/api/futures/global-long-short-account-ratio/history", "gls_"+symbol,
			url.Values{"exchange": {"Binance"}, "symbol": {symbol}, "interval": {"h4"}, "limit": {"1"}}); err == nil && len(rows) > 0 {
			m.LongShortRatio = floatField(rows[len(rows)-1], "global_account_long_percent") / 100
		}

		if liq, ok := liqBySymbol[coin]; ok {
			m.LiqLongUSD = floatField(liq, "long_liquidation_usd_24h")
			m.LiqShortUSD = floatField(liq, "short_liquidation_usd_24h")
		}

		if rows, err := cf.get(ctx, "/api/futures/taker-buy-sell-volume/exchange-list", "taker_"+coin,
			url.Values{"symbol": {coin}, "range": {"4h"}}); err == nil && len(rows) > 0 {
			buy := floatField(rows[0], "taker_buy_volume_usd")
			sell := floatField(rows[0], "taker_sell_volume_usd")
			if buy+sell > 0 {
				m.TakerBuyRatio = buy / (buy + sell)
			}
		}

		m.PriceChange1h, m.PriceChange4h, m.PriceChange24h = cf.priceChanges(ctx, symbol)
		out[symbol] = m
	}
	return out, nil
}

// priceChanges derives the three lookback windows ClassifyGlobal/ScoreSymbol need from hourly
// venue candles.
func (cf *CoinglassFeed) priceChanges(ctx context.Context, symbol string) (h1, h4, h24 float64) {
	if cf.venue == nil {
		return 0, 0, 0
	}
	candles, err := cf.venue.GetKlines(ctx, symbol, "ONE_HOUR", 25)
	if err != nil || len(candles) < 2 {
		return 0, 0, 0
	}
	last := candles[len(candles)-1].Close
	pctAgo := func(hoursBack int) float64 {
		idx := len(candles) - 1 - hoursBack
		if idx < 0 {
			idx = 0
		}
		ref := candles[idx].Close
		if ref == 0 {
			return 0
		}
		return (last - ref) / ref * 100
	}
	return pctAgo(1), pctAgo(4), pctAgo(24)
}
