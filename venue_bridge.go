// FILE: venue_bridge.go
// Package main – HTTP Venue that talks to a local execution sidecar fronting a real perp
// exchange (Hyperliquid-shaped REST, per original_source/odin/execution/order_manager.py's
// HyperliquidClient usage).
//
// Adapted from broker_bridge.go's net/http client idiom (timeout, User-Agent, flexible JSON
// field parsing with numeric/string tolerance) to the wider perp-venue surface: positions,
// leverage, funding rate, limit orders with TTL, and TP/SL attachment.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BridgeVenue is the live execution path: a thin HTTP client over a sidecar process.
type BridgeVenue struct {
	base string
	hc   *http.Client
}

func NewBridgeVenue(base string) *BridgeVenue {
	base = strings.TrimSpace(base)
	if i := strings.IndexAny(base, " \t#"); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	if base == "" {
		base = "http://127.0.0.1:8787"
	}
	base = strings.TrimRight(base, "/")
	return &BridgeVenue{base: base, hc: &http.Client{Timeout: 15 * time.Second}}
}

func (bv *BridgeVenue) Name() string { return "bridge" }

func (bv *BridgeVenue) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(bs)
	}
	req, err := http.NewRequestWithContext(ctx, method, bv.base+path, reader)
	if err != nil {
		return wrapKind(ErrVenueTransient, "new request %s: %v", path, err)
	}
	req.Header.Set("User-Agent", "odinengine/bridge")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := bv.hc.Do(req)
	if err != nil {
		return wrapKind(ErrVenueTransient, "%s: %v", path, err)
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return wrapKind(ErrVenueLogical, "%s %d: %s", path, res.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(b, out)
}

func (bv *BridgeVenue) GetPrice(ctx context.Context, symbol string) (float64, error) {
	var out struct {
		Price string `json:"price"`
	}
	if err := bv.doJSON(ctx, http.MethodGet, "/price/"+url.PathEscape(symbol), nil, &out); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(out.Price, 64)
}

func (bv *BridgeVenue) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	if limit <= 0 {
		limit = 300
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))

	type row struct {
		Start  any `json:"start"`
		Open   any `json:"open"`
		High   any `json:"high"`
		Low    any `json:"low"`
		Close  any `json:"close"`
		Volume any `json:"volume"`
	}
	var rows []row
	if err := bv.doJSON(ctx, http.MethodGet, "/klines?"+q.Encode(), nil, &rows); err != nil {
		return nil, err
	}

	parseF := func(v any) float64 {
		switch t := v.(type) {
		case float64:
			return t
		case string:
			f, _ := strconv.ParseFloat(t, 64)
			return f
		default:
			return 0
		}
	}
	parseT := func(v any) time.Time {
		switch t := v.(type) {
		case string:
			if tt, err := time.Parse(time.RFC3339, t); err == nil {
				return tt
			}
			if sec, err := strconv.ParseInt(t, 10, 64); err == nil {
				return time.Unix(sec, 0).UTC()
			}
		case float64:
			return time.Unix(int64(t), 0).UTC()
		}
		return time.Time{}
	}

	out := make([]Candle, 0, len(rows))
	for _, r := range rows {
		out = append(out, Candle{
			Time: parseT(r.Start), Open: parseF(r.Open), High: parseF(r.High),
			Low: parseF(r.Low), Close: parseF(r.Close), Volume: parseF(r.Volume),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (bv *BridgeVenue) GetBalance(ctx context.Context) (float64, error) {
	var out struct {
		Balance string `json:"balance"`
	}
	if err := bv.doJSON(ctx, http.MethodGet, "/balance", nil, &out); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(out.Balance, 64)
}

func (bv *BridgeVenue) GetPositions(ctx context.Context) ([]VenuePosition, error) {
	var rows []struct {
		Symbol     string  `json:"symbol"`
		Direction  string  `json:"direction"`
		EntryPrice float64 `json:"entry_price,string"`
		Quantity   float64 `json:"quantity,string"`
		Leverage   int     `json:"leverage"`
		UPnL       float64 `json:"unrealized_pnl,string"`
	}
	if err := bv.doJSON(ctx, http.MethodGet, "/positions", nil, &rows); err != nil {
		return nil, err
	}
	out := make([]VenuePosition, 0, len(rows))
	for _, r := range rows {
		dir := DirBullish
		if strings.EqualFold(r.Direction, "short") {
			dir = DirBearish
		}
		out = append(out, VenuePosition{
			Symbol: r.Symbol, Direction: dir, EntryPrice: r.EntryPrice,
			Quantity: r.Quantity, Leverage: r.Leverage, UnrealizedPnL: r.UPnL,
		})
	}
	return out, nil
}

func (bv *BridgeVenue) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	var out struct {
		Rate string `json:"funding_rate"`
	}
	if err := bv.doJSON(ctx, http.MethodGet, "/funding/"+url.PathEscape(symbol), nil, &out); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(out.Rate, 64)
}

func (bv *BridgeVenue) PlaceMarketOrder(ctx context.Context, symbol string, dir Direction, quantity float64) (*PlacedOrder, error) {
	side := SideBuy
	if dir == DirBearish {
		side = SideSell
	}
	body := map[string]any{"symbol": symbol, "side": string(side), "quantity": fmt.Sprintf("%.8f", quantity)}
	var norm struct {
		OrderID  string `json:"order_id"`
		AvgPrice string `json:"avg_price"`
		FilledQty string `json:"filled_qty"`
	}
	if err := bv.doJSON(ctx, http.MethodPost, "/order/market", body, &norm); err != nil {
		return nil, err
	}
	price, _ := strconv.ParseFloat(norm.AvgPrice, 64)
	qty, _ := strconv.ParseFloat(norm.FilledQty, 64)
	return &PlacedOrder{
		ID: firstNonEmpty(norm.OrderID, uuid.New().String()), ProductID: symbol, Side: side,
		Price: price, BaseSize: qty, QuoteSpent: price * qty, CreateTime: time.Now().UTC(), Status: "FILLED",
	}, nil
}

func (bv *BridgeVenue) PlaceLimitOrder(ctx context.Context, symbol string, dir Direction, price, quantity float64, ttl time.Duration) (string, error) {
	side := SideBuy
	if dir == DirBearish {
		side = SideSell
	}
	body := map[string]any{
		"symbol": symbol, "side": string(side),
		"price": fmt.Sprintf("%.8f", price), "quantity": fmt.Sprintf("%.8f", quantity),
		"ttl_seconds": int(ttl.Seconds()),
	}
	var out struct {
		OrderID string `json:"order_id"`
	}
	if err := bv.doJSON(ctx, http.MethodPost, "/order/limit", body, &out); err != nil {
		return "", err
	}
	return out.OrderID, nil
}

func (bv *BridgeVenue) PlaceTPSL(ctx context.Context, symbol string, dir Direction, tpPrice, slPrice, quantity float64) error {
	body := map[string]any{
		"symbol": symbol, "direction": string(dir.String()),
		"take_profit": fmt.Sprintf("%.8f", tpPrice), "stop_loss": fmt.Sprintf("%.8f", slPrice),
		"quantity": fmt.Sprintf("%.8f", quantity),
	}
	return bv.doJSON(ctx, http.MethodPost, "/order/tpsl", body, nil)
}

func (bv *BridgeVenue) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return bv.doJSON(ctx, http.MethodPost, "/order/cancel", map[string]any{"symbol": symbol, "order_id": orderID}, nil)
}

func (bv *BridgeVenue) BulkCancel(ctx context.Context, symbol string) error {
	return bv.doJSON(ctx, http.MethodPost, "/order/bulk_cancel", map[string]any{"symbol": symbol}, nil)
}

func (bv *BridgeVenue) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return bv.doJSON(ctx, http.MethodPost, "/leverage", map[string]any{"symbol": symbol, "leverage": leverage}, nil)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
