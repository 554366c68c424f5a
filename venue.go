// FILE: venue.go
// Package main – Venue abstraction (C9): the minimal surface the Order Manager needs from a
// perpetual-futures execution backend, paper or live.
//
// Generalized from the teacher's Broker interface (broker.go): same shape (name/price/candles/
// balance query, market+limit order placement, cancel), widened to perp-futures concerns the
// spot Broker never had — positions, leverage, funding rate, and TP/SL attachment — per
// spec.md §4.11's abstract venue operation list.
package main

import (
	"context"
	"time"
)

// VenuePosition mirrors what a perp exchange reports for one open position.
type VenuePosition struct {
	Symbol        string
	Direction     Direction
	EntryPrice    float64
	Quantity      float64
	Leverage      int
	UnrealizedPnL float64
}

// Venue is the abstract execution backend. Every method takes a context so live
// implementations can honor caller cancellation/timeouts; paper implementations ignore it.
type Venue interface {
	Name() string

	GetPrice(ctx context.Context, symbol string) (float64, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	GetBalance(ctx context.Context) (float64, error)
	GetPositions(ctx context.Context) ([]VenuePosition, error)
	GetFundingRate(ctx context.Context, symbol string) (float64, error)

	PlaceMarketOrder(ctx context.Context, symbol string, dir Direction, quantity float64) (*PlacedOrder, error)
	PlaceLimitOrder(ctx context.Context, symbol string, dir Direction, price, quantity float64, ttl time.Duration) (orderID string, err error)
	PlaceTPSL(ctx context.Context, symbol string, dir Direction, tpPrice, slPrice, quantity float64) error
	CancelOrder(ctx context.Context, symbol, orderID string) error
	BulkCancel(ctx context.Context, symbol string) error
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}
