// FILE: venue_paper.go
// Package main – in-memory paper Venue, adapted from broker_paper.go's no-external-calls idiom
// to the perp-futures surface (positions, leverage, funding rate all simulated locally).
package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PaperVenue simulates fills at the last price it was told about via SetPrice; GetKlines is
// unsupported (paper mode has no market-data feed of its own, matching broker_paper.go).
type PaperVenue struct {
	mu        sync.Mutex
	prices    map[string]float64
	balance   float64
	positions map[string]VenuePosition
	leverage  map[string]int
	funding   map[string]float64
}

func NewPaperVenue(startingBalance float64) *PaperVenue {
	return &PaperVenue{
		prices:    map[string]float64{},
		balance:   startingBalance,
		positions: map[string]VenuePosition{},
		leverage:  map[string]int{},
		funding:   map[string]float64{},
	}
}

func (p *PaperVenue) Name() string { return "paper" }

// SetPrice feeds the simulated market price driving fills and position marks.
func (p *PaperVenue) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

// SetFundingRate feeds a simulated funding rate for FundingArbOpportunity testing.
func (p *PaperVenue) SetFundingRate(symbol string, rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.funding[symbol] = rate
}

func (p *PaperVenue) GetPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[symbol]
	if !ok {
		return 0, errors.New("paper venue has no price for " + symbol)
	}
	return price, nil
}

func (p *PaperVenue) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	return nil, errors.New("paper venue has no candle feed (use a market-data bridge)")
}

func (p *PaperVenue) GetBalance(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

func (p *PaperVenue) GetPositions(ctx context.Context) ([]VenuePosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]VenuePosition, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos)
	}
	return out, nil
}

func (p *PaperVenue) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.funding[symbol], nil
}

func (p *PaperVenue) PlaceMarketOrder(ctx context.Context, symbol string, dir Direction, quantity float64) (*PlacedOrder, error) {
	if quantity <= 0 {
		return nil, errors.New("quantity must be > 0")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[symbol]
	if !ok {
		return nil, errors.New("paper venue has no price for " + symbol)
	}
	side := SideBuy
	if dir == DirBearish {
		side = SideSell
	}
	existing, has := p.positions[symbol]
	if !has {
		p.positions[symbol] = VenuePosition{Symbol: symbol, Direction: dir, EntryPrice: price, Quantity: quantity, Leverage: p.leverage[symbol]}
	} else {
		existing.Quantity += quantity
		p.positions[symbol] = existing
	}
	return &PlacedOrder{
		ID: uuid.New().String(), ProductID: symbol, Side: side,
		Price: price, BaseSize: quantity, QuoteSpent: price * quantity,
		CreateTime: time.Now().UTC(), Status: "FILLED",
	}, nil
}

func (p *PaperVenue) PlaceLimitOrder(ctx context.Context, symbol string, dir Direction, price, quantity float64, ttl time.Duration) (string, error) {
	return "", errors.New("limit orders not supported on paper venue")
}

func (p *PaperVenue) PlaceTPSL(ctx context.Context, symbol string, dir Direction, tpPrice, slPrice, quantity float64) error {
	return nil // the exit engine evaluates TP/SL locally against simulated ticks in paper mode
}

func (p *PaperVenue) CancelOrder(ctx context.Context, symbol, orderID string) error { return nil }

func (p *PaperVenue) BulkCancel(ctx context.Context, symbol string) error { return nil }

func (p *PaperVenue) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leverage[symbol] = leverage
	return nil
}

// ClosePosition removes a paper position entirely (used by the Order Manager on terminal exits).
func (p *PaperVenue) ClosePosition(symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.positions, symbol)
}

// ReducePosition shrinks a paper position's quantity on a partial close.
func (p *PaperVenue) ReducePosition(symbol string, qty float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[symbol]
	if !ok {
		return
	}
	pos.Quantity -= qty
	if pos.Quantity <= 1e-12 {
		delete(p.positions, symbol)
		return
	}
	p.positions[symbol] = pos
}
