// FILE: ordermanager.go
// Package main – Order Manager (C9): position book, signal execution, per-tick exit
// application, and fee accrual. Paper and live modes share one position book keyed by a
// generated position ID, same as the teacher's PlacedOrder/uuid-keyed idiom (broker_paper.go).
//
// Grounded on original_source/odin/execution/order_manager.py: paper_fee_rate 0.0004 default,
// min-notional guard ($10), fee accrual per partial close (this module's Open-Question decision,
// see SPEC_FULL.md), and the paper/live position-book split.
package main

import (
	"context"
	"time"
)

const (
	omDefaultPaperFeeRate = 0.0004
	omMinNotionalUSD      = 10.0
)

// TradeResult is emitted whenever a position (or a slice of one) closes.
type TradeResult struct {
	PositionID string
	Symbol     string
	Direction  Direction
	Quantity   float64
	EntryPrice float64
	ExitPrice  float64
	PnLUSD     float64
	FeesUSD    float64
	Label      string // "early","tp1","tp2","tp3","stop","time"
	ClosedAt   time.Time
}

// ManagedPosition ties together everything the Order Manager tracks for one open position:
// the venue-level fill, the Exit Engine's state machine, and the Sizer's audit trail.
type ManagedPosition struct {
	ID        string
	Symbol    string
	Direction Direction
	TradeType TradeType
	ZoneID    string
	Sizing    SizingResult
	ExitState *PositionExitState
	OpenedAt  time.Time
}

// OrderManager owns the live position book and bridges Sizer -> Venue -> Exit Engine.
type OrderManager struct {
	venue       Venue
	paperFeeRate float64
	exitParams  ExitParams
	positions   map[string]*ManagedPosition
}

func NewOrderManager(venue Venue, exitParams ExitParams) *OrderManager {
	return &OrderManager{
		venue: venue, paperFeeRate: omDefaultPaperFeeRate, exitParams: exitParams,
		positions: map[string]*ManagedPosition{},
	}
}

// ExecuteSignal opens a new position sized by SizingResult, subject to the $10 minimum
// notional guard from spec.md/order_manager.py. Returns the new position ID, or "" if rejected.
func (om *OrderManager) ExecuteSignal(ctx context.Context, symbol string, dir Direction, tradeType TradeType, sizing SizingResult, now time.Time) (string, error) {
	if sizing.TooSmall || sizing.Notional < omMinNotionalUSD {
		logInfo("order manager: rejecting %s, notional $%.2f below minimum", symbol, sizing.Notional)
		return "", nil
	}
	order, err := om.venue.PlaceMarketOrder(ctx, symbol, dir, sizing.Quantity)
	if err != nil {
		return "", wrapKind(ErrVenueTransient, "place market order for %s: %v", symbol, err)
	}
	_ = om.venue.SetLeverage(ctx, symbol, sizing.Leverage)

	id := uuidString()
	mp := &ManagedPosition{
		ID: id, Symbol: symbol, Direction: dir, TradeType: tradeType, ZoneID: sizing.ZoneID,
		Sizing: sizing, OpenedAt: now,
		ExitState: NewPositionExitState(dir, order.Price, sizing.StopPrice, sizing.Quantity, now),
	}
	om.positions[id] = mp
	_ = om.venue.PlaceTPSL(ctx, symbol, dir, 0, sizing.StopPrice, sizing.Quantity)
	return id, nil
}

// ApplyTick runs the Exit Engine against one position and turns any resulting decisions into
// TradeResults. On the paper venue it also reduces or closes the simulated position; no close
// order is sent to any other venue. Fees accrue per partial close (not only at final close),
// per this module's Open-Question decision recorded in SPEC_FULL.md.
func (om *OrderManager) ApplyTick(ctx context.Context, positionID string, price, low, high float64, now time.Time, regime RegimeLabel, atr float64) ([]TradeResult, error) {
	mp, ok := om.positions[positionID]
	if !ok {
		return nil, invariantf("no managed position %s", positionID)
	}
	if mp.ExitState.RemainingQuantity <= 0 {
		return nil, nil
	}

	// Evaluate mutates mp.ExitState.RemainingQuantity in place (decrementing per partial,
	// zeroing on any terminal decision), so each FractionOfRemaining must be applied against
	// a running total that replays the same before-this-decision remaining Evaluate used
	// internally, not the already-mutated post-Evaluate value.
	remaining := mp.ExitState.RemainingQuantity
	decisions := Evaluate(mp.ExitState, om.exitParams, price, low, high, now, regime, atr)
	var results []TradeResult
	for _, d := range decisions {
		if d.Kind == ExitTrailUpdate {
			continue // stop relocation only, no fill
		}
		closedQty := d.FractionOfRemaining * remaining
		if closedQty <= 0 {
			continue
		}
		remaining -= closedQty
		fee := closedQty * d.Price * om.paperFeeRate
		pnl := signedPnL(mp.Direction, mp.ExitState.EntryPrice, closedQty, d.Price) - fee
		results = append(results, TradeResult{
			PositionID: mp.ID, Symbol: mp.Symbol, Direction: mp.Direction,
			Quantity: closedQty, EntryPrice: mp.ExitState.EntryPrice, ExitPrice: d.Price,
			PnLUSD: pnl, FeesUSD: fee, Label: d.Label, ClosedAt: now,
		})
		if pv, ok := om.venue.(*PaperVenue); ok {
			if d.Terminal {
				pv.ClosePosition(mp.Symbol)
			} else {
				pv.ReducePosition(mp.Symbol, closedQty)
			}
		}
	}
	// Zone hit/win tracking (ZoneMemory.RecordHit) is the caller's job: it owns the
	// ZoneMemory reference and knows win/loss from the aggregated TradeResult PnL.
	return results, nil
}

// signedPnL computes (exit-entry)*qty for longs, (entry-exit)*qty for shorts.
func signedPnL(dir Direction, entry, qty, exit float64) float64 {
	if dir == DirBullish {
		return (exit - entry) * qty
	}
	return (entry - exit) * qty
}

// OpenPositionSnapshot returns the Order Manager's own book of positions with remaining
// quantity as OpenPosition, for handing to PortfolioGuard.UpdateState.
func (om *OrderManager) OpenPositionSnapshot() []OpenPosition {
	out := make([]OpenPosition, 0, len(om.positions))
	for _, mp := range om.positions {
		if mp.ExitState.RemainingQuantity <= 0 {
			continue
		}
		dirStr := "long"
		if mp.Direction == DirBearish {
			dirStr = "short"
		}
		out = append(out, OpenPosition{
			Symbol: mp.Symbol, Direction: dirStr,
			RiskUSD:  mp.Sizing.RealizedRiskUSD,
			Notional: mp.ExitState.RemainingQuantity * mp.ExitState.EntryPrice,
			TradeType: mp.TradeType,
		})
	}
	return out
}

// HasPositionForSymbol matches order_manager.py's has_position_for_symbol guard against
// duplicate entries.
func (om *OrderManager) HasPositionForSymbol(symbol string) bool {
	for _, mp := range om.positions {
		if mp.Symbol == symbol && mp.ExitState.RemainingQuantity > 0 {
			return true
		}
	}
	return false
}

func (om *OrderManager) Position(id string) (*ManagedPosition, bool) {
	mp, ok := om.positions[id]
	return mp, ok
}

func (om *OrderManager) OpenCount() int {
	n := 0
	for _, mp := range om.positions {
		if mp.ExitState.RemainingQuantity > 0 {
			n++
		}
	}
	return n
}
