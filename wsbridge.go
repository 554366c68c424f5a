// FILE: wsbridge.go
// Package main – Scheduler (C10) companion: a bounded WebSocket tick bridge.
//
// Subscribes to a venue's mid-price tick stream (gorilla/websocket) and republishes ticks on a
// bounded Go channel. Per spec.md §9's resolved open question, the bridge uses a drop-newest
// policy when the channel is full: a slow consumer loses the newest tick rather than blocking
// the reader goroutine, since a perp-futures exit check only needs the latest price, not every
// intermediate one.
package main

import (
	"context"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const wsBridgeDefaultCapacity = 5000

// TickEvent is one price/fill/order-update event from the venue's WS feed.
type TickEvent struct {
	Symbol string
	Price  float64
	At     time.Time
	Kind   string // "tick", "fill", "order_update"
}

// WSBridge owns the WebSocket connection and republishes ticks on a bounded channel.
type WSBridge struct {
	url      string
	ticks    chan TickEvent
	dropped  int64
	lastSeen atomic.Value // time.Time
}

func NewWSBridge(wsURL string, capacity int) *WSBridge {
	if capacity <= 0 {
		capacity = wsBridgeDefaultCapacity
	}
	wb := &WSBridge{url: wsURL, ticks: make(chan TickEvent, capacity)}
	wb.lastSeen.Store(time.Time{})
	return wb
}

// Ticks exposes the read side of the bounded channel to the Scheduler.
func (wb *WSBridge) Ticks() <-chan TickEvent { return wb.ticks }

// Dropped returns the drop-newest counter, for the /metrics exposition.
func (wb *WSBridge) Dropped() int64 { return atomic.LoadInt64(&wb.dropped) }

// StaleFor reports how long it has been since the last tick was received, for the Scheduler's
// fallback-to-REST staleness check.
func (wb *WSBridge) StaleFor(now time.Time) time.Duration {
	last, _ := wb.lastSeen.Load().(time.Time)
	if last.IsZero() {
		return 0
	}
	return now.Sub(last)
}

// publish applies the drop-newest policy: if the channel is full the new tick is discarded,
// not the oldest already-queued one.
func (wb *WSBridge) publish(ev TickEvent) {
	wb.lastSeen.Store(ev.At)
	select {
	case wb.ticks <- ev:
	default:
		atomic.AddInt64(&wb.dropped, 1)
		wsBridgeDropCounter.Inc()
	}
}

// Run connects and reads frames until ctx is cancelled or the connection errors; callers
// typically retry Run in a loop with backoff (main.go's runWSBridgeWithReconnect owns that policy).
func (wb *WSBridge) Run(ctx context.Context) error {
	u, err := url.Parse(wb.url)
	if err != nil {
		return wrapKind(ErrVenueLogical, "invalid ws url %q: %v", wb.url, err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return wrapKind(ErrVenueTransient, "ws dial %s: %v", wb.url, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var raw struct {
			Symbol string  `json:"symbol"`
			Price  float64 `json:"price,string"`
			Kind   string  `json:"type"`
		}
		if err := conn.ReadJSON(&raw); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return wrapKind(ErrVenueTransient, "ws read: %v", err)
		}
		if raw.Kind == "" {
			raw.Kind = "tick"
		}
		wb.publish(TickEvent{Symbol: raw.Symbol, Price: raw.Price, At: time.Now().UTC(), Kind: raw.Kind})
	}
}
