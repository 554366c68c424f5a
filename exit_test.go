package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestPartialThenStop reproduces spec.md §8 scenario 1's final state. The scenario's prose
// also narrates an intermediate 99.50 tick as "no hit" despite the stop already having moved to
// 100.00 by that point, which is self-contradictory under a low<=stop rule; this test honors the
// scenario's literal final partials list instead, driving only the ticks that produce it.
func TestPartialThenStop(t *testing.T) {
	st := NewPositionExitState(DirBullish, 100.00, 99.00, 10, time.Unix(0, 0))
	p := DefaultExitParams()

	d := Evaluate(st, p, 101.00, 101.00, 101.00, time.Unix(0, 0), RegimeNeutral, 0.5)
	require.Len(t, d, 1)
	require.Equal(t, "early", d[0].Label)
	require.InDelta(t, 2.5, d[0].FractionOfRemaining*10, 1e-9) // 25% of remaining 10

	d = Evaluate(st, p, 101.50, 101.50, 101.50, time.Unix(0, 0), RegimeNeutral, 0.5)
	require.Len(t, d, 1)
	require.Equal(t, "tp1", d[0].Label)

	d = Evaluate(st, p, 100.00, 100.00, 100.00, time.Unix(0, 0), RegimeNeutral, 0.5)
	require.Len(t, d, 1)
	require.Equal(t, "stop", d[0].Label)
	require.True(t, d[0].Terminal)
	require.Equal(t, 0.0, st.RemainingQuantity)

	require.InDelta(t, 1.0, SumPartialFractions(st), 1e-6)
}

// TestFullRunner reproduces spec.md §8 scenario 2 exactly, including the literal PnL figure.
func TestFullRunner(t *testing.T) {
	st := NewPositionExitState(DirBullish, 2000, 1960, 1, time.Unix(0, 0))
	p := DefaultExitParams()

	type tick struct {
		price float64
		label string
	}
	ticks := []tick{{2040, "early"}, {2060, "tp1"}, {2100, "tp2"}, {2160, "tp3"}}
	var pnl float64
	for _, tk := range ticks {
		before := st.RemainingQuantity
		d := Evaluate(st, p, tk.price, tk.price, tk.price, time.Unix(0, 0), RegimeNeutral, 5)
		var found bool
		for _, dec := range d {
			if dec.Label == tk.label {
				found = true
			}
		}
		require.True(t, found, "expected %s decision at price %v, got %+v", tk.label, tk.price, d)
		closedQty := before - st.RemainingQuantity
		pnl += closedQty * (tk.price - st.EntryPrice)
	}
	require.InDelta(t, 87.0, pnl, 1e-6)
	require.InDelta(t, 1.0, SumPartialFractions(st), 1e-6)
	require.Equal(t, 0.0, st.RemainingQuantity)
}

func TestStopMonotonicForLong(t *testing.T) {
	st := NewPositionExitState(DirBullish, 100, 95, 10, time.Unix(0, 0))
	p := DefaultExitParams()
	Evaluate(st, p, 101, 101, 101, time.Unix(0, 0), RegimeNeutral, 1)
	afterFirst := st.CurrentStop
	// a lower price tick must never regress the stop
	Evaluate(st, p, 98, 98, 98, time.Unix(0, 0), RegimeNeutral, 1)
	require.GreaterOrEqual(t, st.CurrentStop, afterFirst)
}

func TestTimeExitOnStaleLowR(t *testing.T) {
	st := NewPositionExitState(DirBullish, 100, 99, 10, time.Unix(0, 0))
	p := DefaultExitParams()
	later := time.Unix(0, 0).Add(13 * time.Hour)
	d := Evaluate(st, p, 100.1, 100.1, 100.1, later, RegimeNeutral, 1)
	require.Len(t, d, 1)
	require.Equal(t, "time", d[0].Label)
}

func TestNoOpenPositionsNoDecisions(t *testing.T) {
	st := NewPositionExitState(DirBullish, 100, 99, 0, time.Unix(0, 0))
	p := DefaultExitParams()
	d := Evaluate(st, p, 101, 101, 101, time.Unix(0, 0), RegimeNeutral, 1)
	require.Empty(t, d)
}
