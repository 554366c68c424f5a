// FILE: candle.go
// Package main – Candle primitive and resampling (C1).
//
// Candle is the normalized OHLCV row every other component consumes. It is immutable once
// produced: nobody mutates a Candle in place, callers build a new slice when they need a
// different view (e.g. Resample).
package main

import "time"

// Candle is an immutable OHLCV record for one bar of a given Interval.
type Candle struct {
	Time     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Interval string // e.g. "15m", "4H", "1D" — matches the venue's granularity vocabulary
}

// Resample folds N contiguous source candles into one target candle per spec.md §4.1:
// open = first.open, high = max, low = min, close = last.close, volume = sum. Incomplete
// trailing groups (fewer than n leftover candles) are discarded, not padded.
func Resample(c []Candle, n int, outInterval string) []Candle {
	if n <= 0 || len(c) < n {
		return nil
	}
	groups := len(c) / n
	out := make([]Candle, 0, groups)
	for g := 0; g < groups; g++ {
		slice := c[g*n : g*n+n]
		cand := Candle{
			Time:     slice[0].Time,
			Open:     slice[0].Open,
			Close:    slice[n-1].Close,
			Interval: outInterval,
		}
		cand.High = slice[0].High
		cand.Low = slice[0].Low
		for _, bar := range slice {
			if bar.High > cand.High {
				cand.High = bar.High
			}
			if bar.Low < cand.Low {
				cand.Low = bar.Low
			}
			cand.Volume += bar.Volume
		}
		out = append(out, cand)
	}
	return out
}
