// FILE: zonememory.go
// Package main – Zone Memory (C4): persistent OB/FVG store with mitigation and hit statistics.
//
// Keyed by (symbol, timeframe, kind, direction, price_level) exactly as
// original_source/odin/skills/ob_memory.py keys its SQLite table, but persisted as flat JSON
// with the teacher's tmp-then-rename idiom (trader.go's saveState/loadState) rather than SQLite,
// per spec.md §6's uniform "atomic tmp-then-rename" persisted-state contract — see DESIGN.md.
package main

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ZoneKind distinguishes an Order Block zone from a Fair Value Gap zone.
type ZoneKind string

const (
	ZoneKindOB  ZoneKind = "OB"
	ZoneKindFVG ZoneKind = "FVG"
)

// Zone is the persistent record for one OB/FVG, per spec.md §3.
type Zone struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	Kind       ZoneKind  `json:"kind"`
	Direction  Direction `json:"direction"`
	Top        float64   `json:"top"`
	Bottom     float64   `json:"bottom"`
	PriceLevel float64   `json:"price_level"`
	Strength   float64   `json:"strength"`
	DetectedAt int64     `json:"detected_at"` // unix seconds
	Mitigated  bool      `json:"mitigated"`
	HitCount   int       `json:"hit_count"`
	WinCount   int       `json:"win_count"`
}

// HitRate returns the win percentage, 0 if the zone has never been hit.
func (z Zone) HitRate() float64 {
	if z.HitCount == 0 {
		return 0
	}
	return float64(z.WinCount) / float64(z.HitCount) * 100
}

type zoneKey struct {
	symbol, timeframe string
	kind              ZoneKind
	direction         Direction
	priceLevel        float64
}

// ZoneMemory is the shared-read, single-writer-per-key zone store. It is safe for concurrent
// use: one RWMutex guards the in-memory map, I/O (persistence) happens outside the critical
// section exactly as the teacher releases its broker-call locks in step.go.
type ZoneMemory struct {
	mu    sync.RWMutex
	zones map[zoneKey]*Zone
	path  string
}

// NewZoneMemory opens (or creates) the zone store at path, loading any persisted state.
func NewZoneMemory(path string) *ZoneMemory {
	zm := &ZoneMemory{zones: make(map[zoneKey]*Zone), path: path}
	zm.load()
	return zm
}

func keyOf(z *Zone) zoneKey {
	return zoneKey{z.Symbol, z.Timeframe, z.Kind, z.Direction, roundPrice(z.PriceLevel)}
}

// roundPrice collapses floating noise so near-identical price levels hash to the same key.
func roundPrice(p float64) float64 {
	return math.Round(p*1e6) / 1e6
}

// Upsert inserts or updates a zone keyed by (symbol, timeframe, kind, direction, price_level),
// keeping the maximum strength seen (spec.md §4.4, §8's "Upserting the same zone twice with the
// same key produces one record, strength becomes max"). Returns the stored zone.
func (zm *ZoneMemory) Upsert(z Zone) Zone {
	zm.mu.Lock()
	k := keyOf(&z)
	existing, ok := zm.zones[k]
	if !ok {
		if z.ID == "" {
			z.ID = uuidString()
		}
		stored := z
		zm.zones[k] = &stored
		zm.mu.Unlock()
		zm.persist()
		return stored
	}
	if z.Strength > existing.Strength {
		existing.Strength = z.Strength
	}
	existing.Top = z.Top
	existing.Bottom = z.Bottom
	existing.Mitigated = z.Mitigated
	result := *existing
	zm.mu.Unlock()
	zm.persist()
	return result
}

// MarkMitigated flips a zone's mitigated flag. The record persists for statistics afterward
// (spec.md §3: "lifecycle ends when mitigated ... but the record persists for statistics").
func (zm *ZoneMemory) MarkMitigated(id string) {
	zm.mu.Lock()
	for _, z := range zm.zones {
		if z.ID == id {
			z.Mitigated = true
			break
		}
	}
	zm.mu.Unlock()
	zm.persist()
}

// RecordHit increments a zone's hit/win counters when a trade anchored on it closes.
func (zm *ZoneMemory) RecordHit(id string, win bool) {
	zm.mu.Lock()
	for _, z := range zm.zones {
		if z.ID == id {
			z.HitCount++
			if win {
				z.WinCount++
			}
			break
		}
	}
	zm.mu.Unlock()
	zm.persist()
}

// ActiveZones returns unmitigated zones for a symbol within [lowPrice, highPrice], sorted by
// strength descending. Pass math.Inf(-1)/math.Inf(1) for an unbounded band.
func (zm *ZoneMemory) ActiveZones(symbol string, lowPrice, highPrice float64) []Zone {
	zm.mu.RLock()
	defer zm.mu.RUnlock()
	var out []Zone
	for _, z := range zm.zones {
		if z.Symbol != symbol || z.Mitigated {
			continue
		}
		if z.Bottom > highPrice || z.Top < lowPrice {
			continue
		}
		out = append(out, *z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strength > out[j].Strength })
	return out
}

// HistoricalZones returns up to limit zones (including mitigated) for a symbol, newest first.
func (zm *ZoneMemory) HistoricalZones(symbol string, limit int) []Zone {
	zm.mu.RLock()
	defer zm.mu.RUnlock()
	var out []Zone
	for _, z := range zm.zones {
		if z.Symbol == symbol {
			out = append(out, *z)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt > out[j].DetectedAt })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// RevisitPrediction is one scored candidate from PredictRevisits.
type RevisitPrediction struct {
	Zone        Zone
	DistancePct float64
	Probability float64
}

// PredictRevisits implements spec.md §4.4's revisit-probability formula:
// 0.4*(strength/100) + 0.35*(1-distance/radius) + 0.25*historical_hit_rate, restricted to zones
// within radiusPct of currentPrice. historical_hit_rate uses the zone's own hit rate once it has
// at least 3 hits, else a neutral 0.5 prior (original_source/odin/skills/ob_memory.py).
func (zm *ZoneMemory) PredictRevisits(symbol string, currentPrice, radiusPct float64) []RevisitPrediction {
	low := currentPrice * (1 - radiusPct)
	high := currentPrice * (1 + radiusPct)
	zones := zm.ActiveZones(symbol, low, high)

	out := make([]RevisitPrediction, 0, len(zones))
	for _, z := range zones {
		distPct := math.Abs(z.PriceLevel-currentPrice) / currentPrice
		proximity := math.Max(0, 1-distPct/radiusPct)
		history := 0.5
		if z.HitCount >= 3 {
			history = z.HitRate() / 100
		}
		prob := (z.Strength/100*0.4 + proximity*0.35 + history*0.25) * 100
		out = append(out, RevisitPrediction{Zone: z, DistancePct: distPct, Probability: prob})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Probability > out[j].Probability })
	if len(out) > 10 {
		out = out[:10]
	}
	return out
}

// ZoneMemoryStats mirrors original_source/odin/skills/ob_memory.py::get_stats.
type ZoneMemoryStats struct {
	TotalZones      int
	ActiveZones     int
	TotalHits       int
	OverallHitRate  float64
}

func (zm *ZoneMemory) Stats() ZoneMemoryStats {
	zm.mu.RLock()
	defer zm.mu.RUnlock()
	var s ZoneMemoryStats
	var wins int
	for _, z := range zm.zones {
		s.TotalZones++
		if !z.Mitigated {
			s.ActiveZones++
		}
		s.TotalHits += z.HitCount
		wins += z.WinCount
	}
	if s.TotalHits > 0 {
		s.OverallHitRate = float64(wins) / float64(s.TotalHits) * 100
	}
	return s
}

// persistedZoneMemory is the on-disk shape.
type persistedZoneMemory struct {
	Zones []Zone `json:"zones"`
}

func (zm *ZoneMemory) persist() {
	if zm.path == "" {
		return
	}
	zm.mu.RLock()
	snap := make([]Zone, 0, len(zm.zones))
	for _, z := range zm.zones {
		snap = append(snap, *z)
	}
	zm.mu.RUnlock()
	if err := atomicWriteJSON(zm.path, persistedZoneMemory{Zones: snap}); err != nil {
		logWarn("zonememory persist failed: %v", err)
	}
}

func (zm *ZoneMemory) load() {
	if zm.path == "" {
		return
	}
	data, err := os.ReadFile(zm.path)
	if err != nil {
		return
	}
	var p persistedZoneMemory
	if err := json.Unmarshal(data, &p); err != nil {
		logWarn("zonememory load failed: %v", err)
		return
	}
	for i := range p.Zones {
		z := p.Zones[i]
		zm.zones[keyOf(&z)] = &z
	}
}

// atomicWriteJSON writes v to path via a tmp file in the same directory then renames over the
// target, the teacher's saveState idiom (trader.go) generalized to every persisted store.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
