// FILE: metrics.go
// Package main – Prometheus metrics for observability.
//
// Exposes the metrics every component mutates during operation:
//   • odin_equity_usd                      – current account balance (gauge)
//   • odin_orders_total{mode,side}         – orders placed (mode: paper|live)
//   • odin_trades_total{result}            – closed trades by result (win|loss)
//   • odin_exit_reasons_total{reason}      – exits split by Exit Engine label
//   • odin_circuit_breaker_level           – active CircuitBreaker gate level, as a gauge code
//   • odin_guard_denials_total{reason}     – Portfolio Guard rejections by reason
//   • odin_opportunity_score{symbol}       – Regime Classifier per-symbol composite score
//   • odin_zone_memory_count{symbol,kind}  – active Zone Memory entries
//   • odin_ws_ticks_dropped_total          – WS bridge drop-newest counter
//
// Registered in init() and served by the HTTP handler started in main.go at /metrics
// (Prometheus text exposition format), same as the teacher's wiring.
package main

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxEquity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odin_equity_usd",
		Help: "Current account balance in USD.",
	})

	mtxOrders = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odin_orders_total",
		Help: "Orders placed.",
	}, []string{"mode", "side"})

	mtxTrades = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odin_trades_total",
		Help: "Closed trades by result (win|loss).",
	}, []string{"result"})

	mtxExitReasons = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odin_exit_reasons_total",
		Help: "Exits split by Exit Engine label (early|tp1|tp2|tp3|stop|time).",
	}, []string{"reason"})

	mtxCircuitBreakerLevel = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odin_circuit_breaker_level",
		Help: "Active circuit breaker gate: 0=normal,1=soft,2=recovery,3=paused,4=halt.",
	})

	mtxGuardDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odin_guard_denials_total",
		Help: "Portfolio Guard rejections by first-reason.",
	}, []string{"reason"})

	mtxOpportunityScore = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "odin_opportunity_score",
		Help: "Regime Classifier per-symbol composite opportunity score.",
	}, []string{"symbol"})

	mtxZoneMemoryCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "odin_zone_memory_count",
		Help: "Active Zone Memory entries per symbol and kind (ob|fvg).",
	}, []string{"symbol", "kind"})

	wsBridgeDropCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odin_ws_ticks_dropped_total",
		Help: "WS bridge ticks dropped under the drop-newest backpressure policy.",
	})

	botModelMode = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "odin_model_mode",
		Help: "1 for the active analyst model mode (baseline|extended), 0 otherwise.",
	}, []string{"mode"})
)

func init() {
	prometheus.MustRegister(mtxEquity, mtxOrders, mtxTrades, mtxExitReasons)
	prometheus.MustRegister(mtxCircuitBreakerLevel, mtxGuardDenials)
	prometheus.MustRegister(mtxOpportunityScore, mtxZoneMemoryCount)
	prometheus.MustRegister(wsBridgeDropCounter, botModelMode)
}

// SetModelModeMetric flips the active analyst model mode gauge (baseline vs extended).
func SetModelModeMetric(mode string) {
	botModelMode.Reset()
	botModelMode.WithLabelValues(mode).Set(1)
}

func SetEquityMetric(usd float64)                   { mtxEquity.Set(usd) }
func IncOrderMetric(mode, side string)               { mtxOrders.WithLabelValues(mode, side).Inc() }
func IncTradeResultMetric(result string)             { mtxTrades.WithLabelValues(result).Inc() }
func IncExitReasonMetric(reason string)              { mtxExitReasons.WithLabelValues(reason).Inc() }
func SetCircuitBreakerLevelMetric(level int)         { mtxCircuitBreakerLevel.Set(float64(level)) }
func IncGuardDenialMetric(reason string)             { mtxGuardDenials.WithLabelValues(reason).Inc() }
func SetOpportunityScoreMetric(symbol string, v float64) {
	mtxOpportunityScore.WithLabelValues(symbol).Set(v)
}
func SetZoneMemoryCountMetric(symbol, kind string, n int) {
	mtxZoneMemoryCount.WithLabelValues(symbol, kind).Set(float64(n))
}
