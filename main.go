// FILE: main.go
// Package main – Program entrypoint: wires Config, every risk/execution component, and the
// Scheduler's cooperative event loop, then serves Prometheus metrics until shutdown.
//
// Boot sequence:
//   1) loadBotEnv()                – read .env (no shell exports required)
//   2) initThresholdsFromEnv()     – tune the local-fallback analyst's BUY/SELL thresholds
//   3) cfg := loadConfigFromEnv()  – build the full runtime Config (spec.md §6)
//   4) initLogging(...)            – structured logging
//   5) wire Venue -> ZoneMemory -> Sizer -> CircuitBreaker -> PortfolioGuard -> OrderManager
//      -> Analyst -> CoinglassFeed (if COINGLASS_API_KEY is set) -> Scheduler
//   6) start Prometheus /metrics and /healthz on cfg.Port
//   7) run the Scheduler until SIGINT/SIGTERM, then flush state and exit
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	loadBotEnv()
	initThresholdsFromEnv()
	cfg := loadConfigFromEnv()

	initLogging(getEnv("LOG_LEVEL", "info"))
	defer syncLogging()

	if cfg.Extended().ModelMode == ModelModeExtended {
		SetModelModeMetric("extended")
	} else {
		SetModelModeMetric("baseline")
	}

	venue := wireVenue(cfg)

	zones := NewZoneMemory(filepath.Join(cfg.StateDir, "zones.json"))
	sizer := NewSizer(zones)
	cb := NewCircuitBreaker(cfg.USDEquity, filepath.Join(cfg.StateDir, "circuit_breaker.json"))
	guard := NewPortfolioGuard(cfg.PortfolioGuardConfig(), filepath.Join(cfg.StateDir, "portfolio_blacklist.json"))
	om := NewOrderManager(venue, cfg.ExitParams())
	ws := NewWSBridge(cfg.WSURL, wsBridgeDefaultCapacity)

	analyst := Analyst(&LocalAnalystAdapter{
		Inner: NewLocalFallbackAnalyst(), BuyThreshold: buyThreshold, SellThreshold: sellThreshold,
	})

	var deriv DerivativesFeed
	if cfg.CoinglassAPIKey != "" {
		deriv = NewCoinglassFeed(cfg.CoinglassAPIKey, venue)
	}

	sched := NewScheduler(SchedulerConfig{
		CycleInterval:      time.Duration(cfg.CycleSeconds) * time.Second,
		ScalpCycleInterval: time.Duration(cfg.ScalpCycleSeconds) * time.Second,
		RegimeRefresh:      time.Duration(cfg.MacroPollSeconds) * time.Second,
		HealthReportEvery:  30 * time.Minute,
		ExitEvalThrottle:   2 * time.Second,
		WSStaleThreshold:   30 * time.Second,
		RestFallbackPoll:   10 * time.Second,
		CalibrationWeekday: cfg.CalibrationReviewWeekday,
		CalibrationHour:    cfg.CalibrationReviewHour,
		KillSwitchPath:     cfg.KillSwitchPath,
		OpportunityFloor:   65,
		MoveFloorPct:       15,
		Universe:           defaultUniverse(cfg.ProductID),
	}, venue, analyst, cfg.AnalystValidationConfig(), zones, sizer, cfg.ExitParams(), cb, guard, om, ws, deriv)

	if cfg.WSEnabled {
		go runWSBridgeWithReconnect(context.Background(), ws)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}
	go func() {
		logInfo("serving metrics on :%d/metrics", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logError("metrics server: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := sched.Run(ctx); err != nil {
		logError("scheduler: fatal invariant violation: %v", err)
		shutdown(srv)
		os.Exit(1)
	}
	shutdown(srv)
}

func shutdown(srv *http.Server) {
	shutdownCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
	defer c()
	_ = srv.Shutdown(shutdownCtx)
}

// wireVenue picks the execution backend: the paper simulator in dry-run, or the bridge sidecar
// otherwise, matching the teacher's broker-selection idiom in spirit (BRIDGE_URL / dry-run
// switch) but against the wider perp-futures Venue interface.
func wireVenue(cfg Config) Venue {
	if cfg.DryRun {
		pv := NewPaperVenue(cfg.USDEquity)
		return pv
	}
	return NewBridgeVenue(cfg.BridgeURL)
}

// runWSBridgeWithReconnect retries Run with a fixed backoff, per spec.md §7's "WS reconnection
// is automatic with a minimum delay between attempts".
func runWSBridgeWithReconnect(ctx context.Context, ws *WSBridge) {
	const minDelay = 3 * time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		if err := ws.Run(ctx); err != nil && ctx.Err() == nil {
			logWarn("ws bridge: %v, reconnecting in %s", err, minDelay)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(minDelay):
		}
	}
}

// defaultUniverse seeds the tradeable universe from the configured product plus the standard
// major/mid tier coins (portfolioguard.go), so the Scheduler's rotation has something to scan
// even before an external universe source is wired in.
func defaultUniverse(productID string) []string {
	universe := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT", "BNBUSDT", "DOGEUSDT", "ADAUSDT", "AVAXUSDT", "LINKUSDT", "DOTUSDT"}
	for _, s := range universe {
		if s == productID {
			return universe
		}
	}
	return append([]string{productID}, universe...)
}
