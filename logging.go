// FILE: logging.go
// Package main – structured logging setup.
//
// The engine logs through a package-level SugaredLogger instead of bare `log.Printf`. The
// TRACE/DEBUG breadcrumb convention used throughout this codebase predates this file; it is kept
// as a message prefix so the two remain greppable together in aggregated logs.
package main

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var sugar *zap.SugaredLogger

// initLogging builds the process-wide logger. logLevel is one of the zapcore level names
// ("debug", "info", "warn", "error"); unrecognised values fall back to "info".
func initLogging(logLevel string) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02T15:04:05.000Z0700"))
	}

	lvl := zap.InfoLevel
	_ = lvl.UnmarshalText([]byte(logLevel))
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		// Logging itself failed to initialize; stderr is the only channel left.
		os.Stderr.WriteString("logging: falling back to zap.NewNop: " + err.Error() + "\n")
		logger = zap.NewNop()
	}
	sugar = logger.Sugar()
}

// syncLogging flushes any buffered log entries. Best-effort: zap returns an error syncing
// stderr/stdout on some platforms even when nothing went wrong, so this never aborts shutdown.
func syncLogging() {
	if sugar != nil {
		_ = sugar.Sync()
	}
}
