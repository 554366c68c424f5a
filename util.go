// FILE: util.go
// Package main – small cross-component helpers: id generation and nil-safe log wrappers.
//
// Components are constructed and unit-tested before main() calls initLogging, so every log
// helper here tolerates a nil *sugar (falls back to a no-op) instead of requiring boot order.
package main

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"
)

func uuidString() string { return uuid.New().String() }

// readJSONIfExists loads path into v, returning false if the file is absent or unreadable
// (a missing state file on first boot is normal, not an error).
func readJSONIfExists(path string, v interface{}) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		logWarn("readJSONIfExists %s: %v", path, err)
		return false
	}
	return true
}

func logWarn(format string, args ...interface{}) {
	if sugar != nil {
		sugar.Warnf(format, args...)
	}
}

func logInfo(format string, args ...interface{}) {
	if sugar != nil {
		sugar.Infof(format, args...)
	}
}

func logDebug(format string, args ...interface{}) {
	if sugar != nil {
		sugar.Debugf(format, args...)
	}
}

func logError(format string, args ...interface{}) {
	if sugar != nil {
		sugar.Errorf(format, args...)
	}
}
