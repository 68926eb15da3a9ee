// Package logger provides structured logging using Zap.
package logger

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	sugar atomic.Pointer[zap.SugaredLogger]
	once  sync.Once
)

// Init initializes the global logger for the given environment.
// "production" gets the JSON encoder, anything else the console encoder.
func Init(env string) {
	once.Do(func() {
		var base *zap.Logger
		var err error

		if env == "production" {
			base, err = zap.NewProduction()
		} else {
			base, err = zap.NewDevelopment()
		}
		if err != nil {
			base = zap.NewNop()
		}

		sugar.Store(base.Sugar().With("service", "signalist"))
	})
}

// Get returns the global sugared logger, initializing a development logger
// on first use.
func Get() *zap.SugaredLogger {
	Init("development")
	return sugar.Load()
}

// Set replaces the global logger and returns a func restoring the previous one.
func Set(base *zap.Logger) (restore func()) {
	Init("development")
	prev := sugar.Swap(base.Sugar().With("service", "signalist"))
	return func() { sugar.Store(prev) }
}

// Sync flushes any buffered log entries. Call this before application exit.
func Sync() {
	if s := sugar.Load(); s != nil {
		_ = s.Sync()
	}
}
