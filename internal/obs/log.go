package obs

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

var (
	loggerMu sync.Mutex
	logger   *zap.Logger
)

// NewLogger builds the service logger. env "development" enables the
// human-readable console encoder; anything else logs JSON to stdout.
func NewLogger(env string) (*zap.Logger, error) {
	if strings.EqualFold(env, "development") {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// Logger returns the shared fallback logger. Packages that are not handed a
// logger explicitly (audit, middleware defaults) log through it.
func Logger() *zap.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		l, err := NewLogger("production")
		if err != nil {
			l = zap.NewNop()
		}
		logger = l
	}
	return logger
}

// SetLogger replaces the shared logger. main calls this once after the
// configured logger is built so every package emits through the same core.
func SetLogger(l *zap.Logger) {
	if l == nil {
		return
	}
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
}
