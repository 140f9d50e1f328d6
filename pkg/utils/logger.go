package utils

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewSugaredLogger creates a sugared logger based on the verbose flag.
// Verbose loggers use zap's development config at debug level; otherwise a
// production JSON logger at info level is returned.
func NewSugaredLogger(verbose bool) (*zap.SugaredLogger, error) {
	if verbose {
		return NewSugaredLoggerWithLevel("debug")
	}
	return NewSugaredLoggerWithLevel("info")
}

// NewSugaredLoggerWithLevel creates a sugared logger at the named level
// ("debug", "info", "warn", "error"). Debug selects the development encoder.
func NewSugaredLoggerWithLevel(level string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return l.Sugar(), nil
}
