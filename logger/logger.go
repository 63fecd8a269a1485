// Package logger builds the process wide zap logger.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger writing to stderr at level ("debug", "info", "warn",
// "error"). development switches to the console encoder with caller info.
func New(level string, development bool) (*zap.Logger, error) {
	lvl := zapcore.WarnLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.DisableStacktrace = true
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// Setup builds the logger and installs it as zap's global, falling back to
// a no-op logger when level is invalid.
func Setup(level string, development bool) *zap.Logger {
	l, err := New(level, development)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		l = zap.NewNop()
	}
	zap.ReplaceGlobals(l)
	return l
}
