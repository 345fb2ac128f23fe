// Package logging wires the process-wide structured logger. Logging is a
// thin, deliberately out-of-scope collaborator per spec.md §1 — this is the
// whole package: construct once in main, pass the *zap.Logger to the
// reactor and the handler by reference.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a console-encoded logger at the requested level. Accepted
// levels: debug, info, warn, error.
func New(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.Set(level); err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	return cfg.Build()
}
