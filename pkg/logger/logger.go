// Package logger builds the structured logger every archive subsystem
// shares. A single zap.SugaredLogger instance is threaded through the
// archive and the public Instance rather than each constructing its own,
// so that every log line carries the same service field and output
// configuration.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.SugaredLogger tagged with the given service name.
// Development builds (non-production) get human-readable console output
// at debug level; production builds get JSON output at info level, the
// standard split for operational logs versus local debugging.
func New(service string, production bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewDevelopmentConfig()
	if production {
		cfg = zap.NewProductionConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return base.With(zap.String("service", service)).Sugar(), nil
}

// Noop returns a logger that discards everything written to it, for tests
// and callers that don't want archive operations to produce output.
func Noop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
