// Package logging builds the shared structured logger used across the
// health scheduler, proxy pipeline and admin surface. A single sugared
// zap logger is constructed once by the serve command (internal/cli) and
// passed down as a plain dependency, the same way the teacher threads its
// ServerState and XyRouter into every component instead of reaching for
// package-level globals.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a sugared logger. Verbose enables debug-level output; the
// Health Scheduler uses debug for "continued unhealthy" transitions
// (spec.md §4.2) so operators can turn that noise on only when needed.
func New(verbose bool) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		// zap's own Build() only fails on a malformed config; ours is
		// static, so this is unreachable in practice. Fall back to a
		// no-op logger rather than panicking the daemon over logging.
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}
