// internal/logging/logger.go

// Package logging is the zap wrapper used across mnemod. Log methods take a
// context.Context and stamp each entry with the active trace ids and tenant
// scope, so a deletion run can be followed across stores without call sites
// threading those fields by hand.
package logging

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a zap.Logger plus context field extraction.
type Logger struct {
	zap    *zap.Logger
	config *Config
}

// NewLogger builds a logger from config. Pass a nil provider to skip the
// OTEL log bridge.
func NewLogger(cfg *Config, otelProvider log.LoggerProvider) (*Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	core, err := newOutputCore(cfg, otelProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create core: %w", err)
	}

	var opts []zap.Option
	if cfg.Caller.Enabled {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(cfg.Caller.Skip))
	}
	if cfg.Stacktrace.Level != 0 {
		opts = append(opts, zap.AddStacktrace(cfg.Stacktrace.Level))
	}

	zl := zap.New(core, opts...)
	for k, v := range cfg.Fields {
		zl = zl.With(zap.String(k, v))
	}

	return &Logger{zap: zl, config: cfg}, nil
}

// NewNop returns a logger that discards everything. Constructors fall back
// to it when the caller injects nil.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	l.zap.Debug(msg, withContext(ctx, fields)...)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...zap.Field) {
	l.zap.Info(msg, withContext(ctx, fields)...)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	l.zap.Warn(msg, withContext(ctx, fields)...)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...zap.Field) {
	l.zap.Error(msg, withContext(ctx, fields)...)
}

// withContext prepends the context-derived fields so explicit fields win
// visually in the output, last key wins in aggregators either way.
func withContext(ctx context.Context, fields []zap.Field) []zap.Field {
	return append(ContextFields(ctx), fields...)
}

// With returns a child logger carrying the extra fields on every entry.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{zap: l.zap.With(fields...), config: l.config}
}

// Named returns a child logger with name appended to the logger path.
func (l *Logger) Named(name string) *Logger {
	return &Logger{zap: l.zap.Named(name), config: l.config}
}

// Enabled reports whether entries at level would be written.
func (l *Logger) Enabled(level zapcore.Level) bool {
	return l.zap.Core().Enabled(level)
}

// Sync flushes buffered entries. EINVAL and ENOTTY from syncing a terminal
// or pipe are swallowed; Linux returns them for stdout and they carry no
// information.
func (l *Logger) Sync() error {
	err := l.zap.Sync()
	if err != nil && isTerminalSyncError(err) {
		return nil
	}
	return err
}

// Underlying exposes the wrapped *zap.Logger for libraries that take one
// directly, gorm and the store drivers among them.
func (l *Logger) Underlying() *zap.Logger {
	return l.zap
}

func isTerminalSyncError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EINVAL || errno == syscall.ENOTTY
	}
	return false
}
