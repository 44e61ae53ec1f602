// internal/logging/context.go
package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mnemod/internal/tenant"
)

// ContextFields returns the correlation fields carried by ctx: active span
// ids and, on routed contexts, the tenant scope. Empty when ctx carries
// neither.
func ContextFields(ctx context.Context) []zap.Field {
	return append(traceFields(ctx), scopeFields(ctx)...)
}

func traceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return nil
	}
	fields := []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
	if sc.IsSampled() {
		fields = append(fields, zap.Bool("trace_sampled", true))
	}
	return fields
}

func scopeFields(ctx context.Context) []zap.Field {
	scope, err := tenant.ScopeFromContext(ctx)
	if err != nil {
		return nil
	}
	fields := []zap.Field{
		zap.String("dataset_id", scope.DatasetID.String()),
		zap.String("owner_id", scope.OwnerID.String()),
	}
	if scope.GraphDatabase != "" {
		fields = append(fields, zap.String("graph_db", scope.GraphDatabase))
	}
	return fields
}

type loggerCtxKey struct{}

// WithLogger stores the logger in ctx for retrieval down the call chain.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a nop logger so callers
// never nil-check.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
