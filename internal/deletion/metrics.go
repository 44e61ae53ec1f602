package deletion

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/mnemod/internal/deletion"

// Metrics holds deletion metrics.
type Metrics struct {
	meter        metric.Meter
	logger       *zap.Logger
	operations   metric.Int64Counter
	duration     metric.Float64Histogram
	nodesDeleted metric.Int64Counter
}

// NewMetrics creates a Metrics instance for deletion operations.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.operations, err = m.meter.Int64Counter(
		"mnemod.deletion.operations_total",
		metric.WithDescription("Total deletion operations by operation, provenance path, and outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		m.logger.Warn("failed to create operations counter", zap.Error(err))
	}

	m.duration, err = m.meter.Float64Histogram(
		"mnemod.deletion.duration_seconds",
		metric.WithDescription("Duration of deletion operations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.nodesDeleted, err = m.meter.Int64Counter(
		"mnemod.deletion.nodes_deleted_total",
		metric.WithDescription("Total graph nodes removed by deletion operations"),
		metric.WithUnit("{node}"),
	)
	if err != nil {
		m.logger.Warn("failed to create nodes deleted counter", zap.Error(err))
	}
}

// RecordOperation records one deletion operation. The path is the
// provenance classification when known, empty otherwise.
func (m *Metrics) RecordOperation(ctx context.Context, operation, path string, duration time.Duration, nodes int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	}
	if path != "" {
		attrs = append(attrs, attribute.String("path", path))
	}

	if m.operations != nil {
		m.operations.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if nodes > 0 && m.nodesDeleted != nil {
		m.nodesDeleted.Add(ctx, int64(nodes), metric.WithAttributes(attrs...))
	}
}
