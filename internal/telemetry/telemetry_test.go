package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNew_Disabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = false

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, tel)

	assert.False(t, tel.IsEnabled())

	health := tel.Health()
	assert.True(t, health.Healthy)
	assert.False(t, health.Degraded)

	// Disabled telemetry still hands out usable no-op instruments.
	tracer := tel.Tracer("test")
	_, span := tracer.Start(context.Background(), "noop-span")
	span.End()

	meter := tel.Meter("test")
	counter, err := meter.Int64Counter("noop.counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestShutdown_NilSafe(t *testing.T) {
	var tel *Telemetry
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.False(t, tel.IsEnabled())

	health := tel.Health()
	assert.False(t, health.Healthy)
	assert.True(t, health.Degraded)
}

func TestShutdown_MarksUnhealthy(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = false

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)

	require.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.Health().Healthy)
}

func TestLoggerProvider_RoundTrip(t *testing.T) {
	cfg := NewDefaultConfig()
	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)

	assert.Nil(t, tel.LoggerProvider())
	tel.SetLoggerProvider(nil)
	assert.Nil(t, tel.LoggerProvider())
}

func TestTestTelemetry_RecordsSpans(t *testing.T) {
	tt := NewTestTelemetry()

	tracer := tt.Tracer("mnemod.test")
	_, span := tracer.Start(context.Background(), "delete-document")
	span.SetAttributes(attribute.String("dataset_id", "abc"))
	span.End()

	tt.AssertSpanExists(t, "delete-document")
	tt.AssertSpanAttribute(t, "delete-document", "dataset_id", "abc")
	assert.Nil(t, tt.SpanByName("never-started"))
}

func TestTestTelemetry_CollectsMetrics(t *testing.T) {
	tt := NewTestTelemetry()

	meter := tt.Meter("mnemod.test")
	counter, err := meter.Int64Counter("documents.deleted")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	require.NoError(t, tt.MetricReader.ForceFlush(context.Background()))

	metrics := tt.MetricReader.Metrics()
	require.Len(t, metrics, 1)
	require.Len(t, metrics[0].ScopeMetrics, 1)
	assert.Equal(t, "documents.deleted", metrics[0].ScopeMetrics[0].Metrics[0].Name)
}
