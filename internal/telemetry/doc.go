// Package telemetry wires OpenTelemetry tracing and metrics into mnemod.
//
// Deletion and prune runs emit one span per operation plus counters for
// documents and nodes removed. Export goes to an OTLP collector, gRPC by
// default, http/protobuf for collectors that only speak HTTPS.
//
// # Lifecycle
//
// mnemod processes are short-lived commands, not servers. The batch span
// processor and periodic metric reader buffer in memory, so the final (often
// only) export happens inside Shutdown; skipping it silently drops the run's
// telemetry:
//
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	tracer := tel.Tracer("mnemod.deletion")
//	ctx, span := tracer.Start(ctx, "DeleteData")
//	defer span.End()
//
// Shutdown applies the configured timeout when the context has none, so an
// unreachable collector delays exit by a few seconds at most.
//
// # Degraded mode
//
// A collector that is down must not block a delete. When an exporter fails
// to initialize, New still returns a working instance: the broken signal
// falls back to no-op instruments and Health reports the reason, e.g.
//
//	if h := tel.Health(); h.Degraded {
//	    logger.Warn(ctx, "telemetry degraded", zap.String("reason", h.Reason))
//	}
//
// Only a config error (Validate failing) makes New return an error.
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  service_name: "mnemod"
//	  sampling:
//	    rate: 1.0
//	  metrics:
//	    enabled: true
//	    export_interval: "15s"
//
// Export is disabled by default. Insecure (plaintext) endpoints are refused
// unless they are loopback.
//
// # Testing
//
// NewTestTelemetry swaps the exporters for in-memory recorders:
//
//	tt := telemetry.NewTestTelemetry()
//	_, span := tt.Tracer("test").Start(ctx, "DeleteData")
//	span.End()
//	tt.AssertSpanExists(t, "DeleteData")
package telemetry
