// Package telemetry provides logging, tracing and metrics for posbridge.
//
// Structured logging uses zerolog, tracing uses OpenTelemetry with an OTLP
// or stdout exporter, and metrics are exposed for Prometheus.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	logger := tel.Logger.NewComponentLogger("orchestrator").WithCycleID(id)
//	logger.Info("cycle started")
//
// # Spans
//
// A sync cycle produces one cycle.run span with one phase.<name> child per
// phase and one task.<name> span per location:
//
//	ctx, span := tel.Tracer.StartCycleSpan(ctx, cycleID, "sync")
//	defer telemetry.EndSpan(span, err)
//
// # Metrics
//
// All Metrics methods are safe on a nil receiver, so components accept an
// optional *Metrics without guarding each call:
//
//	tel.Metrics.RecordAPICall("backoffice", "success", elapsed)
//	tel.Metrics.RecordLocationResult("inventory", false, "auth")
//
// Metrics are served at ListenAddress + Path (default :9090/metrics).
package telemetry
