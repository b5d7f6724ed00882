// Package observability provides OpenTelemetry tracing and metrics for statekit.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("statekitd"))
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, "authcache.initialize")
//	defer span.End()
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, observability.DefaultMeterConfig("statekitd"))
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewMetrics(observability.Meter("statekit"))
//	metrics.RecordPersistWrite(ctx, "draft_application", nil)
//
// A nil *Metrics is valid and records nothing, so stores can be built
// without any meter wired in.
package observability
