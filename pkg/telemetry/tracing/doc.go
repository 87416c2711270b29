// Package tracing provides OpenTelemetry tracing for toolgate.
//
// Spans are exported over OTLP gRPC and sampled by a parent-based trace ID
// ratio sampler. The policy engine accepts the tracer through
// engine.WithTracer and records a "policy.evaluate_tool" span per
// evaluation; the HTTP server wraps each route with HTTPMiddleware so that
// incoming W3C trace context is continued.
//
// # Usage
//
//	tracer, err := tracing.New(&tracing.Config{
//	    Enabled:     true,
//	    Endpoint:    "localhost:4317",
//	    Insecure:    true,
//	    SampleRatio: 0.1,
//	})
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	eng, err := engine.New(cfg, engine.WithTracer(tracer.Tracer()))
//
// When tracing is disabled, New returns a noop tracer and Shutdown does
// nothing.
package tracing
