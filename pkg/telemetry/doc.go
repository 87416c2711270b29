// Package telemetry groups toolgate's observability packages.
//
//   - logging: slog logger construction and request-scoped fields
//   - metrics: Prometheus collector for policy decisions and operations
//   - tracing: OpenTelemetry tracer with OTLP export
//   - health: liveness and readiness endpoints
//
// Each subpackage is configured from the telemetry section of the
// application config and wired together by the serve command.
package telemetry
