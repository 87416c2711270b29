// Package middleware provides the HTTP middleware chain for the toolgate
// decision server.
//
// Middleware is applied outermost first:
//
//	handler = middleware.Recovery(logger)(handler)
//	handler = middleware.Logging(logger)(handler)
//	handler = middleware.RequestID(handler)
//	handler = middleware.Identity(handler)
//	handler = middleware.MaxBytes(1 << 20)(handler)
//
// Request, user and session identifiers are stored with the helpers of
// pkg/telemetry/logging so every log record written with the request context
// carries them.
package middleware
