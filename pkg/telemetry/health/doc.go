// Package health provides liveness and readiness endpoints for the toolgate
// server.
//
// # Endpoints
//
//   - /healthz: liveness, 200 while the process runs
//   - /readyz: readiness, 200 when every registered check passes, 503 otherwise
//   - /version: build information
//
// # Usage
//
//	checker := health.New(2 * time.Second)
//	checker.Register("analytics", func(ctx context.Context) error {
//	    _, err := store.Count(ctx, &analytics.Query{})
//	    return err
//	})
//	checker.Mount(mux, version, commit, buildTime)
//
// Checks run concurrently, each bounded by the checker's timeout. A check
// that overruns is reported unhealthy with ErrCheckTimeout.
package health
