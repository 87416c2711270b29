// Package server exposes the policy engine over HTTP so agents that run out
// of process can ask for decisions.
//
// # Routes
//
//	POST /v1/evaluate    evaluate a tool request, returns the Decision
//	POST /v1/after-tool  run after-tool hooks for an executed tool
//	GET  /v1/rules       current approval mode, generation and rules
//	GET  /v1/conflicts   same-priority rule conflicts
//	POST /v1/reload      re-read the policy file (WithReloader)
//	GET  /healthz        liveness (WithHealth)
//	GET  /readyz         readiness (WithHealth)
//	GET  /version        build information (WithHealth)
//	GET  /metrics        Prometheus exposition (WithMetrics)
//
// Errors use a single JSON shape:
//
//	{"error": {"code": "invalid_request", "message": "...", "request_id": "..."}}
//
// # Basic Usage
//
//	eng, _ := engine.NewFromFile("policy.toml")
//	srv := server.New(eng, server.Config{ListenAddress: ":8787"},
//	    server.WithLogger(logger),
//	    server.WithMetrics(collector.Handler()),
//	)
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Start blocks until ctx is cancelled and then drains in-flight requests for
// up to Config.ShutdownTimeout.
package server
