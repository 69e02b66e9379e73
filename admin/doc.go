// Package admin serves the orchestrator status surface over HTTP.
//
// Routes:
//
//	GET /healthz                      liveness, always OK
//	GET /readyz                       200 when started and nothing is unhealthy
//	GET /status/health                health records per instance
//	GET /status/breakers              circuit breaker state per instance
//	GET /status/metrics[?service=id]  error metrics per service
//	GET /status/executions            retained workflow executions
//	GET /status/executions/{id}       one workflow execution
//	GET /metrics                      Prometheus exposition
//
// When a JWT secret is configured every route except /healthz and /readyz
// requires an HMAC-signed bearer token.
package admin
