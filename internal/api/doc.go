// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/collect to run a collection and reconcile it against the baseline.
//   - POST /v1/detect to run restriction detection.
package api
