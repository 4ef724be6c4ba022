// Package api hosts the HTTP server, middleware, and handlers for job
// submission and retrieval. Notable routes:
//   - POST /start to submit a source reference.
//   - GET /progress/{id} for percent complete.
//   - GET /download/{id} for the assembled text.
//   - GET /v1/jobs/{id} for the job state.
//   - GET /healthz, /readyz and /metrics for probes and Prometheus.
package api
