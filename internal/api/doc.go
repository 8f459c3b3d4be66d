// Package api hosts the operator HTTP server for running crawls. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/queues/{name} for a queue snapshot and its collection sizes.
//   - GET /v1/queues/{name}/results for stored results.
//   - POST /v1/queues/{name}/stop and DELETE /v1/queues/{name} for control.
package api
