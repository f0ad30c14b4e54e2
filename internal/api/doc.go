// Package api hosts the HTTP server, middleware, and REST handlers for the
// fileops service. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/operations/{search,delete,list,rename} which stream progress
//     as Server-Sent Events and finish with the result.
//   - POST /v1/operations/{operation_id}/cancel to request cancellation.
//   - GET /v1/operations and /v1/operations/{operation_id} for history.
//   - PUT/GET/DELETE /v1/renamer/files for the renamer selection.
package api
