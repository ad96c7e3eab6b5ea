// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /scrape to run one indexing pass synchronously.
//   - POST /chat to forward a message to the configured assistant.
//   - GET /runs and /runs/{run_id} for recent run summaries.
package api
