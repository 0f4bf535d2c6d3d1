// Package api hosts the HTTP server, middleware, and handlers of the crawl
// runner. Routes:
//   - POST /api/crawl runs one crawl synchronously and returns its result.
//   - GET /health runs the engine probe (200 "OK" or 503 with diagnostics).
//   - GET /readyz reports whether the workspace is usable.
//   - GET /metrics for Prometheus scraping.
package api
