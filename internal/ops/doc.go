// Package ops implements the operational HTTP server for mqttscope.
//
// This package provides:
//   - A liveness endpoint for load balancers and process supervisors
//   - A JSON stats snapshot covering the broker connection and the
//     ingestion pipeline
//   - The Prometheus scrape endpoint
//   - Middleware stack (request ID, logging, recovery)
//
// The server is deliberately separate from any user-facing surface: it binds
// its own listener, carries no authentication, and is expected to sit on a
// loopback or management network. It follows the same lifecycle pattern as
// the other infrastructure components:
//
//	server, err := ops.New(deps)
//	server.Start()
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package ops
