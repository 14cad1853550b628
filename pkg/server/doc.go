// Package server provides the diagnostic HTTP server: Prometheus metrics,
// liveness, and the gateway switch admin surface.
//
// The server is deliberately small. Chat traffic does not flow through it;
// the routing engine is driven programmatically by whatever fronts this
// module. The endpoints are:
//
//	GET    /metrics          Prometheus scrape endpoint
//	GET    /healthz          liveness plus provider health summary
//	GET    /switch           current switch status and counters
//	POST   /switch           toggle the switch (JSON body)
//	DELETE /switch           cancel a pending toggle
//	GET    /switch/history   recent toggle history
//	POST   /routing/preview  dry-run the routing decision for a request
//	GET    /decisions        recent audit records
package server
