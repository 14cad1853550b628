// llm-router is the routing and resilience core for LLM API traffic.
//
// It decides which backend provider and model serve each chat request,
// balances load across providers, trips circuit breakers on failing
// backends, and fails requests over to healthy alternates. A gateway
// switch lets operators disable intelligent routing at runtime with a
// delay, cooldown, and audit trail.
//
// Usage:
//
//	# Start the router with the default configuration
//	llm-router run
//
//	# Start with a custom configuration file
//	llm-router run --config /etc/llm-router/config.yaml
//
//	# Inspect or flip the gateway switch on a running instance
//	llm-router switch status
//	llm-router switch disable --operator ops --reason "provider incident"
//
//	# Show version information
//	llm-router version
package main

func main() {
	Execute()
}
