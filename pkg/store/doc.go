// Package store provides the shared key-value store used for cross-process
// visibility of routing state: provider metrics, switch state, circuit
// breaker states, and bounded history lists.
//
// Two implementations are provided: RedisStore for multi-instance
// deployments, and MemoryStore for single-instance deployments and tests.
// Values carry a TTL; expired entries simply disappear and consumers
// recompute them from defaults on the next read.
package store
