// Package balancer implements provider selection and the provider metrics
// store behind it.
//
// The MetricsCollector keeps per-provider performance metrics in the shared
// store with a short-TTL in-process cache in front of it. The LoadBalancer
// selects a provider from a candidate set using one of six strategies, all
// driven by those metrics. The AutoWeightAdjuster periodically nudges
// provider weights toward better performing backends.
package balancer
