// Package providers defines the backend client adapter boundary of the
// routing core. A Provider is any service capable of serving chat completion
// requests for one or more models; the routing, balancing, and failover
// packages treat it as an opaque capability.
//
// Concrete HTTP clients for specific vendors live outside this module and
// plug in by implementing the Provider interface. The Registry holds the set
// of adapters the composition root has constructed.
package providers
