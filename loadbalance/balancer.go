// Package loadbalance chooses one bridge endpoint when discovery returns several.
//
//   - RoundRobin:      spread new sessions evenly
//   - WeightedRandom:  hosts with different capacity
//   - ConsistentHash:  keep a project bound to the same extension host across reconnects
package loadbalance

import "ext-bridge/discovery"

// Balancer selects one endpoint from the available list. Implementations must be goroutine-safe.
type Balancer interface {
	Pick(endpoints []discovery.Endpoint) (*discovery.Endpoint, error)

	// Name returns the strategy name (for logging).
	Name() string
}

// New returns the balancer registered under name, defaulting to round robin.
func New(name string) Balancer {
	switch name {
	case "weighted":
		return &WeightedRandomBalancer{}
	default:
		return &RoundRobinBalancer{}
	}
}
