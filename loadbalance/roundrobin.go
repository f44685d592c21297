package loadbalance

import (
	"errors"
	"ext-bridge/discovery"
	"sync/atomic"
)

// ErrNoEndpoints is returned when there is nothing to pick from.
var ErrNoEndpoints = errors.New("loadbalance: no endpoints available")

// RoundRobinBalancer cycles through the endpoints with a lock-free counter.
type RoundRobinBalancer struct {
	counter atomic.Uint64
}

func (b *RoundRobinBalancer) Pick(endpoints []discovery.Endpoint) (*discovery.Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	index := (b.counter.Add(1) - 1) % uint64(len(endpoints))
	return &endpoints[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
