package loadbalance

import (
	"ext-bridge/discovery"
	"math/rand"
)

// WeightedRandomBalancer picks an endpoint with probability proportional to its Weight.
// Endpoints with a non-positive weight count as weight 1.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(endpoints []discovery.Endpoint) (*discovery.Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	totalWeight := 0
	for _, ep := range endpoints {
		totalWeight += weightOf(ep)
	}

	r := rand.Intn(totalWeight)
	for i := range endpoints {
		r -= weightOf(endpoints[i])
		if r < 0 {
			return &endpoints[i], nil
		}
	}
	return &endpoints[len(endpoints)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}

func weightOf(ep discovery.Endpoint) int {
	if ep.Weight <= 0 {
		return 1
	}
	return ep.Weight
}
