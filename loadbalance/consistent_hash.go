package loadbalance

import (
	"ext-bridge/discovery"
	"fmt"
	"hash/crc32"
	"sort"
	"sync"
)

// ConsistentHashBalancer maps a key (usually the project path) onto a hash ring of
// endpoints, so the same project keeps landing on the same extension host while the
// set of hosts is stable. Each endpoint owns replicas virtual nodes to even out the ring.
type ConsistentHashBalancer struct {
	mu       sync.RWMutex
	replicas int
	ring     []uint32                       // Sorted hash values
	nodes    map[uint32]*discovery.Endpoint // Hash value → endpoint
}

// NewConsistentHashBalancer creates a ring with 100 virtual nodes per endpoint.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]*discovery.Endpoint),
	}
}

// Reset replaces the ring contents with endpoints. Used with discovery.Registry.Watch.
func (b *ConsistentHashBalancer) Reset(endpoints []discovery.Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ring = b.ring[:0]
	b.nodes = make(map[uint32]*discovery.Endpoint, len(endpoints)*b.replicas)
	for i := range endpoints {
		b.addLocked(&endpoints[i])
	}
	b.sortLocked()
}

// Add places an endpoint on the ring.
func (b *ConsistentHashBalancer) Add(ep *discovery.Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addLocked(ep)
	b.sortLocked()
}

func (b *ConsistentHashBalancer) addLocked(ep *discovery.Endpoint) {
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", ep.Addr, i)))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = ep
	}
}

func (b *ConsistentHashBalancer) sortLocked() {
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

// PickKey returns the endpoint responsible for key: the first virtual node clockwise
// from the key's hash, wrapping around past the end of the ring.
func (b *ConsistentHashBalancer) PickKey(key string) (*discovery.Endpoint, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.ring) == 0 {
		return nil, ErrNoEndpoints
	}
	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
