package loadbalance

import (
	"ext-bridge/discovery"
	"fmt"
	"testing"
)

var testEndpoints = []discovery.Endpoint{
	{Addr: ":8001", Weight: 10, Version: "1.0.0"},
	{Addr: ":8002", Weight: 5, Version: "1.0.0"},
	{Addr: ":8003", Weight: 10, Version: "1.0.0"},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	results := make([]string, 3)
	for i := 0; i < 3; i++ {
		ep, err := b.Pick(testEndpoints)
		if err != nil {
			t.Fatal(err)
		}
		results[i] = ep.Addr
	}
	if results[0] != ":8001" || results[1] != ":8002" || results[2] != ":8003" {
		t.Fatalf("expect endpoints in order, got %v", results)
	}

	// Wraps around to the first
	ep, _ := b.Pick(testEndpoints)
	if ep.Addr != results[0] {
		t.Fatalf("expect wrap around to %s, got %s", results[0], ep.Addr)
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	b := &RoundRobinBalancer{}
	if _, err := b.Pick(nil); err != ErrNoEndpoints {
		t.Fatalf("expect ErrNoEndpoints, got %v", err)
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		ep, err := b.Pick(testEndpoints)
		if err != nil {
			t.Fatal(err)
		}
		counts[ep.Addr]++
	}

	// Weights are 10:5:10, so :8001 should win about twice as often as :8002
	ratio := float64(counts[":8001"]) / float64(counts[":8002"])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio :8001/:8002 = %.2f, expect ~2.0", ratio)
	}
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	if _, err := b.Pick([]discovery.Endpoint{{Addr: ":1"}, {Addr: ":2"}}); err != nil {
		t.Fatalf("zero weights must still be pickable: %v", err)
	}
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer()
	b.Reset(testEndpoints)

	ep1, _ := b.PickKey("/home/dev/project-a")
	ep2, _ := b.PickKey("/home/dev/project-a")
	if ep1.Addr != ep2.Addr {
		t.Fatalf("same project mapped to different hosts: %s vs %s", ep1.Addr, ep2.Addr)
	}

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		ep, _ := b.PickKey(fmt.Sprintf("/home/dev/project-%d", i))
		seen[ep.Addr] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expect at least 2 different hosts, got %d", len(seen))
	}

	b.Reset(nil)
	if _, err := b.PickKey("x"); err != ErrNoEndpoints {
		t.Fatalf("expect ErrNoEndpoints on empty ring, got %v", err)
	}
}

func TestNew(t *testing.T) {
	if New("weighted").Name() != "WeightedRandom" || New("").Name() != "RoundRobin" {
		t.Fatal("unexpected balancer selection")
	}
}
