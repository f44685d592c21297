package discovery

// etcd acts as the phonebook of bridge endpoints:
//
//	Key:   /ext-bridge/{name}/{addr}
//	Value: JSON-encoded Endpoint
//
// Entries hang off a TTL lease kept alive in the background, so a host that dies without
// deregistering disappears once the lease expires.

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	keyPrefix = "/ext-bridge/"
	logPrefix = "discovery:etcd"
)

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // Safe for concurrent use
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, fmt.Errorf("%s - connect %v: %w", logPrefix, endpoints, err)
	}
	return &EtcdRegistry{client: c}, nil
}

func prefixFor(name string) string {
	return keyPrefix + name + "/"
}

// Register stores ep under a lease of ttl seconds and keeps the lease alive until ctx ends.
// The lease id stays local so one EtcdRegistry can serve several registrations.
func (r *EtcdRegistry) Register(ctx context.Context, name string, ep Endpoint, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("%s - grant lease: %w", logPrefix, err)
	}

	val, err := json.Marshal(ep)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, prefixFor(name)+ep.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return fmt.Errorf("%s - put %s: %w", logPrefix, ep.Addr, err)
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("%s - keepalive: %w", logPrefix, err)
	}

	// Drain keepalive responses so the channel never fills up
	go func() {
		for range ch {
		}
		slog.Debug(fmt.Sprintf("%s - keepalive for %s/%s stopped", logPrefix, name, ep.Addr))
	}()
	slog.Info(fmt.Sprintf("%s - registered %s at %s (version %s)", logPrefix, name, ep.Addr, ep.Version))
	return nil
}

// Deregister removes an endpoint. Called on shutdown before the listener goes away.
func (r *EtcdRegistry) Deregister(ctx context.Context, name string, addr string) error {
	_, err := r.client.Delete(ctx, prefixFor(name)+addr)
	if err != nil {
		return fmt.Errorf("%s - delete %s: %w", logPrefix, addr, err)
	}
	return nil
}

// Watch emits the full endpoint list every time something under name changes.
func (r *EtcdRegistry) Watch(ctx context.Context, name string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, prefixFor(name), clientv3.WithPrefix())
		for range watchChan {
			// Re-read the whole list instead of applying individual events
			endpoints, err := r.Discover(ctx, name)
			if err != nil {
				slog.Warn(fmt.Sprintf("%s - rediscover %s: %v", logPrefix, name, err))
				continue
			}
			select {
			case ch <- endpoints:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Discover returns every endpoint currently registered under name.
func (r *EtcdRegistry) Discover(ctx context.Context, name string) ([]Endpoint, error) {
	resp, err := r.client.Get(ctx, prefixFor(name), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("%s - get %s: %w", logPrefix, name, err)
	}

	endpoints := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var ep Endpoint
		if err := json.Unmarshal(kv.Value, &ep); err != nil {
			continue // Skip malformed entries
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

// Close releases the etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
