// Package registry resolves service ids to proxies for outbound calls and to handlers for
// inbound ones.
//
// Outbound, every service the remote side offers is declared as a proxy.Contract. The
// proxy for an id is built on first use and shared afterwards; concurrent first uses
// still build exactly one.
//
// Inbound, local implementations are registered either reflectively (Register) or as raw
// handlers (HandleFunc) and reached through Dispatch, wrapped by the middleware chain.
package registry

import (
	"ext-bridge/message"
	"ext-bridge/middleware"
	"ext-bridge/pending"
	"ext-bridge/proxy"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

const logPrefix = "registry"

// Registry is scoped to one session: it shares the session's pending table and sender.
type Registry struct {
	sender proxy.Sender
	table  *pending.Table

	mu          sync.RWMutex
	contracts   map[message.ServiceID]proxy.Contract
	services    map[message.ServiceID]*service
	middlewares []middleware.Middleware

	proxies     sync.Map // message.ServiceID -> *proxy.Proxy
	group       singleflight.Group
	constructed atomic.Uint64

	chainOnce sync.Once
	handler   middleware.HandlerFunc
}

// New creates a registry whose proxies send through sender and correlate through table.
// A nil sender leaves every proxy disconnected.
func New(sender proxy.Sender, table *pending.Table) *Registry {
	return &Registry{
		sender:    sender,
		table:     table,
		contracts: make(map[message.ServiceID]proxy.Contract),
		services:  make(map[message.ServiceID]*service),
	}
}

// Declare makes the given remote contracts resolvable through Proxy. Redeclaring an id
// replaces its contract for proxies not built yet.
func (r *Registry) Declare(contracts ...proxy.Contract) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range contracts {
		r.contracts[c.Service] = c
	}
}

// Contract returns the declared contract for id.
func (r *Registry) Contract(id message.ServiceID) (proxy.Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[id]
	return c, ok
}

// Proxy returns the proxy for id, building it on first use.
func (r *Registry) Proxy(id message.ServiceID) (*proxy.Proxy, error) {
	if p, ok := r.proxies.Load(id); ok {
		return p.(*proxy.Proxy), nil
	}

	v, err, _ := r.group.Do(string(id), func() (any, error) {
		r.mu.Lock()
		defer r.mu.Unlock()

		// A caller that lost the race to singleflight may arrive after the winner stored it.
		if p, ok := r.proxies.Load(id); ok {
			return p, nil
		}
		contract, ok := r.contracts[id]
		if !ok {
			return nil, message.NewFault(message.CodeUnknownService, "no contract declared for %s", id)
		}
		p := proxy.New(contract, r.sender, r.table)
		r.proxies.Store(id, p)
		r.constructed.Add(1)
		slog.Debug(fmt.Sprintf("%s - built proxy for %s", logPrefix, id))
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*proxy.Proxy), nil
}

// Constructed returns how many proxies have been built.
func (r *Registry) Constructed() uint64 {
	return r.constructed.Load()
}

// Register exposes the exported methods of rcvr under id.
func (r *Registry) Register(id message.ServiceID, rcvr any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	svc := newService(id)
	if old, ok := r.services[id]; ok {
		svc = old.clone()
		svc.methods = make(map[string]*methodType)
	}
	n, err := svc.register(rcvr)
	if err != nil {
		return err
	}
	r.services[id] = svc
	slog.Info(fmt.Sprintf("%s - registered %s with %d methods", logPrefix, id, n))
	return nil
}

// HandleFunc serves method of id with h, taking precedence over a reflected method of the
// same name.
func (r *Registry) HandleFunc(id message.ServiceID, method string, h RawHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var svc *service
	if old, ok := r.services[id]; ok {
		svc = old.clone()
	} else {
		svc = newService(id)
	}
	svc.raw[method] = h
	r.services[id] = svc
}

// Use appends middlewares to the inbound chain. Middlewares added after the first
// Dispatch are ignored.
func (r *Registry) Use(mws ...middleware.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mws...)
}

func (r *Registry) lookup(id message.ServiceID) (*service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[id]
	return svc, ok
}
