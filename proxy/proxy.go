// Package proxy turns method calls on a named remote service into envelopes.
//
// Every method of a service is declared up front in a Contract with its call kind.
// Notifications are sent and forgotten: the only failure a caller can see is the send
// failing. Requests register a pending entry before anything is sent and hand back a
// Future bound to that entry.
package proxy

import (
	"encoding/json"
	"ext-bridge/message"
	"ext-bridge/pending"
	"fmt"
	"sort"
)

// Sender hands an envelope to the channel. *transport.Channel implements it.
type Sender interface {
	Send(env *message.Envelope) error
}

// Contract declares the methods of one service and the call kind of each.
type Contract struct {
	Service message.ServiceID
	Methods map[string]message.CallKind
}

// Kind returns the call kind declared for method.
func (c Contract) Kind(method string) (message.CallKind, bool) {
	kind, ok := c.Methods[method]
	return kind, ok
}

// MethodNames returns the declared method names in sorted order.
func (c Contract) MethodNames() []string {
	names := make([]string, 0, len(c.Methods))
	for name := range c.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Proxy is the local handle of one remote service. It is safe for concurrent use and
// shared by every call site of a session.
type Proxy struct {
	contract Contract
	sender   Sender // nil until the session has a channel
	table    *pending.Table
}

// New creates a proxy for contract. A nil sender makes every call fail fast with
// message.ErrNotConnected.
func New(contract Contract, sender Sender, table *pending.Table) *Proxy {
	return &Proxy{contract: contract, sender: sender, table: table}
}

// Service returns the id of the service this proxy calls.
func (p *Proxy) Service() message.ServiceID {
	return p.contract.Service
}

// Notify sends a one-way call. It returns once the envelope is handed to the channel.
func (p *Proxy) Notify(method string, args ...any) error {
	if err := p.checkKind(method, message.Notification); err != nil {
		return err
	}
	if p.sender == nil {
		return message.ErrNotConnected
	}

	payload, err := marshalArgs(args)
	if err != nil {
		return fmt.Errorf("proxy: %s.%s: %w", p.contract.Service, method, err)
	}
	return p.sender.Send(&message.Envelope{
		Kind:    message.KindNotification,
		Service: p.contract.Service,
		Method:  method,
		Payload: payload,
	})
}

// Request sends a call that expects a response. It never blocks on the remote side and
// never returns nil: failures before or during the send come back through the future.
func (p *Proxy) Request(method string, args ...any) *pending.Future {
	if err := p.checkKind(method, message.Request); err != nil {
		return pending.Failed(err)
	}
	if p.sender == nil {
		return pending.Failed(message.ErrNotConnected)
	}

	payload, err := marshalArgs(args)
	if err != nil {
		return pending.Failed(fmt.Errorf("proxy: %s.%s: %w", p.contract.Service, method, err))
	}

	// Register BEFORE sending so a fast response always finds its entry
	seq, fut, err := p.table.Register()
	if err != nil {
		return pending.Failed(err)
	}

	err = p.sender.Send(&message.Envelope{
		Kind:    message.KindRequest,
		Seq:     seq,
		Service: p.contract.Service,
		Method:  method,
		Payload: payload,
	})
	if err != nil {
		p.table.Resolve(seq, pending.Outcome{Err: err})
	}
	return fut
}

func (p *Proxy) checkKind(method string, want message.CallKind) error {
	kind, ok := p.contract.Kind(method)
	if !ok {
		return message.NewFault(message.CodeUnknownMethod, "%s has no method %q", p.contract.Service, method)
	}
	if kind != want {
		return message.NewFault(message.CodeUnknownMethod, "%s.%s is declared as a %s, not a %s", p.contract.Service, method, kind, want)
	}
	return nil
}

// marshalArgs encodes the ordered arguments as a JSON array. The caller's values are only read.
func marshalArgs(args []any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	return json.Marshal(args)
}
