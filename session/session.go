// Package session ties one channel, one pending table and one registry together into a
// live connection between the host and an extension runtime.
//
// Inbound processing:
//
//	channel readLoop (single goroutine, wire order)
//	  → Response      → pending.Table.Resolve
//	  → Notification  → Registry.Dispatch inline, so state reports apply in order
//	  → Request       → go Registry.Dispatch → Channel.Send(response)
//
// When the channel closes, every call still pending fails with message.ErrChannelClosed.
package session

import (
	"context"
	"errors"
	"ext-bridge/codec"
	"ext-bridge/message"
	"ext-bridge/middleware"
	"ext-bridge/pending"
	"ext-bridge/proxy"
	"ext-bridge/registry"
	"ext-bridge/transport"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const logPrefix = "session"

// ErrShutdownTimeout is returned by Shutdown when inbound requests outlive its timeout.
var ErrShutdownTimeout = errors.New("session: timeout waiting for in-flight requests")

type options struct {
	id          string
	name        string
	codec       codec.CodecType
	heartbeat   time.Duration
	middlewares []middleware.Middleware
	contracts   []proxy.Contract
}

type Option func(*options)

// WithID fixes the session id, for example to match an id already advertised.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithName labels the session in logs.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

func WithCodec(t codec.CodecType) Option {
	return func(o *options) { o.codec = t }
}

// WithHeartbeat sets the channel heartbeat interval. Zero disables it.
func WithHeartbeat(d time.Duration) Option {
	return func(o *options) { o.heartbeat = d }
}

// WithMiddleware wraps inbound dispatch.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mws...) }
}

// WithContracts declares the services the remote side offers.
func WithContracts(contracts ...proxy.Contract) Option {
	return func(o *options) { o.contracts = append(o.contracts, contracts...) }
}

type Session struct {
	id       string
	name     string
	channel  *transport.Channel
	table    *pending.Table
	registry *registry.Registry

	ctx    context.Context // cancelled when the channel closes; parent of every dispatch
	cancel context.CancelFunc

	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

// New builds a session over link. Register local services on Registry, then call Start.
func New(link transport.Link, opts ...Option) *Session {
	o := options{codec: codec.CodecTypeJSON, heartbeat: transport.DefaultHeartbeat}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		id:    o.id,
		name:  o.name,
		table: pending.NewTable(),
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.name == "" {
		s.name = s.id
		if len(s.name) > 8 {
			s.name = s.name[:8]
		}
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.channel = transport.NewChannel(link, o.codec, transport.WithHeartbeat(o.heartbeat))
	s.registry = registry.New(s.channel, s.table)
	s.registry.Declare(o.contracts...)
	s.registry.Use(o.middlewares...)

	s.channel.OnMessage(s.route)
	s.channel.OnClose(func(err error) {
		s.cancel()
		n := s.table.Drain(err)
		slog.Info(fmt.Sprintf("%s - %s closed, failed %d pending calls: %v", logPrefix, s.name, n, err))
	})
	return s
}

// Start begins reading and writing.
func (s *Session) Start() {
	s.channel.Start()
	slog.Info(fmt.Sprintf("%s - %s started (id %s)", logPrefix, s.name, s.id))
}

func (s *Session) ID() string                   { return s.id }
func (s *Session) Name() string                 { return s.name }
func (s *Session) Registry() *registry.Registry { return s.registry }
func (s *Session) Table() *pending.Table        { return s.table }
func (s *Session) Channel() *transport.Channel  { return s.channel }

// Done is closed once the session's channel has closed.
func (s *Session) Done() <-chan struct{} {
	return s.channel.Done()
}

// Close closes the channel immediately. Pending calls fail with message.ErrChannelClosed.
func (s *Session) Close() error {
	return s.channel.Close()
}

// Shutdown stops serving new inbound requests, waits for the ones already running to
// queue their responses, then flushes everything queued onto the link before closing.
// Both steps share one timeout; whatever is still unwritten at the deadline is dropped.
func (s *Session) Shutdown(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.Close()
		return ErrShutdownTimeout
	}

	if err := s.channel.FlushAndClose(time.Until(deadline)); err != nil {
		return fmt.Errorf("%w: %v", ErrShutdownTimeout, err)
	}
	return nil
}

func (s *Session) route(env *message.Envelope) {
	switch env.Kind {
	case message.KindResponse:
		outcome := pending.Outcome{Value: env.Payload}
		if env.Fault != nil {
			outcome = pending.Outcome{Err: env.Fault}
		}
		if !s.table.Resolve(env.Seq, outcome) {
			slog.Debug(fmt.Sprintf("%s - %s: no pending call for response seq=%d", logPrefix, s.name, env.Seq))
		}

	case message.KindNotification:
		s.registry.Dispatch(s.ctx, env)

	case message.KindRequest:
		s.mu.Lock()
		if s.draining {
			s.mu.Unlock()
			s.reply(message.NewResponse(env, nil, message.NewFault(message.CodeChannelClosed, "session shutting down")))
			return
		}
		s.inflight.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.inflight.Done()
			if resp := s.registry.Dispatch(s.ctx, env); resp != nil {
				s.reply(resp)
			}
		}()

	default:
		slog.Warn(fmt.Sprintf("%s - %s: ignoring envelope of kind %d", logPrefix, s.name, env.Kind))
	}
}

func (s *Session) reply(resp *message.Envelope) {
	if err := s.channel.Send(resp); err != nil {
		slog.Warn(fmt.Sprintf("%s - %s: response to %s seq=%d not sent: %v", logPrefix, s.name, resp.Target(), resp.Seq, err))
	}
}
