// Package transport implements the channel that carries envelopes between host and
// extension runtime.
//
// A Channel owns the only I/O boundary of a session. Any goroutine may call Send; each
// envelope is encoded on the caller's goroutine and handed to a single writer through an
// unbounded FIFO, so send order is wire order and senders never wait on the network.
// A single reader decodes frames and hands them to the message callback in wire order.
//
//	goroutine-1 ──Send──┐
//	goroutine-2 ──Send──┼──→ queue ──→ writeLoop ──→ link ──→ peer
//	heartbeat   ──push──┘
//
//	peer ──→ link ──→ readLoop ──→ onMessage(env)   (one at a time, in order)
package transport

import (
	"errors"
	"ext-bridge/codec"
	"ext-bridge/message"
	"ext-bridge/protocol"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const logPrefix = "transport:channel"

// ErrFlushTimeout is returned by FlushAndClose when queued envelopes were still unwritten
// at its deadline.
var ErrFlushTimeout = errors.New("transport: timeout flushing queued envelopes")

// DefaultHeartbeat is how often an idle channel proves it is alive.
const DefaultHeartbeat = 30 * time.Second

// Stats counts traffic on a channel.
type Stats struct {
	FramesSent     uint64
	FramesReceived uint64
	BytesSent      uint64
	BytesReceived  uint64
}

// Option configures a Channel.
type Option func(*Channel)

// WithHeartbeat sets the heartbeat interval. Zero disables heartbeats.
func WithHeartbeat(interval time.Duration) Option {
	return func(c *Channel) { c.heartbeat = interval }
}

// Channel is a framed, ordered, duplex envelope stream over a Link.
type Channel struct {
	link      Link
	codec     codec.Codec
	heartbeat time.Duration
	queue     *queue
	onMessage func(*message.Envelope)

	started    atomic.Bool
	closeOnce  sync.Once
	done       chan struct{}
	writerDone chan struct{} // closed when writeLoop returns

	mu     sync.Mutex
	err    error
	closed bool
	hooks  []func(error)

	framesSent, framesReceived atomic.Uint64
	bytesSent, bytesReceived   atomic.Uint64
}

// NewChannel creates a channel over link. Nothing is read or written until Start.
func NewChannel(link Link, codecType codec.CodecType, opts ...Option) *Channel {
	c := &Channel{
		link:       link,
		codec:      codec.GetCodec(codecType),
		heartbeat:  DefaultHeartbeat,
		queue:      newQueue(),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnMessage sets the callback for received envelopes. It must be set before Start and
// runs on the read goroutine, so a slow callback delays every later envelope.
func (c *Channel) OnMessage(fn func(*message.Envelope)) {
	c.onMessage = fn
}

// OnClose registers fn to run once when the channel closes. If the channel is already
// closed fn runs immediately.
func (c *Channel) OnClose(fn func(error)) {
	c.mu.Lock()
	if c.closed {
		err := c.err
		c.mu.Unlock()
		fn(err)
		return
	}
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

// Start launches the read, write and heartbeat loops. Calling it again does nothing.
func (c *Channel) Start() {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go c.readLoop()
	go c.writeLoop()
	if c.heartbeat > 0 {
		go c.heartbeatLoop(c.heartbeat)
	}
}

// Send encodes env and queues it for the writer. Encoding errors are returned directly;
// after the channel has closed Send fails with message.ErrChannelClosed.
func (c *Channel) Send(env *message.Envelope) error {
	if c.isClosed() {
		return c.closedErr()
	}

	body, err := c.codec.Encode(env)
	if err != nil {
		return fmt.Errorf("%s - encode %s: %w", logPrefix, env.Target(), err)
	}
	if uint32(len(body)) > protocol.MaxBodySize {
		return fmt.Errorf("%s - %s body is %d bytes, limit %d", logPrefix, env.Target(), len(body), protocol.MaxBodySize)
	}

	frame := outFrame{
		header: protocol.Header{
			CodecType: byte(c.codec.Type()),
			MsgType:   protocol.MsgType(env.Kind),
			Seq:       env.Seq,
			BodyLen:   uint32(len(body)),
		},
		body: body,
	}
	if !c.queue.Push(frame) {
		return c.closedErr()
	}
	return nil
}

// Close shuts the channel down at once. It is idempotent. Envelopes queued but not yet
// written are dropped even though their Send returned nil; use FlushAndClose when they
// must reach the peer.
func (c *Channel) Close() error {
	c.closeWith(message.ErrChannelClosed)
	return nil
}

// FlushAndClose stops accepting envelopes (Send fails with message.ErrChannelClosed), waits
// up to timeout for the writer to put everything already queued on the link, then closes.
// It returns ErrFlushTimeout if the backlog could not be written in time.
func (c *Channel) FlushAndClose(timeout time.Duration) error {
	if !c.started.Load() {
		return c.Close()
	}
	c.queue.Seal()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var err error
	select {
	case <-c.writerDone:
	case <-c.done:
	case <-timer.C:
		err = ErrFlushTimeout
	}
	c.closeWith(message.ErrChannelClosed)
	return err
}

// Done is closed once the channel has closed.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the channel closed, nil while it is open.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Pending returns the number of envelopes waiting for the writer.
func (c *Channel) Pending() int {
	return c.queue.Len()
}

// Stats returns traffic counters.
func (c *Channel) Stats() Stats {
	return Stats{
		FramesSent:     c.framesSent.Load(),
		FramesReceived: c.framesReceived.Load(),
		BytesSent:      c.bytesSent.Load(),
		BytesReceived:  c.bytesReceived.Load(),
	}
}

// closeWith records cause, stops both loops and runs the close hooks, exactly once.
func (c *Channel) closeWith(cause error) {
	c.closeOnce.Do(func() {
		fault := message.AsFault(cause)
		if fault.Code != message.CodeChannelClosed {
			fault = message.NewFault(message.CodeChannelClosed, "%v", cause)
		}

		c.mu.Lock()
		c.closed = true
		c.err = fault
		hooks := c.hooks
		c.hooks = nil
		c.mu.Unlock()

		c.queue.Close()
		if err := c.link.Close(); err != nil {
			slog.Debug(fmt.Sprintf("%s - closing link: %v", logPrefix, err))
		}
		close(c.done)

		if cause != message.ErrChannelClosed {
			slog.Warn(fmt.Sprintf("%s - channel closed: %v", logPrefix, cause))
		}
		for _, fn := range hooks {
			fn(fault)
		}
	})
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) closedErr() error {
	if err := c.Err(); err != nil {
		return err
	}
	return message.ErrChannelClosed
}

// readLoop is the only reader of the link. Frame boundaries on a stream can only be
// found by reading sequentially, and callers rely on receive order.
func (c *Channel) readLoop() {
	for {
		header, body, err := c.link.ReadFrame()
		if err != nil {
			c.closeWith(fmt.Errorf("read: %w", err))
			return
		}
		c.framesReceived.Add(1)
		c.bytesReceived.Add(uint64(protocol.HeaderSize + len(body)))

		if header.MsgType == protocol.MsgTypeHeartbeat {
			continue
		}

		env := &message.Envelope{}
		cdc := codec.GetCodec(codec.CodecType(header.CodecType))
		if err := cdc.Decode(body, env); err != nil {
			slog.Warn(fmt.Sprintf("%s - undecodable %s frame seq=%d: %v", logPrefix, message.Kind(header.MsgType), header.Seq, err))
			switch header.MsgType {
			case protocol.MsgTypeRequest:
				// The peer is waiting on this seq; answer it so its call does not hang.
				fault := message.NewFault(message.CodeBadArguments, "undecodable request: %v", err)
				if err := c.Send(&message.Envelope{Kind: message.KindResponse, Seq: header.Seq, Fault: fault}); err != nil {
					slog.Debug(fmt.Sprintf("%s - fault response seq=%d not sent: %v", logPrefix, header.Seq, err))
				}
				continue
			case protocol.MsgTypeResponse:
				// Our caller is waiting on this seq; fail it rather than leave it hanging.
				env = &message.Envelope{Fault: message.NewFault(message.CodeBadArguments, "undecodable response: %v", err)}
			default:
				continue
			}
		}
		env.Kind = message.Kind(header.MsgType)
		env.Seq = header.Seq

		if c.onMessage != nil {
			c.onMessage(env)
		}
	}
}

// writeLoop is the only writer of the link.
func (c *Channel) writeLoop() {
	defer close(c.writerDone)
	for {
		frame, ok := c.queue.Pop()
		if !ok {
			return
		}
		if err := c.link.WriteFrame(&frame.header, frame.body); err != nil {
			c.closeWith(fmt.Errorf("write: %w", err))
			return
		}
		c.framesSent.Add(1)
		c.bytesSent.Add(uint64(protocol.HeaderSize + len(frame.body)))
	}
}

// heartbeatLoop queues an empty heartbeat frame every interval so a dead peer surfaces
// as a write error instead of silence.
func (c *Channel) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			hb := outFrame{header: protocol.Header{
				CodecType: byte(c.codec.Type()),
				MsgType:   protocol.MsgTypeHeartbeat,
			}}
			if !c.queue.Push(hb) {
				return
			}
		}
	}
}
