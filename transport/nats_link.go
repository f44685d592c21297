package transport

import (
	"context"
	"errors"
	"ext-bridge/protocol"
	"fmt"
	"io"
	"sync"

	"github.com/nats-io/nats.go"
)

// Side says which end of a session a NATS link belongs to.
type Side string

const (
	SideHost      Side = "host"
	SideExtension Side = "ext"
)

// NATSSubjects returns the subjects a side publishes to and reads from for the named session.
// Each side reads its own subject, so the pair forms one duplex channel.
func NATSSubjects(name string, side Side) (out, in string) {
	base := "bridge." + name
	if side == SideHost {
		return base + "." + string(SideExtension), base + "." + string(SideHost)
	}
	return base + "." + string(SideHost), base + "." + string(SideExtension)
}

// NATSLink carries one frame per NATS message. NATS keeps per-publisher order on a subject,
// which is all the channel needs.
type NATSLink struct {
	nc     *nats.Conn
	out    string
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewNATSLink subscribes to in and publishes to out. The caller keeps ownership of nc.
func NewNATSLink(nc *nats.Conn, out, in string) (*NATSLink, error) {
	sub, err := nc.SubscribeSync(in)
	if err != nil {
		return nil, fmt.Errorf("transport: subscribe %s: %w", in, err)
	}
	// Make sure the server knows about the subscription before the peer starts publishing
	if err := nc.Flush(); err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("transport: flush subscription %s: %w", in, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &NATSLink{nc: nc, out: out, sub: sub, ctx: ctx, cancel: cancel}, nil
}

func (l *NATSLink) WriteFrame(h *protocol.Header, body []byte) error {
	frame := make([]byte, protocol.HeaderSize+len(body))
	protocol.PutHeader(frame, h)
	copy(frame[protocol.HeaderSize:], body)
	return l.nc.Publish(l.out, frame)
}

func (l *NATSLink) ReadFrame() (*protocol.Header, []byte, error) {
	msg, err := l.sub.NextMsgWithContext(l.ctx)
	if err != nil {
		if l.ctx.Err() != nil || errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
			return nil, nil, io.EOF
		}
		return nil, nil, err
	}

	h, err := protocol.ParseHeader(msg.Data)
	if err != nil {
		return nil, nil, err
	}
	body := msg.Data[protocol.HeaderSize:]
	if uint32(len(body)) != h.BodyLen {
		return nil, nil, fmt.Errorf("transport: frame body is %d bytes, header says %d", len(body), h.BodyLen)
	}
	return h, body, nil
}

func (l *NATSLink) Close() error {
	var err error
	l.once.Do(func() {
		l.cancel()
		err = l.sub.Unsubscribe()
		if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
			err = nil
		}
	})
	return err
}
