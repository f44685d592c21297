package session

import (
	"context"
	"ext-bridge/transport"
	"fmt"
	"log/slog"
	"net"

	"github.com/nats-io/nats.go"
)

// Listen waits on addr for exactly one peer and returns an unstarted session over its
// connection. The listener is closed once the peer is accepted or ctx is done.
func Listen(ctx context.Context, network, addr string, opts ...Option) (*Session, error) {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("%s - listen %s: %w", logPrefix, addr, err)
	}
	slog.Info(fmt.Sprintf("%s - waiting for extension runtime on %s", logPrefix, listener.Addr()))
	return accept(ctx, listener, opts...)
}

func accept(ctx context.Context, listener net.Listener, opts ...Option) (*Session, error) {
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()
	defer listener.Close()

	conn, err := listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s - accept: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - accepted %s", logPrefix, conn.RemoteAddr()))
	return New(transport.NewStreamLink(conn), opts...), nil
}

// Dial connects to a listening peer and returns an unstarted session.
func Dial(ctx context.Context, network, addr string, opts ...Option) (*Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("%s - dial %s: %w", logPrefix, addr, err)
	}
	return New(transport.NewStreamLink(conn), opts...), nil
}

// DialNATS returns an unstarted session that reaches the other side through the subjects
// of the named bridge. Both sides use the same name and opposite sides.
func DialNATS(nc *nats.Conn, name string, side transport.Side, opts ...Option) (*Session, error) {
	out, in := transport.NATSSubjects(name, side)
	link, err := transport.NewNATSLink(nc, out, in)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithName(name + "/" + string(side))}, opts...)
	return New(link, opts...), nil
}
