package transport

import (
	"bufio"
	"ext-bridge/protocol"
	"io"
	"net"
	"sync"
)

// Link moves whole frames between the two ends of a session. Implementations deliver
// frames in the order they were written and report io.EOF once the peer is gone.
// WriteFrame and ReadFrame may be called from different goroutines.
type Link interface {
	WriteFrame(h *protocol.Header, body []byte) error
	ReadFrame() (*protocol.Header, []byte, error)
	Close() error
}

// StreamLink frames a byte stream (TCP, unix socket, pipe) with the protocol header.
type StreamLink struct {
	rwc     io.ReadWriteCloser
	reader  *bufio.Reader
	writeMu sync.Mutex // Header and body of one frame must not interleave with another
	writer  *bufio.Writer
}

// NewStreamLink wraps rwc. The link owns rwc and closes it on Close.
func NewStreamLink(rwc io.ReadWriteCloser) *StreamLink {
	return &StreamLink{
		rwc:    rwc,
		reader: bufio.NewReader(rwc),
		writer: bufio.NewWriter(rwc),
	}
}

func (l *StreamLink) WriteFrame(h *protocol.Header, body []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if err := protocol.Encode(l.writer, h, body); err != nil {
		return err
	}
	return l.writer.Flush()
}

func (l *StreamLink) ReadFrame() (*protocol.Header, []byte, error) {
	return protocol.Decode(l.reader)
}

func (l *StreamLink) Close() error {
	return l.rwc.Close()
}

// RemoteAddr returns the peer address when the stream is a network connection.
func (l *StreamLink) RemoteAddr() string {
	if conn, ok := l.rwc.(net.Conn); ok {
		return conn.RemoteAddr().String()
	}
	return ""
}
