// Package protocol implements the frame format carried by a bridge link.
//
// A stream link has no message boundaries, so every frame starts with a fixed 14-byte
// header that tells the reader how long the body is. Message-oriented links (NATS)
// reuse the same layout so both ends decode frames the same way.
//
// Frame format:
//
//	0      3  4  5  6         10        14
//	┌──────┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│ft│   seq   │ bodyLen │    body ...    │
//	│ ebr  │01│  │  │ uint32  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴─────────┴───────────────┘
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic number bytes: "ebr" (extension bridge).
// Lets a reader reject a peer that is not speaking this protocol at all.
const (
	MagicNumber byte = 0x65 // 'e'
	MagicByte2  byte = 0x62 // 'b'
	MagicByte3  byte = 0x72 // 'r'
	Version     byte = 0x01
	HeaderSize  int  = 14 // 3 (magic) + 1 (version) + 1 (codec) + 1 (msgType) + 4 (seq) + 4 (bodyLen)

	// MaxBodySize bounds the allocation a corrupt or hostile length field can cause.
	MaxBodySize uint32 = 64 << 20
)

// MsgType distinguishes the frames a link carries. The values of the call and response
// types match message.Kind.
type MsgType byte

const (
	MsgTypeRequest      MsgType = 0 // Call expecting a response with the same Seq
	MsgTypeResponse     MsgType = 1 // Outcome of a request
	MsgTypeHeartbeat    MsgType = 2 // Keepalive, no body
	MsgTypeNotification MsgType = 3 // One-way call, Seq is zero
)

// Codec type constants, mirrored from codec package to avoid circular import.
const (
	CodecTypeJSON   byte = 0
	CodecTypeBinary byte = 1
)

// Header represents the fixed 14-byte frame header.
type Header struct {
	CodecType byte    // Serialization format of the body: 0=JSON, 1=Binary
	MsgType   MsgType // Request, Response, Heartbeat or Notification
	Seq       uint32  // Correlation id, matches a response to its request
	BodyLen   uint32  // Body length in bytes
}

// Encode writes a complete frame (header + body) to w.
// The caller must serialize writers sharing w, otherwise frames interleave.
func Encode(w io.Writer, h *Header, body []byte) error {
	buf := make([]byte, HeaderSize)
	PutHeader(buf, h)

	if _, err := w.Write(buf); err != nil {
		return err
	}
	// Body may be empty for heartbeat frames
	if len(body) == 0 {
		return nil
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	return nil
}

// PutHeader writes h into the first HeaderSize bytes of buf.
func PutHeader(buf []byte, h *Header) {
	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.MsgType)
	binary.BigEndian.PutUint32(buf[6:10], h.Seq)
	binary.BigEndian.PutUint32(buf[10:14], h.BodyLen)
}

// ParseHeader validates and parses a HeaderSize-byte header.
func ParseHeader(headerBuf []byte) (*Header, error) {
	if len(headerBuf) < HeaderSize {
		return nil, fmt.Errorf("short header: %d bytes", len(headerBuf))
	}

	// Reject non-protocol peers
	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}

	if headerBuf[3] != Version {
		return nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}

	if headerBuf[4] != CodecTypeJSON && headerBuf[4] != CodecTypeBinary {
		return nil, fmt.Errorf("unsupported codec type: %d", headerBuf[4])
	}

	msgType := MsgType(headerBuf[5])
	switch msgType {
	case MsgTypeRequest, MsgTypeResponse, MsgTypeHeartbeat, MsgTypeNotification:
	default:
		return nil, fmt.Errorf("unsupported message type: %d", msgType)
	}

	bodyLen := binary.BigEndian.Uint32(headerBuf[10:14])
	if bodyLen > MaxBodySize {
		return nil, fmt.Errorf("body too large: %d bytes", bodyLen)
	}

	return &Header{
		CodecType: headerBuf[4],
		MsgType:   msgType,
		Seq:       binary.BigEndian.Uint32(headerBuf[6:10]),
		BodyLen:   bodyLen,
	}, nil
}

// Decode reads a complete frame (header + body) from r.
// io.ReadFull guarantees exactly the advertised number of bytes is consumed.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	header, err := ParseHeader(headerBuf)
	if err != nil {
		return nil, nil, err
	}

	body := make([]byte, header.BodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return header, body, nil
}
