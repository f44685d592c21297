package codec

import (
	"encoding/binary"
	"errors"
	"ext-bridge/message"
	"math"
)

var errTruncated = errors.New("BinaryCodec: truncated body")

// BinaryCodec lays the body out as length-prefixed fields:
//
//	service (2+n) | method (2+n) | payload (4+n) | fault code (2+n) | fault message (2+n)
//
// An empty fault code means no fault.
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(env *message.Envelope) ([]byte, error) {
	var code, msg string
	if env.Fault != nil {
		code, msg = string(env.Fault.Code), env.Fault.Message
	}
	for _, s := range []string{string(env.Service), env.Method, code, msg} {
		if len(s) > math.MaxUint16 {
			return nil, errors.New("BinaryCodec: string field exceeds 65535 bytes")
		}
	}

	total := 2 + len(env.Service) + 2 + len(env.Method) + 4 + len(env.Payload) + 2 + len(code) + 2 + len(msg)
	buf := make([]byte, 0, total)
	buf = appendString(buf, string(env.Service))
	buf = appendString(buf, env.Method)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(env.Payload)))
	buf = append(buf, env.Payload...)
	buf = appendString(buf, code)
	buf = appendString(buf, msg)
	return buf, nil
}

func (c *BinaryCodec) Decode(data []byte, env *message.Envelope) error {
	r := reader{data: data}

	service := r.string()
	method := r.string()
	payload := r.bytes()
	code := r.string()
	msg := r.string()
	if r.err != nil {
		return r.err
	}

	env.Service = message.ServiceID(service)
	env.Method = method
	env.Payload = payload
	env.Fault = nil
	if code != "" {
		env.Fault = &message.Fault{Code: message.FaultCode(code), Message: msg}
	}
	return nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

// reader walks a body and remembers the first bounds violation.
type reader struct {
	data   []byte
	offset int
	err    error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.offset+n > len(r.data) {
		r.err = errTruncated
		return nil
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b
}

func (r *reader) string() string {
	l := r.take(2)
	if l == nil {
		return ""
	}
	return string(r.take(int(binary.BigEndian.Uint16(l))))
}

func (r *reader) bytes() []byte {
	l := r.take(4)
	if l == nil {
		return nil
	}
	n := int(binary.BigEndian.Uint32(l))
	b := r.take(n)
	if b == nil || n == 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}
