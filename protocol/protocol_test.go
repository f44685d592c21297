package protocol

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	body := []byte(`{"service":"ExtHostEditors","method":"acceptEditorPropertiesChanged"}`)
	header := Header{
		CodecType: CodecTypeJSON,
		MsgType:   MsgTypeNotification,
		Seq:       0,
		BodyLen:   uint32(len(body)),
	}

	var buf bytes.Buffer
	if err := Encode(&buf, &header, body); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if buf.Len() != HeaderSize+len(body) {
		t.Fatalf("frame size mismatch: got %d, want %d", buf.Len(), HeaderSize+len(body))
	}

	decodedHeader, decodedBody, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if *decodedHeader != header {
		t.Errorf("Header mismatch: got %+v, want %+v", *decodedHeader, header)
	}
	if !bytes.Equal(decodedBody, body) {
		t.Errorf("Body mismatch: got %s, want %s", decodedBody, body)
	}
}

func TestDecodeSequentialFrames(t *testing.T) {
	var buf bytes.Buffer
	for seq := uint32(1); seq <= 3; seq++ {
		body := []byte(strings.Repeat("x", int(seq)))
		if err := Encode(&buf, &Header{MsgType: MsgTypeRequest, Seq: seq, BodyLen: seq}, body); err != nil {
			t.Fatal(err)
		}
	}

	for seq := uint32(1); seq <= 3; seq++ {
		h, body, err := Decode(&buf)
		if err != nil {
			t.Fatalf("frame %d: %v", seq, err)
		}
		if h.Seq != seq || len(body) != int(seq) {
			t.Fatalf("frame %d decoded as seq=%d len=%d", seq, h.Seq, len(body))
		}
	}
}

func TestDecodeHeartbeatHasNoBody(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, &Header{MsgType: MsgTypeHeartbeat}, nil); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	h, body, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if h.MsgType != MsgTypeHeartbeat {
		t.Errorf("MsgType mismatch: got %d, want %d", h.MsgType, MsgTypeHeartbeat)
	}
	if len(body) != 0 {
		t.Errorf("Expected empty body, got length %d", len(body))
	}
}

func TestDecodeRejectsBadHeaders(t *testing.T) {
	valid := make([]byte, HeaderSize)
	PutHeader(valid, &Header{MsgType: MsgTypeRequest, Seq: 1})

	cases := []struct {
		name   string
		mutate func(b []byte)
		want   string
	}{
		{"magic", func(b []byte) { b[0] = 0x00 }, "invalid magic number"},
		{"version", func(b []byte) { b[3] = 0xFF }, "unsupported version"},
		{"codec", func(b []byte) { b[4] = 9 }, "unsupported codec type"},
		{"msgType", func(b []byte) { b[5] = 7 }, "unsupported message type"},
		{"bodyLen", func(b []byte) { PutHeader(b, &Header{BodyLen: MaxBodySize + 1}) }, "body too large"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame := append([]byte(nil), valid...)
			tc.mutate(frame)

			_, _, err := Decode(bytes.NewReader(frame))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error should contain %q, got: %v", tc.want, err)
			}
		})
	}
}

func TestDecodeLargeBody(t *testing.T) {
	largeBody := make([]byte, 1024*1024)
	for i := range largeBody {
		largeBody[i] = byte(i % 256)
	}

	var buf bytes.Buffer
	header := &Header{CodecType: CodecTypeBinary, MsgType: MsgTypeResponse, Seq: 999, BodyLen: uint32(len(largeBody))}
	if err := Encode(&buf, header, largeBody); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	_, decodedBody, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(decodedBody, largeBody) {
		t.Errorf("large body mismatch")
	}
}
