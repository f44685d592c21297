package codec

import (
	"encoding/json"
	"ext-bridge/message"
)

// JSONCodec uses encoding/json for the body. Readable on the wire and easy to debug,
// at the cost of repeated field names.
type JSONCodec struct{}

func (c *JSONCodec) Encode(env *message.Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func (c *JSONCodec) Decode(data []byte, env *message.Envelope) error {
	return json.Unmarshal(data, env)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
