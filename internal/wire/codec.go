package wire

import (
	"github.com/vmihailenco/msgpack/v5"
)

// Marshal encodes a Message using the msgpack wire format used between
// peers.
func Marshal(m Message) ([]byte, error) {
	return msgpack.Marshal(m)
}

// Unmarshal decodes a Message previously produced by Marshal.
func Unmarshal(raw []byte) (Message, error) {
	var m Message
	err := msgpack.Unmarshal(raw, &m)
	return m, err
}

// MarshalData encodes a DataMessage, the envelope carried over the
// PUB/SUB topic fan-out.
func MarshalData(m DataMessage) ([]byte, error) {
	return msgpack.Marshal(m)
}

func UnmarshalData(raw []byte) (DataMessage, error) {
	var m DataMessage
	err := msgpack.Unmarshal(raw, &m)
	return m, err
}
