// Package codec packs structured values into the byte strings stored by
// the write path. Values are encoded with msgpack; uuid.UUID is carried
// as a msgpack extension.
package codec

import (
	"bytes"

	"gopkg.in/vmihailenco/msgpack.v2"
)

// Marshal packs v with msgpack.
func Marshal(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Unmarshal unpacks data into v, which must be a pointer.
func Unmarshal(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}

// MarshalAll packs every value into its own byte string.
func MarshalAll(values ...interface{}) ([][]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)

	out := make([][]byte, len(values))
	for i, v := range values {
		buf.Reset()
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		out[i] = append([]byte(nil), buf.Bytes()...)
	}
	return out, nil
}
