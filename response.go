package batchkv

import (
	"fmt"

	"github.com/batchkv/go-batchkv/codec"
)

// valuesFromReply converts an MGET reply into raw values. Nil entries
// stand for missing keys.
func valuesFromReply(reply []interface{}) ([][]byte, error) {
	values := make([][]byte, len(reply))
	for i, v := range reply {
		switch val := v.(type) {
		case nil:
		case string:
			values[i] = []byte(val)
		case []byte:
			values[i] = val
		default:
			return nil, fmt.Errorf("unexpected reply type %T at position %d", v, i)
		}
	}
	return values, nil
}

// DecodeValue unpacks a value stored by NewItem into result.
func DecodeValue(value []byte, result interface{}) error {
	if value == nil {
		return ErrNilValue
	}
	return codec.Unmarshal(value, result)
}

// DecodeValues unpacks every non-nil value into a fresh element produced
// by newResult and returns them in order. Nil values give nil elements.
func DecodeValues(values [][]byte, newResult func() interface{}) ([]interface{}, error) {
	results := make([]interface{}, len(values))
	for i, value := range values {
		if value == nil {
			continue
		}
		res := newResult()
		if err := codec.Unmarshal(value, res); err != nil {
			return nil, fmt.Errorf("decode value %d: %w", i, err)
		}
		results[i] = res
	}
	return results, nil
}
