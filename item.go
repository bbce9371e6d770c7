package batchkv

import (
	"github.com/batchkv/go-batchkv/codec"
)

// Item is a single key/value pair to be written.
type Item struct {
	Key   string
	Value []byte
}

// NewItem builds an Item from any value. Byte slices and strings are
// stored as is, everything else is packed with msgpack.
func NewItem(key string, value interface{}) (Item, error) {
	switch v := value.(type) {
	case nil:
		return Item{}, ErrNilValue
	case []byte:
		return Item{Key: key, Value: v}, nil
	case string:
		return Item{Key: key, Value: []byte(v)}, nil
	}

	b, err := codec.Marshal(value)
	if err != nil {
		return Item{}, err
	}
	return Item{Key: key, Value: b}, nil
}

// Size is the number of key and value bytes carried by the item.
func (it Item) Size() int {
	return len(it.Key) + len(it.Value)
}

// Chunks splits items into consecutive sub-slices of at most size items.
// The sub-slices share the backing array of items. An empty batch gives
// no chunks; size below 1 is treated as 1.
func Chunks(items []Item, size int) [][]Item {
	if len(items) == 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}

	chunks := make([][]Item, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}

// Keys returns the keys of items in order.
func Keys(items []Item) []string {
	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = it.Key
	}
	return keys
}
