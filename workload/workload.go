// Package workload generates synthetic batches for the write path.
package workload

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/vmihailenco/msgpack.v2"

	"github.com/batchkv/go-batchkv"
	"github.com/batchkv/go-batchkv/codec"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Generator builds batches from its own random source. It is not safe
// for concurrent use.
type Generator struct {
	rnd *rand.Rand
}

// NewGenerator returns a generator seeded with seed, so batches can be
// reproduced.
func NewGenerator(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// BuildBatch returns count items with random alphanumeric keys of keySize
// characters and random values of valueSize bytes.
func (g *Generator) BuildBatch(count, keySize, valueSize int) []batchkv.Item {
	items := make([]batchkv.Item, count)
	for i := range items {
		key := make([]byte, keySize)
		for j := range key {
			key[j] = alphanumeric[g.rnd.Intn(len(alphanumeric))]
		}
		value := make([]byte, valueSize)
		g.rnd.Read(value)

		items[i] = batchkv.Item{Key: string(key), Value: value}
	}
	return items
}

// BuildBatch is Generator.BuildBatch with a time based seed.
func BuildBatch(count, keySize, valueSize int) []batchkv.Item {
	return NewGenerator(time.Now().UnixNano()).BuildBatch(count, keySize, valueSize)
}

// Record is a structured value stored msgpack encoded under its ID. It is
// packed as a four element array with the ID as a uuid extension.
type Record struct {
	ID        uuid.UUID
	Seq       uint64
	CreatedAt int64
	Payload   []byte
}

func (r *Record) EncodeMsgpack(e *msgpack.Encoder) error {
	if err := e.EncodeSliceLen(4); err != nil {
		return err
	}
	if err := codec.EncodeUUID(e, r.ID); err != nil {
		return err
	}
	if err := e.EncodeUint64(r.Seq); err != nil {
		return err
	}
	if err := e.EncodeInt64(r.CreatedAt); err != nil {
		return err
	}
	return e.EncodeBytes(r.Payload)
}

func (r *Record) DecodeMsgpack(d *msgpack.Decoder) error {
	var err error
	var l int
	if l, err = d.DecodeSliceLen(); err != nil {
		return err
	}
	if l != 4 {
		return fmt.Errorf("array len doesn't match: %d", l)
	}
	if r.ID, err = codec.DecodeUUID(d); err != nil {
		return err
	}
	if r.Seq, err = d.DecodeUint64(); err != nil {
		return err
	}
	if r.CreatedAt, err = d.DecodeInt64(); err != nil {
		return err
	}
	r.Payload, err = d.DecodeBytes()
	return err
}

// Key returns the key the record is stored under.
func (r Record) Key(prefix string) string {
	return prefix + r.ID.String()
}

// BuildRecords returns count msgpack encoded records with random payloads
// of payloadSize bytes, keyed by prefix plus the record UUID.
func (g *Generator) BuildRecords(prefix string, count, payloadSize int) ([]batchkv.Item, error) {
	now := time.Now().Unix()
	items := make([]batchkv.Item, count)
	for i := range items {
		id, err := uuid.NewRandomFromReader(g.rnd)
		if err != nil {
			return nil, err
		}

		rec := Record{ID: id, Seq: uint64(i), CreatedAt: now, Payload: make([]byte, payloadSize)}
		g.rnd.Read(rec.Payload)

		value, err := codec.Marshal(&rec)
		if err != nil {
			return nil, err
		}
		items[i] = batchkv.Item{Key: rec.Key(prefix), Value: value}
	}
	return items, nil
}

// SequentialKeys returns count items keyed prefix0, prefix1, ... with the
// same value. Useful when keys must be predictable.
func SequentialKeys(prefix string, count int, value []byte) []batchkv.Item {
	items := make([]batchkv.Item, count)
	for i := range items {
		items[i] = batchkv.Item{Key: prefix + strconv.Itoa(i), Value: value}
	}
	return items
}
