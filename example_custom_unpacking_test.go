package batchkv_test

import (
	"context"
	"fmt"
	"log"

	"gopkg.in/vmihailenco/msgpack.v2"

	"github.com/batchkv/go-batchkv"
)

// Attempt is one write attempt of a chunk. Note stays local and is not
// stored.
type Attempt struct {
	Op    string
	Note  string
	Items uint
}

// BatchLog packs itself as [run, source, attempts].
type BatchLog struct {
	Run      uint
	Source   string
	Attempts []Attempt
}

// BatchLogArray has the same layout, left to the msgpack struct tag.
type BatchLogArray struct {
	_msgpack struct{} `msgpack:",asArray"`

	Run      uint
	Source   string
	Attempts []Attempt
}

func (a *Attempt) EncodeMsgpack(e *msgpack.Encoder) error {
	if err := e.EncodeSliceLen(2); err != nil {
		return err
	}
	return e.Encode(a.Op, a.Items)
}

func (a *Attempt) DecodeMsgpack(d *msgpack.Decoder) error {
	l, err := d.DecodeSliceLen()
	if err != nil {
		return err
	}
	if l != 2 {
		return fmt.Errorf("attempt: want 2 fields, got %d", l)
	}
	return d.Decode(&a.Op, &a.Items)
}

func (b *BatchLog) EncodeMsgpack(e *msgpack.Encoder) error {
	if err := e.EncodeSliceLen(3); err != nil {
		return err
	}
	if err := e.Encode(b.Run, b.Source); err != nil {
		return err
	}
	if err := e.EncodeSliceLen(len(b.Attempts)); err != nil {
		return err
	}
	for i := range b.Attempts {
		if err := e.Encode(&b.Attempts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (b *BatchLog) DecodeMsgpack(d *msgpack.Decoder) error {
	l, err := d.DecodeSliceLen()
	if err != nil {
		return err
	}
	if l != 3 {
		return fmt.Errorf("batch log: want 3 fields, got %d", l)
	}
	if err = d.Decode(&b.Run, &b.Source); err != nil {
		return err
	}
	if l, err = d.DecodeSliceLen(); err != nil {
		return err
	}
	b.Attempts = make([]Attempt, l)
	for i := range b.Attempts {
		if err = d.Decode(&b.Attempts[i]); err != nil {
			return err
		}
	}
	return nil
}

// Example demonstrates how to store structured values and read them back
// typed.
//
// You can specify custom pack/unpack functions for your types. Alternatively,
// you can just instruct the `msgpack` library to encode your structure as an
// array. Both give the same bytes, so a value written one way can be read the
// other way.
func Example_customUnpacking() {
	client, err := example_connect()
	if err != nil {
		log.Fatalf("Failed to connect: %s", err.Error())
	}
	defer client.Close()

	ctx := context.Background()

	entry := BatchLog{Run: 42, Source: "ingest", Attempts: []Attempt{
		{Op: "mset", Note: "first try", Items: 10},
		{Op: "set+expiry", Items: 3},
	}}
	item, err := batchkv.NewItem("batchlog:42", &entry) // NOTE: store structure itself
	if err != nil {
		log.Fatalf("Failed to pack: %s", err.Error())
	}
	if err = client.MultiSet(ctx, []batchkv.Item{item}); err != nil {
		log.Fatalf("Failed to store: %s", err.Error())
	}

	values, err := client.MultiGet(ctx, "batchlog:42")
	if err != nil {
		log.Fatalf("Failed to MultiGet: %s", err.Error())
	}

	var custom BatchLog
	if err = batchkv.DecodeValue(values[0], &custom); err != nil {
		log.Fatalf("Failed to decode: %s", err.Error())
	}
	fmt.Println(custom.Run, custom.Source, custom.Attempts[1].Op, custom.Attempts[1].Items)

	// Same result through the struct tag, Note was never stored
	var tagged BatchLogArray
	if err = batchkv.DecodeValue(values[0], &tagged); err != nil {
		log.Fatalf("Failed to decode: %s", err.Error())
	}
	fmt.Println(tagged.Run, tagged.Source, len(tagged.Attempts), tagged.Attempts[0].Note == "")

	// Decode many values at once, missing keys stay nil
	values, err = client.MultiGet(ctx, "batchlog:42", "batchlog:43")
	if err != nil {
		log.Fatalf("Failed to MultiGet: %s", err.Error())
	}
	logs, err := batchkv.DecodeValues(values, func() interface{} { return &BatchLog{} })
	if err != nil {
		log.Fatalf("Failed to decode: %s", err.Error())
	}
	fmt.Println(logs[0].(*BatchLog).Attempts[0].Op, logs[1] == nil)
	// Output:
	// 42 ingest set+expiry 3
	// 42 ingest 2 true
	// mset true
}
