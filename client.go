package batchkv

import (
	"context"
	"time"
)

// Client is the write path exposed to callers. It is implemented by
// UnpooledClient and by the pooled client in package connection_pool.
type Client interface {
	// Ping checks the shared connection and returns the reply.
	Ping(ctx context.Context) (string, error)

	// MultiGet reads keys with one MGET. Missing keys give nil values.
	MultiGet(ctx context.Context, keys ...string) ([][]byte, error)

	// MultiSet writes items with MSET, one command per chunk.
	MultiSet(ctx context.Context, items []Item) error

	// PipelinedMultiSetWithExpiry writes every chunk as MSET followed by
	// EXPIREAT per key.
	PipelinedMultiSetWithExpiry(ctx context.Context, items []Item, ttl time.Duration) error

	// PipelinedSetWithExpiry writes every item as SET ... EXAT built
	// through the typed option.
	PipelinedSetWithExpiry(ctx context.Context, items []Item, ttl time.Duration) error

	// PipelinedSetWithExpiryManual writes every item as SET ... EXAT with
	// the expiry appended as raw arguments.
	PipelinedSetWithExpiryManual(ctx context.Context, items []Item, ttl time.Duration) error

	// ServerAddr returns the address of the store.
	ServerAddr() string

	Close() error
}
