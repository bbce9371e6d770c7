package batchkv

import (
	"context"
	"log/slog"
	"time"
)

// UnpooledClient writes everything over one shared connection, one chunk
// at a time. It is the baseline the pooled client is measured against.
type UnpooledClient struct {
	conn      *Conn
	batchSize int
	log       *slog.Logger
}

var _ Client = (*UnpooledClient)(nil)

// NewUnpooled opens the shared connection. A connect failure is fatal and
// returned as is.
func NewUnpooled(ctx context.Context, cfg ConnectionConfig, batchSize int, opts Opts) (*UnpooledClient, error) {
	conn, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewUnpooledWithConn(conn, batchSize, opts), nil
}

// NewUnpooledWithConn builds the client over an already opened connection.
func NewUnpooledWithConn(conn *Conn, batchSize int, opts Opts) *UnpooledClient {
	if batchSize < 1 {
		batchSize = 1
	}
	return &UnpooledClient{
		conn:      conn,
		batchSize: batchSize,
		log:       opts.logger(),
	}
}

// BatchSize returns the effective chunk size.
func (c *UnpooledClient) BatchSize() int {
	return c.batchSize
}

func (c *UnpooledClient) Ping(ctx context.Context) (string, error) {
	return c.conn.Ping(ctx)
}

func (c *UnpooledClient) MultiGet(ctx context.Context, keys ...string) ([][]byte, error) {
	return c.conn.MGet(ctx, keys...)
}

// MultiSet writes items with one MSET when they fit a chunk, otherwise
// with one MSET per chunk in order. It stops at the first failed chunk.
func (c *UnpooledClient) MultiSet(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	if len(items) <= c.batchSize {
		return c.conn.MSet(ctx, items)
	}

	for _, chunk := range Chunks(items, c.batchSize) {
		if err := c.conn.MSet(ctx, chunk); err != nil {
			c.log.Info("failed to sync items", "items", len(chunk), "op", EncodingMSet.String(), "err", err)
			return &ChunkError{Op: EncodingMSet.String(), Len: len(chunk), Err: err}
		}
	}
	return nil
}

func (c *UnpooledClient) PipelinedMultiSetWithExpiry(ctx context.Context, items []Item, ttl time.Duration) error {
	return c.runSequential(ctx, EncodingMSetExpire, items, ttl)
}

func (c *UnpooledClient) PipelinedSetWithExpiry(ctx context.Context, items []Item, ttl time.Duration) error {
	return c.runSequential(ctx, EncodingSetWithExpiry, items, ttl)
}

func (c *UnpooledClient) PipelinedSetWithExpiryManual(ctx context.Context, items []Item, ttl time.Duration) error {
	return c.runSequential(ctx, EncodingSetWithExpiryManual, items, ttl)
}

// runSequential executes one pipeline per chunk, each to completion before
// the next is built.
func (c *UnpooledClient) runSequential(ctx context.Context, enc Encoding, items []Item, ttl time.Duration) error {
	build := enc.Builder()
	op := enc.String()

	for _, chunk := range Chunks(items, c.batchSize) {
		c.log.Debug("executing pipeline", "op", op, "items", len(chunk))
		started := time.Now()

		pipeline := build(chunk, time.Now(), ttl)
		if err := c.conn.ExecPipeline(ctx, pipeline); err != nil {
			c.log.Warn("failed to sync items", "items", len(chunk), "op", op, "err", err)
			return &ChunkError{Op: op, Len: len(chunk), Err: err}
		}

		c.log.Debug("executed pipeline", "op", op, "items", len(chunk),
			"ms", time.Since(started).Milliseconds())
	}
	return nil
}

func (c *UnpooledClient) ServerAddr() string {
	return c.conn.Addr()
}

func (c *UnpooledClient) Close() error {
	return c.conn.Close()
}
