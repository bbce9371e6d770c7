package connection_pool

import (
	"context"
	"time"

	"github.com/batchkv/go-batchkv"
	"github.com/batchkv/go-batchkv/dispatch"
)

// Client writes batches through a ConnectionPool, running up to
// WriteParallelism chunk pipelines at once. Ping and MultiGet use a
// separate shared connection.
type Client struct {
	shared     *batchkv.Conn
	pool       *ConnectionPool
	dispatcher *dispatch.Dispatcher
	cfg        batchkv.PoolConfig
}

var _ batchkv.Client = (*Client)(nil)

// NewClient opens the shared connection and the pool. Either failing
// aborts construction.
func NewClient(ctx context.Context, cfg batchkv.ConnectionConfig, poolCfg batchkv.PoolConfig, opts OptsPool) (*Client, error) {
	poolCfg = poolCfg.Normalize()
	opts.logger().Debug("pool config", "batch_size", poolCfg.BatchSize,
		"write_parallelism", poolCfg.WriteParallelism, "pool_size", poolCfg.PoolSize)

	shared, err := batchkv.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	connPool, err := Connect(ctx, cfg, poolCfg, opts)
	if err != nil {
		_ = shared.Close()
		return nil, err
	}

	return NewClientWithPool(shared, connPool, poolCfg, opts), nil
}

// NewClientWithPool assembles a client from an opened shared connection
// and pool.
func NewClientWithPool(shared *batchkv.Conn, connPool *ConnectionPool, poolCfg batchkv.PoolConfig, opts OptsPool) *Client {
	poolCfg = poolCfg.Normalize()
	return &Client{
		shared: shared,
		pool:   connPool,
		dispatcher: dispatch.New(connPool, poolCfg,
			dispatch.WithLogger(opts.logger()),
			dispatch.WithMetrics(opts.Metrics)),
		cfg: poolCfg,
	}
}

// Config returns the effective pool config.
func (c *Client) Config() batchkv.PoolConfig {
	return c.cfg
}

// Pool returns the underlying connection pool.
func (c *Client) Pool() *ConnectionPool {
	return c.pool
}

func (c *Client) Ping(ctx context.Context) (string, error) {
	return c.shared.Ping(ctx)
}

func (c *Client) MultiGet(ctx context.Context, keys ...string) ([][]byte, error) {
	return c.shared.MGet(ctx, keys...)
}

// MultiSet writes one MSET per chunk, chunks in parallel.
func (c *Client) MultiSet(ctx context.Context, items []batchkv.Item) error {
	return c.write(ctx, batchkv.EncodingMSet, items, 0)
}

func (c *Client) PipelinedMultiSetWithExpiry(ctx context.Context, items []batchkv.Item, ttl time.Duration) error {
	return c.write(ctx, batchkv.EncodingMSetExpire, items, ttl)
}

func (c *Client) PipelinedSetWithExpiry(ctx context.Context, items []batchkv.Item, ttl time.Duration) error {
	return c.write(ctx, batchkv.EncodingSetWithExpiry, items, ttl)
}

func (c *Client) PipelinedSetWithExpiryManual(ctx context.Context, items []batchkv.Item, ttl time.Duration) error {
	return c.write(ctx, batchkv.EncodingSetWithExpiryManual, items, ttl)
}

func (c *Client) write(ctx context.Context, enc batchkv.Encoding, items []batchkv.Item, ttl time.Duration) error {
	return c.dispatcher.Execute(ctx, enc.String(), items, ttl, enc.Builder())
}

func (c *Client) ServerAddr() string {
	return c.shared.Addr()
}

// Close closes the pool, then the shared connection, and returns the
// first error met.
func (c *Client) Close() error {
	var first error
	for _, err := range c.pool.Close() {
		if err != nil && first == nil {
			first = err
		}
	}
	if err := c.shared.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
