package batchkv

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Executor runs a built pipeline against the store.
type Executor interface {
	ExecPipeline(ctx context.Context, p *Pipeline) error
}

// Conn is a single physical connection to the store. It is safe for
// concurrent use; concurrent callers are serialized on the connection.
type Conn struct {
	cfg ConnectionConfig
	rdb *redis.Client
}

// Connect opens one connection described by cfg and checks it with PING.
// Any failure is returned as a ClientError with ErrCodeConnect.
func Connect(ctx context.Context, cfg ConnectionConfig) (*Conn, error) {
	rdb := redis.NewClient(cfg.redisOptions())
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, connectError(cfg.Addr(), err)
	}
	return &Conn{cfg: cfg, rdb: rdb}, nil
}

// Addr returns the address of the store the connection points to.
func (conn *Conn) Addr() string {
	return conn.cfg.Addr()
}

// Config returns the config the connection was opened from.
func (conn *Conn) Config() ConnectionConfig {
	return conn.cfg
}

// Ping sends PING and returns the reply, normally "PONG".
func (conn *Conn) Ping(ctx context.Context) (string, error) {
	return conn.rdb.Ping(ctx).Result()
}

// MGet fetches keys with a single MGET. Missing keys are nil entries.
func (conn *Conn) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if len(keys) == 0 {
		return [][]byte{}, nil
	}
	reply, err := conn.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	return valuesFromReply(reply)
}

// MSet writes items with a single MSET.
func (conn *Conn) MSet(ctx context.Context, items []Item) error {
	return conn.rdb.MSet(ctx, msetCommand(items).args[1:]...).Err()
}

// ExecPipeline sends all commands of p in one round trip and returns the
// first command error, if any.
func (conn *Conn) ExecPipeline(ctx context.Context, p *Pipeline) error {
	_, err := conn.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		p.queue(ctx, pipe)
		return nil
	})
	return err
}

// Close closes the connection.
func (conn *Conn) Close() error {
	return conn.rdb.Close()
}
