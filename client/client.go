// Package client selects between the unpooled and the pooled write path
// and returns it behind the batchkv.Client interface.
package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/batchkv/go-batchkv"
	"github.com/batchkv/go-batchkv/connection_pool"
	"github.com/batchkv/go-batchkv/metrics"
)

type Kind int

const (
	// KindPooled writes chunks in parallel over a connection pool.
	KindPooled Kind = iota
	// KindUnpooled writes chunks one after another over one connection.
	KindUnpooled
)

func (k Kind) String() string {
	switch k {
	case KindPooled:
		return "pooled"
	case KindUnpooled:
		return "unpooled"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind accepts "pooled" and "unpooled".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "pooled":
		return KindPooled, nil
	case "unpooled":
		return KindUnpooled, nil
	}
	return 0, fmt.Errorf("unknown client kind %q", s)
}

type Config struct {
	Kind Kind
	Conn batchkv.ConnectionConfig
	// Pool is used in full by KindPooled; KindUnpooled only reads
	// BatchSize.
	Pool batchkv.PoolConfig

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Describe returns a one line summary of the effective parameters.
func (cfg Config) Describe() string {
	pool := cfg.Pool.Normalize()
	if cfg.Kind == KindUnpooled {
		return fmt.Sprintf("%s batch_size: %d", cfg.Kind, pool.BatchSize)
	}
	return fmt.Sprintf("%s batch_size: %d, write_parallelism: %d, write_connection_pool_size: %d",
		cfg.Kind, pool.BatchSize, pool.WriteParallelism, pool.PoolSize)
}

// New opens the client selected by cfg.Kind.
func New(ctx context.Context, cfg Config) (batchkv.Client, error) {
	switch cfg.Kind {
	case KindUnpooled:
		c, err := batchkv.NewUnpooled(ctx, cfg.Conn, cfg.Pool.Normalize().BatchSize, batchkv.Opts{Logger: cfg.Logger})
		if err != nil {
			return nil, err
		}
		return c, nil
	case KindPooled:
		c, err := connection_pool.NewClient(ctx, cfg.Conn, cfg.Pool, connection_pool.OptsPool{
			Logger:  cfg.Logger,
			Metrics: cfg.Metrics,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, &batchkv.ClientError{Code: batchkv.ErrCodeConfig, Msg: "unknown client kind " + cfg.Kind.String()}
}

// Factory creates pooled clients from one stored config, e.g. one per
// benchmark run.
type Factory struct {
	Conn    batchkv.ConnectionConfig
	Pool    batchkv.PoolConfig
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (f Factory) Create(ctx context.Context) (*connection_pool.Client, error) {
	return connection_pool.NewClient(ctx, f.Conn, f.Pool, connection_pool.OptsPool{
		Logger:  f.Logger,
		Metrics: f.Metrics,
	})
}
