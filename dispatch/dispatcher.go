// Package dispatch splits a batch into chunks, encodes each chunk as a
// pipeline and runs the pipelines with bounded parallelism over borrowed
// connections.
//
// Every dispatched chunk runs exactly once, whatever happens to its
// siblings. The call returns only after all chunks are terminal and
// reports the first failure in completion order.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/batchkv/go-batchkv"
	"github.com/batchkv/go-batchkv/metrics"
)

// Runner lends one connection for the duration of op.
type Runner interface {
	WithConnection(ctx context.Context, op func(ctx context.Context, conn batchkv.Executor) error) error
}

// Outcome is the terminal state of one chunk.
type Outcome struct {
	// Chunk is the position of the chunk in the batch.
	Chunk   int
	Len     int
	Elapsed time.Duration
	Err     error
}

func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger for chunk progress and failures.
func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// WithMetrics records chunk outcomes into m. A nil m records nothing.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithClock replaces the clock sampled once per chunk for its expiry base.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// Dispatcher writes batches chunk by chunk over a Runner.
type Dispatcher struct {
	runner      Runner
	batchSize   int
	parallelism int
	log         *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// New creates a dispatcher over runner. cfg is normalized first, so a
// parallelism below 1 runs chunks one at a time.
func New(runner Runner, cfg batchkv.PoolConfig, opts ...Option) *Dispatcher {
	cfg = cfg.Normalize()
	d := &Dispatcher{
		runner:      runner,
		batchSize:   cfg.BatchSize,
		parallelism: cfg.WriteParallelism,
		log:         slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// BatchSize returns the chunk size cap.
func (d *Dispatcher) BatchSize() int {
	return d.batchSize
}

// Parallelism returns the maximum number of chunks in flight.
func (d *Dispatcher) Parallelism() int {
	return d.parallelism
}

// Execute writes items and returns nil or the first chunk failure.
func (d *Dispatcher) Execute(ctx context.Context, op string, items []batchkv.Item, ttl time.Duration, build batchkv.Builder) error {
	_, err := d.Run(ctx, op, items, ttl, build)
	return err
}

// Run is Execute returning the outcome of every chunk, indexed by chunk
// position.
//
// Chunks already handed to a connection run under a context that is never
// cancelled, so abandoning ctx cannot leave a slot locked or a pipeline
// half sent. Once ctx is done no further chunk is dispatched, including
// one already waiting for a place in flight; those chunks get ctx.Err()
// as outcome, which is reported only when no dispatched chunk failed.
func (d *Dispatcher) Run(ctx context.Context, op string, items []batchkv.Item, ttl time.Duration, build batchkv.Builder) ([]Outcome, error) {
	chunks := batchkv.Chunks(items, d.batchSize)
	if len(chunks) == 0 {
		return nil, nil
	}

	outcomes := make([]Outcome, len(chunks))
	jobCtx := context.WithoutCancel(ctx)

	inflight := make(chan struct{}, d.parallelism)

	var g errgroup.Group
	var abandoned error
	for i, chunk := range chunks {
		if !admit(ctx, inflight) {
			abandoned = d.abandon(op, outcomes, chunks, i, ctx.Err())
			break
		}

		d.log.Debug("executing pipeline", "op", op, "items", len(chunk))
		pipeline := build(chunk, d.now(), ttl)

		idx := i
		g.Go(func() error {
			defer func() { <-inflight }()
			outcomes[idx] = d.runChunk(jobCtx, op, idx, pipeline)
			if err := outcomes[idx].Err; err != nil {
				return &batchkv.ChunkError{Op: op, Len: outcomes[idx].Len, Err: err}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, abandoned
}

// admit waits for a free place among the chunks in flight. It reports
// false once ctx is done, even when a place freed up at the same time.
func admit(ctx context.Context, inflight chan struct{}) bool {
	select {
	case inflight <- struct{}{}:
		if ctx.Err() != nil {
			<-inflight
			return false
		}
		return true
	case <-ctx.Done():
		return false
	}
}

func (d *Dispatcher) runChunk(ctx context.Context, op string, idx int, pipeline *batchkv.Pipeline) Outcome {
	started := time.Now()
	err := d.runner.WithConnection(ctx, func(ctx context.Context, conn batchkv.Executor) error {
		return conn.ExecPipeline(ctx, pipeline)
	})

	o := Outcome{Chunk: idx, Len: pipeline.Items(), Elapsed: time.Since(started), Err: err}
	d.metrics.ObserveChunk(op, o.Len, o.Elapsed, err)

	if err != nil {
		d.log.Warn("failed to sync items", "items", o.Len, "op", op, "err", err)
	} else {
		d.log.Debug("executed pipeline", "op", op, "items", o.Len, "ms", o.Elapsed.Milliseconds())
	}
	return o
}

// abandon marks chunks[from:] as never dispatched.
func (d *Dispatcher) abandon(op string, outcomes []Outcome, chunks [][]batchkv.Item, from int, cause error) error {
	left := 0
	for j := from; j < len(chunks); j++ {
		outcomes[j] = Outcome{Chunk: j, Len: len(chunks[j]), Err: cause}
		left += len(chunks[j])
	}
	d.log.Warn("batch abandoned before dispatch", "op", op, "chunks", len(chunks)-from, "items", left, "err", cause)
	return &batchkv.ChunkError{Op: op, Len: left, Err: cause}
}
