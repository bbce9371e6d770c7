package connection_pool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/batchkv/go-batchkv"
	"github.com/batchkv/go-batchkv/metrics"
)

var (
	ErrEmptyPool  = errors.New("pool should have at least one connection")
	ErrPoolClosed = &batchkv.ClientError{Code: batchkv.ErrCodeClosed, Msg: "pool is closed"}
)

// Conn is a connection that can be lent out by the pool.
type Conn interface {
	batchkv.Executor
	Close() error
}

// OptsPool holds optional collaborators of a pool and its client.
type OptsPool struct {
	// Logger receives pool and dispatch events. Nil means slog.Default().
	Logger *slog.Logger
	// Metrics records slot acquisitions and chunk outcomes. May be nil.
	Metrics *metrics.Metrics
}

func (opts OptsPool) logger() *slog.Logger {
	if opts.Logger == nil {
		return slog.Default()
	}
	return opts.Logger
}

type slot struct {
	mu   sync.Mutex
	conn Conn
}

// ConnectionPool is a fixed set of connections, each guarded by its own
// lock. A lent connection is used by exactly one caller at a time.
type ConnectionPool struct {
	addr  string
	slots []*slot
	rr    *RoundRobinStrategy
	opts  OptsPool
	state uint32
}

// Connect opens poolCfg.Normalize().PoolSize connections to cfg. Any
// connect failure closes the connections opened so far and is returned;
// there is no partially filled pool.
func Connect(ctx context.Context, cfg batchkv.ConnectionConfig, poolCfg batchkv.PoolConfig, opts OptsPool) (*ConnectionPool, error) {
	size := poolCfg.Normalize().PoolSize

	conns := make([]Conn, 0, size)
	for i := 0; i < size; i++ {
		conn, err := batchkv.Connect(ctx, cfg)
		if err != nil {
			for _, c := range conns {
				_ = c.Close()
			}
			opts.logger().Error("pool connect failed", "addr", cfg.Addr(), "opened", i, "size", size, "err", err)
			return nil, err
		}
		conns = append(conns, conn)
	}

	connPool, err := NewWithConns(conns, opts)
	if err != nil {
		return nil, err
	}
	connPool.addr = cfg.Addr()
	return connPool, nil
}

// NewWithConns builds a pool over already opened connections. The pool
// takes ownership of them.
func NewWithConns(conns []Conn, opts OptsPool) (*ConnectionPool, error) {
	if len(conns) == 0 {
		return nil, ErrEmptyPool
	}

	slots := make([]*slot, len(conns))
	for i, conn := range conns {
		slots[i] = &slot{conn: conn}
	}

	return &ConnectionPool{
		slots: slots,
		rr:    NewRoundRobin(len(slots)),
		opts:  opts,
	}, nil
}

// Size returns the number of pooled connections.
func (connPool *ConnectionPool) Size() int {
	return len(connPool.slots)
}

// Addr returns the address the pool was connected to, empty for pools
// built with NewWithConns.
func (connPool *ConnectionPool) Addr() string {
	return connPool.addr
}

// WithConnection runs op on one exclusively held connection and returns
// op's result. The connection is given back on every path.
//
// The slot is picked by scanning from the next round robin offset and
// taking the first one that can be locked without waiting. When every
// slot is busy the caller waits on the slot at the start offset.
func (connPool *ConnectionPool) WithConnection(ctx context.Context, op func(ctx context.Context, conn batchkv.Executor) error) error {
	if connPool.getState() == connClosed {
		return ErrPoolClosed
	}

	s := connPool.acquire()
	defer connPool.release(s)

	// Close may have taken and closed this slot while we waited for it.
	if connPool.getState() == connClosed {
		return ErrPoolClosed
	}
	return op(ctx, s.conn)
}

func (connPool *ConnectionPool) acquire() *slot {
	start := connPool.rr.NextIndex()

	for _, idx := range connPool.rr.Order(start) {
		if s := connPool.slots[idx]; s.mu.TryLock() {
			connPool.opts.Metrics.ObserveAcquire(metrics.AcquireTry)
			return s
		}
	}

	s := connPool.slots[start]
	s.mu.Lock()
	connPool.opts.Metrics.ObserveAcquire(metrics.AcquireFallback)
	return s
}

func (connPool *ConnectionPool) release(s *slot) {
	s.mu.Unlock()
	connPool.opts.Metrics.ObserveRelease()
}

// Close waits for every lent connection to come back and closes all of
// them. It returns one entry per connection.
func (connPool *ConnectionPool) Close() []error {
	if !atomic.CompareAndSwapUint32(&connPool.state, connConnected, connClosed) {
		return []error{ErrPoolClosed}
	}

	errs := make([]error, len(connPool.slots))
	for i, s := range connPool.slots {
		s.mu.Lock()
		errs[i] = s.conn.Close()
		s.mu.Unlock()
	}
	return errs
}

func (connPool *ConnectionPool) getState() uint32 {
	return atomic.LoadUint32(&connPool.state)
}
