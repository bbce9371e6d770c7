package test_helpers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/batchkv/go-batchkv"
	"github.com/batchkv/go-batchkv/connection_pool"
)

// ConcurrencyTracker records how many pipelines run at the same time
// across a set of fake connections.
type ConcurrencyTracker struct {
	cur int32
	max int32
}

func (t *ConcurrencyTracker) enter() {
	if t == nil {
		return
	}
	cur := atomic.AddInt32(&t.cur, 1)
	for {
		max := atomic.LoadInt32(&t.max)
		if cur <= max || atomic.CompareAndSwapInt32(&t.max, max, cur) {
			return
		}
	}
}

func (t *ConcurrencyTracker) leave() {
	if t == nil {
		return
	}
	atomic.AddInt32(&t.cur, -1)
}

// Max returns the highest number of pipelines seen in flight.
func (t *ConcurrencyTracker) Max() int {
	return int(atomic.LoadInt32(&t.max))
}

// FakeConn is a pool connection that executes nothing. It records the
// pipelines it was given and whether it was ever used by two callers at
// once.
type FakeConn struct {
	ID int

	// Delay is slept inside every ExecPipeline.
	Delay time.Duration

	// Fail decides the result of a pipeline. Nil means success.
	Fail func(p *batchkv.Pipeline) error

	tracker *ConcurrencyTracker

	inUse    int32
	overlaps int32
	closed   int32

	mu       sync.Mutex
	executed []*batchkv.Pipeline
}

func (c *FakeConn) ExecPipeline(_ context.Context, p *batchkv.Pipeline) error {
	if atomic.AddInt32(&c.inUse, 1) > 1 {
		atomic.AddInt32(&c.overlaps, 1)
	}
	defer atomic.AddInt32(&c.inUse, -1)

	c.tracker.enter()
	defer c.tracker.leave()

	if c.Delay > 0 {
		time.Sleep(c.Delay)
	}

	c.mu.Lock()
	c.executed = append(c.executed, p)
	c.mu.Unlock()

	if c.Fail != nil {
		return c.Fail(p)
	}
	return nil
}

func (c *FakeConn) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return fmt.Errorf("fake conn %d closed twice", c.ID)
	}
	return nil
}

// Executed returns the pipelines run on the connection in order.
func (c *FakeConn) Executed() []*batchkv.Pipeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*batchkv.Pipeline(nil), c.executed...)
}

// Overlaps returns how many times the connection was entered while
// already in use. Anything but zero breaks pool exclusivity.
func (c *FakeConn) Overlaps() int {
	return int(atomic.LoadInt32(&c.overlaps))
}

func (c *FakeConn) Closed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// NewFakeConns returns n fake connections sharing tracker, which may be
// nil.
func NewFakeConns(n int, tracker *ConcurrencyTracker) []*FakeConn {
	conns := make([]*FakeConn, n)
	for i := range conns {
		conns[i] = &FakeConn{ID: i, tracker: tracker}
	}
	return conns
}

// NewFakePool builds a pool over fakes.
func NewFakePool(fakes []*FakeConn, opts connection_pool.OptsPool) (*connection_pool.ConnectionPool, error) {
	conns := make([]connection_pool.Conn, len(fakes))
	for i, fake := range fakes {
		conns[i] = fake
	}
	return connection_pool.NewWithConns(conns, opts)
}

// ExecutedPipelines returns every pipeline run on fakes, in no
// particular order.
func ExecutedPipelines(fakes []*FakeConn) []*batchkv.Pipeline {
	var all []*batchkv.Pipeline
	for _, fake := range fakes {
		all = append(all, fake.Executed()...)
	}
	return all
}

// FailOnItems fails every pipeline built from exactly n items.
func FailOnItems(n int, err error) func(p *batchkv.Pipeline) error {
	return func(p *batchkv.Pipeline) error {
		if p.Items() == n {
			return err
		}
		return nil
	}
}

// CompareValues checks that every item is stored on srv with its value.
func CompareValues(srv *miniredis.Miniredis, items []batchkv.Item) error {
	for _, it := range items {
		actual, err := srv.Get(it.Key)
		if err != nil {
			return fmt.Errorf("Failed to get %q: %s", it.Key, err)
		}
		if actual != string(it.Value) {
			return fmt.Errorf("Unexpected value of %q, expected: %q actual: %q", it.Key, it.Value, actual)
		}
	}
	return nil
}

// CompareTTLs checks that every item expires in ttl, give or take
// tolerance. A zero ttl expects no expiry at all.
func CompareTTLs(srv *miniredis.Miniredis, items []batchkv.Item, ttl, tolerance time.Duration) error {
	for _, it := range items {
		actual := srv.TTL(it.Key)
		if ttl == 0 {
			if actual != 0 {
				return fmt.Errorf("Unexpected ttl of %q, expected none actual: %s", it.Key, actual)
			}
			continue
		}
		if actual > ttl+tolerance || actual < ttl-tolerance {
			return fmt.Errorf("Unexpected ttl of %q, expected: %s actual: %s", it.Key, ttl, actual)
		}
	}
	return nil
}
