package connection_pool_test

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batchkv/go-batchkv"
	"github.com/batchkv/go-batchkv/connection_pool"
	"github.com/batchkv/go-batchkv/metrics"
	"github.com/batchkv/go-batchkv/test_helpers"
	"github.com/batchkv/go-batchkv/workload"
)

var inst *test_helpers.ServerInstance

var poolCfg = batchkv.PoolConfig{
	BatchSize:        10,
	WriteParallelism: 4,
	PoolSize:         4,
}

const ttl = 300 * time.Second

func noop(context.Context, batchkv.Executor) error { return nil }

func TestConnError_IncorrectParams(t *testing.T) {
	connPool, err := connection_pool.NewWithConns(nil, connection_pool.OptsPool{})
	assert.Nil(t, connPool)
	assert.Equal(t, connection_pool.ErrEmptyPool, err)

	cfg := batchkv.ConnectionConfig{Host: "127.0.0.1", Port: 1, DialTimeout: 200 * time.Millisecond}
	connPool, err = connection_pool.Connect(context.Background(), cfg, poolCfg, connection_pool.OptsPool{})
	assert.Nil(t, connPool, "pool is not nil with incorrect params")
	assert.Error(t, err)

	client, err := connection_pool.NewClient(context.Background(), cfg, poolCfg, connection_pool.OptsPool{})
	assert.Nil(t, client, "client is not nil with incorrect params")
	assert.Error(t, err)
}

func TestConnSuccessfully(t *testing.T) {
	connPool, err := connection_pool.Connect(context.Background(), inst.ConnConfig(),
		batchkv.PoolConfig{WriteParallelism: 3, PoolSize: 1}, connection_pool.OptsPool{})
	require.NoError(t, err, "Failed to connect")
	require.NotNil(t, connPool, "pool is nil after Connect")
	defer connPool.Close()

	assert.Equal(t, 3, connPool.Size(), "pool size is raised to the write parallelism")
	assert.Equal(t, inst.Addr(), connPool.Addr())
}

func TestRoundRobinStrategy(t *testing.T) {
	rr := connection_pool.NewRoundRobin(3)
	assert.False(t, rr.IsEmpty())
	assert.Equal(t, 3, rr.Size())

	var got []int
	for i := 0; i < 7; i++ {
		got = append(got, rr.NextIndex())
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0}, got)

	assert.Equal(t, []int{1, 2, 0}, rr.Order(1))
	assert.Equal(t, []int{2, 0, 1}, rr.Order(2))
	assert.True(t, connection_pool.NewRoundRobin(0).IsEmpty())
}

func TestRoundRobinStrategy_Concurrent(t *testing.T) {
	const size = 5
	const callers = 50
	rr := connection_pool.NewRoundRobin(size)

	counts := make([]int, size)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx := rr.NextIndex()
			mu.Lock()
			counts[idx]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for idx, n := range counts {
		assert.Equal(t, callers/size, n, "slot %d", idx)
	}
}

func TestWithConnection_Sequential(t *testing.T) {
	fakes := test_helpers.NewFakeConns(3, nil)
	connPool, err := test_helpers.NewFakePool(fakes, connection_pool.OptsPool{})
	require.NoError(t, err)

	p := batchkv.BuildMSet(workload.SequentialKeys("k", 1, nil), time.Now(), 0)
	for i := 0; i < 6; i++ {
		err := connPool.WithConnection(context.Background(), func(ctx context.Context, conn batchkv.Executor) error {
			return conn.ExecPipeline(ctx, p)
		})
		require.NoError(t, err)
	}

	for _, fake := range fakes {
		assert.Len(t, fake.Executed(), 2, "conn %d", fake.ID)
	}
}

func TestWithConnection_ReturnsOpError(t *testing.T) {
	fakes := test_helpers.NewFakeConns(2, nil)
	connPool, err := test_helpers.NewFakePool(fakes, connection_pool.OptsPool{})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = connPool.WithConnection(context.Background(), func(context.Context, batchkv.Executor) error {
		return boom
	})
	assert.Equal(t, boom, err)

	// The failed caller gave its slot back.
	for i := 0; i < 4; i++ {
		assert.NoError(t, connPool.WithConnection(context.Background(), noop))
	}
}

func TestWithConnection_Exclusive(t *testing.T) {
	const size = 4
	const callers = 32
	const calls = 20

	tracker := &test_helpers.ConcurrencyTracker{}
	fakes := test_helpers.NewFakeConns(size, tracker)
	for _, fake := range fakes {
		fake.Delay = 100 * time.Microsecond
	}
	m := metrics.New(nil)
	connPool, err := test_helpers.NewFakePool(fakes, connection_pool.OptsPool{Metrics: m})
	require.NoError(t, err)

	p := batchkv.BuildMSet(workload.SequentialKeys("k", 1, nil), time.Now(), 0)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				err := connPool.WithConnection(context.Background(), func(ctx context.Context, conn batchkv.Executor) error {
					return conn.ExecPipeline(ctx, p)
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	total := 0
	for _, fake := range fakes {
		assert.Zero(t, fake.Overlaps(), "conn %d was used concurrently", fake.ID)
		total += len(fake.Executed())
	}
	assert.Equal(t, callers*calls, total)
	assert.LessOrEqual(t, tracker.Max(), size)

	acquired := testutil.ToFloat64(m.Acquires.WithLabelValues(metrics.AcquireTry)) +
		testutil.ToFloat64(m.Acquires.WithLabelValues(metrics.AcquireFallback))
	assert.Equal(t, float64(callers*calls), acquired)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.SlotsInUse))
}

func TestWithConnection_FallbackWaits(t *testing.T) {
	fakes := test_helpers.NewFakeConns(1, nil)
	m := metrics.New(nil)
	connPool, err := test_helpers.NewFakePool(fakes, connection_pool.OptsPool{Metrics: m})
	require.NoError(t, err)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = connPool.WithConnection(context.Background(), func(context.Context, batchkv.Executor) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, connPool.WithConnection(context.Background(), noop))
	}()

	select {
	case <-done:
		t.Fatal("second caller got a slot that was held")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-done
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Acquires.WithLabelValues(metrics.AcquireFallback)))
}

func TestClose(t *testing.T) {
	fakes := test_helpers.NewFakeConns(3, nil)
	connPool, err := test_helpers.NewFakePool(fakes, connection_pool.OptsPool{})
	require.NoError(t, err)

	errs := connPool.Close()
	assert.Equal(t, []error{nil, nil, nil}, errs)
	for _, fake := range fakes {
		assert.True(t, fake.Closed(), "conn %d", fake.ID)
	}

	assert.Equal(t, connection_pool.ErrPoolClosed, connPool.WithConnection(context.Background(), noop))
	assert.Equal(t, []error{connection_pool.ErrPoolClosed}, connPool.Close())

	var clierr *batchkv.ClientError
	require.True(t, errors.As(connPool.WithConnection(context.Background(), noop), &clierr))
	assert.Equal(t, uint32(batchkv.ErrCodeClosed), clierr.Code)
}

func TestClose_WaitsForLentConnection(t *testing.T) {
	fakes := test_helpers.NewFakeConns(1, nil)
	connPool, err := test_helpers.NewFakePool(fakes, connection_pool.OptsPool{})
	require.NoError(t, err)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = connPool.WithConnection(context.Background(), func(context.Context, batchkv.Executor) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	closed := make(chan struct{})
	go func() {
		connPool.Close()
		close(closed)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, fakes[0].Closed(), "lent conn closed under its holder")

	close(release)
	<-closed
	assert.True(t, fakes[0].Closed())
}

func TestClose_WaiterGetsErrPoolClosed(t *testing.T) {
	fakes := test_helpers.NewFakeConns(1, nil)
	connPool, err := test_helpers.NewFakePool(fakes, connection_pool.OptsPool{})
	require.NoError(t, err)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = connPool.WithConnection(context.Background(), func(context.Context, batchkv.Executor) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	var ran int32
	waiterErr := make(chan error, 1)
	go func() {
		waiterErr <- connPool.WithConnection(context.Background(), func(context.Context, batchkv.Executor) error {
			atomic.AddInt32(&ran, 1)
			return nil
		})
	}()
	time.Sleep(50 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		connPool.Close()
		close(closed)
	}()
	time.Sleep(50 * time.Millisecond)

	close(release)
	<-closed
	assert.ErrorIs(t, <-waiterErr, connection_pool.ErrPoolClosed)
	assert.Equal(t, int32(0), atomic.LoadInt32(&ran), "op ran on a pool being closed")
}

func TestClient(t *testing.T) {
	ctx := context.Background()
	client, err := connection_pool.NewClient(ctx, inst.ConnConfig(), poolCfg, connection_pool.OptsPool{})
	require.NoError(t, err, "Failed to connect")
	defer client.Close()

	assert.Equal(t, inst.Addr(), client.ServerAddr())
	assert.Equal(t, 4, client.Pool().Size())

	cases := []struct {
		name  string
		write func(context.Context, []batchkv.Item) error
		ttl   time.Duration
	}{
		{"mset", client.MultiSet, 0},
		{"mset+expire", func(ctx context.Context, items []batchkv.Item) error {
			return client.PipelinedMultiSetWithExpiry(ctx, items, ttl)
		}, ttl},
		{"set+expiry", func(ctx context.Context, items []batchkv.Item) error {
			return client.PipelinedSetWithExpiry(ctx, items, ttl)
		}, ttl},
		{"manual set+expiry", func(ctx context.Context, items []batchkv.Item) error {
			return client.PipelinedSetWithExpiryManual(ctx, items, ttl)
		}, ttl},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inst.FlushAll()

			assert.NoError(t, tc.write(ctx, nil))
			assert.Empty(t, inst.Server.Keys(), "empty batch wrote keys")

			items := workload.NewGenerator(7).BuildBatch(95, 24, 16)
			require.NoError(t, tc.write(ctx, items))
			assert.NoError(t, test_helpers.CompareValues(inst.Server, items))
			assert.NoError(t, test_helpers.CompareTTLs(inst.Server, items, tc.ttl, 2*time.Second))

			values, err := client.MultiGet(ctx, batchkv.Keys(items[:3])...)
			require.NoError(t, err)
			for i, v := range values {
				assert.Equal(t, items[i].Value, v)
			}
		})
	}
}

func TestClient_PartialFailure(t *testing.T) {
	ctx := context.Background()
	shared, err := batchkv.Connect(ctx, inst.ConnConfig())
	require.NoError(t, err)

	boom := errors.New("boom")
	fakes := test_helpers.NewFakeConns(4, nil)
	for _, fake := range fakes {
		fake.Fail = test_helpers.FailOnItems(5, boom)
	}
	connPool, err := test_helpers.NewFakePool(fakes, connection_pool.OptsPool{})
	require.NoError(t, err)

	client := connection_pool.NewClientWithPool(shared, connPool, poolCfg, connection_pool.OptsPool{})
	defer client.Close()

	items := workload.SequentialKeys("partial:", 25, []byte("v"))
	err = client.PipelinedMultiSetWithExpiry(ctx, items, ttl)
	require.Error(t, err)

	var chunkErr *batchkv.ChunkError
	require.True(t, errors.As(err, &chunkErr), "unexpected error type %T", err)
	assert.Equal(t, 5, chunkErr.Len)
	assert.Equal(t, "mset+expire", chunkErr.Op)
	assert.ErrorIs(t, err, boom)

	executed := test_helpers.ExecutedPipelines(fakes)
	assert.Len(t, executed, 3, "every chunk runs exactly once")
	sizes := map[int]int{}
	for _, p := range executed {
		sizes[p.Items()]++
	}
	assert.Equal(t, map[int]int{10: 2, 5: 1}, sizes)
}

func TestPing(t *testing.T) {
	client, err := connection_pool.NewClient(context.Background(), inst.ConnConfig(), poolCfg, connection_pool.OptsPool{})
	require.NoError(t, err)
	defer client.Close()

	reply, err := client.Ping(context.Background())
	assert.NoError(t, err, "Failed to Ping")
	assert.Equal(t, "PONG", reply)
}

// runTestMain is a body of TestMain function
// (see https://pkg.go.dev/testing#hdr-Main).
// Using defer + os.Exit is not works so TestMain body
// is a separate function, see
// https://stackoverflow.com/questions/27629380/how-to-exit-a-go-program-honoring-deferred-calls
func runTestMain(m *testing.M) int {
	var err error
	inst, err = test_helpers.StartServer(test_helpers.StartOpts{
		ConnectRetry: 3,
		RetryTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("Failed to prepare test server: %s", err)
		return -1
	}
	defer test_helpers.StopServer(inst)

	return m.Run()
}

func TestMain(m *testing.M) {
	code := runTestMain(m)
	os.Exit(code)
}
