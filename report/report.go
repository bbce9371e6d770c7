// Package report turns timed write operations into throughput figures and
// prints them.
package report

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/batchkv/go-batchkv"
)

// Observation is the outcome of one timed operation.
type Observation struct {
	Op      string
	Items   int
	Bytes   int64
	Elapsed time.Duration
	Err     error
}

// Measure runs fn once and observes it as writing items.
func Measure(op string, items []batchkv.Item, fn func() error) Observation {
	started := time.Now()
	err := fn()
	return Observation{
		Op:      op,
		Items:   len(items),
		Bytes:   Summarize(items).TotalBytes(),
		Elapsed: time.Since(started),
		Err:     err,
	}
}

func perSecond(n int64, elapsed time.Duration) decimal.Decimal {
	if elapsed <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(n).
		Mul(decimal.NewFromInt(int64(time.Second))).
		Div(decimal.NewFromInt(int64(elapsed))).
		Round(2)
}

// ItemsPerSecond is zero for an instant observation.
func (o Observation) ItemsPerSecond() decimal.Decimal {
	return perSecond(int64(o.Items), o.Elapsed)
}

func (o Observation) BytesPerSecond() decimal.Decimal {
	return perSecond(o.Bytes, o.Elapsed)
}

func (o Observation) String() string {
	status := "ok"
	if o.Err != nil {
		status = "error: " + o.Err.Error()
	}
	bps := o.BytesPerSecond().IntPart()
	if bps < 0 {
		bps = 0
	}
	return fmt.Sprintf("%s: %d items in %s (%s items/s, %s/s) %s",
		o.Op, o.Items, o.Elapsed.Round(time.Microsecond), o.ItemsPerSecond().StringFixed(2),
		humanize.Bytes(uint64(bps)), status)
}

// Sink consumes observations.
type Sink interface {
	Report(o Observation)
}

// TextSink writes one line per observation.
type TextSink struct {
	W io.Writer
}

func (s TextSink) Report(o Observation) {
	fmt.Fprintln(s.W, o.String())
}

// Collector keeps observations in memory. It is safe for concurrent use.
type Collector struct {
	mu  sync.Mutex
	obs []Observation
}

func (c *Collector) Report(o Observation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.obs = append(c.obs, o)
}

func (c *Collector) Observations() []Observation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Observation(nil), c.obs...)
}

// Total folds the observations of op into one: items, bytes and elapsed
// are summed, Err is the first error seen.
func (c *Collector) Total(op string) Observation {
	total := Observation{Op: op}
	for _, o := range c.Observations() {
		if o.Op != op {
			continue
		}
		total.Items += o.Items
		total.Bytes += o.Bytes
		total.Elapsed += o.Elapsed
		if total.Err == nil {
			total.Err = o.Err
		}
	}
	return total
}

// Summary describes the size of a batch.
type Summary struct {
	Items      int
	KeyBytes   int64
	ValueBytes int64
}

func Summarize(items []batchkv.Item) Summary {
	s := Summary{Items: len(items)}
	for _, it := range items {
		s.KeyBytes += int64(len(it.Key))
		s.ValueBytes += int64(len(it.Value))
	}
	return s
}

func (s Summary) TotalBytes() int64 {
	return s.KeyBytes + s.ValueBytes
}

func (s Summary) average(n int64) decimal.Decimal {
	if s.Items == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(n).Div(decimal.NewFromInt(int64(s.Items))).Round(2)
}

func (s Summary) AvgKeyBytes() decimal.Decimal   { return s.average(s.KeyBytes) }
func (s Summary) AvgValueBytes() decimal.Decimal { return s.average(s.ValueBytes) }
func (s Summary) AvgItemBytes() decimal.Decimal  { return s.average(s.TotalBytes()) }

// Print prints the batch description shown before a run.
func (s Summary) Print(w io.Writer, clientDesc string) {
	fmt.Fprintf(w, "Total number of items: %d\n", s.Items)
	fmt.Fprintf(w, "Using %s\n", clientDesc)
	fmt.Fprintf(w, "Total size of keys: %s, average size: %s bytes\n",
		humanize.Bytes(uint64(s.KeyBytes)), s.AvgKeyBytes().String())
	fmt.Fprintf(w, "Total size of values: %s, average size: %s bytes\n",
		humanize.Bytes(uint64(s.ValueBytes)), s.AvgValueBytes().String())
	fmt.Fprintf(w, "Total size of items: %s, average size: %s bytes\n",
		humanize.Bytes(uint64(s.TotalBytes())), s.AvgItemBytes().String())
}
