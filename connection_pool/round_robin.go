package connection_pool

import (
	"sync/atomic"
)

// RoundRobinStrategy hands out scan start offsets over a fixed number of
// slots. The counter is shared by all callers and wraps at the slot count.
type RoundRobinStrategy struct {
	size    int
	current atomic.Uint64
}

func NewRoundRobin(size int) *RoundRobinStrategy {
	return &RoundRobinStrategy{size: size}
}

func (r *RoundRobinStrategy) Size() int {
	return r.size
}

func (r *RoundRobinStrategy) IsEmpty() bool {
	return r.size == 0
}

// NextIndex reads and increments the counter and returns the value read,
// modulo the slot count.
func (r *RoundRobinStrategy) NextIndex() int {
	return int((r.current.Add(1) - 1) % uint64(r.size))
}

// Order returns the slot indices to try starting at start, e.g. for size 4
// and start 2: 2, 3, 0, 1.
func (r *RoundRobinStrategy) Order(start int) []int {
	order := make([]int, r.size)
	for offset := range order {
		order[offset] = (start + offset) % r.size
	}
	return order
}
