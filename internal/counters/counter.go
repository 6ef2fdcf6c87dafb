// Package counters contains byte counters and the registry that sweeps them.
package counters

import (
	"sync/atomic"
)

// Counter is a byte counter attached to one data-flow point.
// Add can be called concurrently from any number of goroutines;
// the interval snapshot is owned by the Registry that sweeps it.
type Counter struct {
	total    atomic.Uint64
	snapshot uint64
}

// Add records n bytes.
func (c *Counter) Add(n int) {
	if n > 0 {
		c.total.Add(uint64(n))
	}
}

// Total returns the lifetime total.
func (c *Counter) Total() uint64 {
	return c.total.Load()
}

// sweep returns the bytes recorded since the previous sweep and moves the snapshot.
// Bytes added after the load are reported by the next sweep.
func (c *Counter) sweep() (uint64, uint64) {
	total := c.total.Load()
	rate := total - c.snapshot
	c.snapshot = total
	return total, rate
}
