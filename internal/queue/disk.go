package queue

import (
	"sync"

	"thirdcoast.systems/relay/internal/metrics"
)

// diskTracker accounts scratch space reserved by in-flight jobs against a
// ceiling. A reservation larger than the ceiling is granted only when nothing
// else is reserved.
type diskTracker struct {
	mu      sync.Mutex
	ceiling int64
	used    int64
}

func newDiskTracker(ceiling int64) *diskTracker {
	return &diskTracker{ceiling: ceiling}
}

// resize moves a reservation from old to new bytes, or reports false and
// leaves it unchanged when new would not fit next to the others.
func (d *diskTracker) resize(old, new int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	others := d.used - old
	if new > old && others > 0 && others+new > d.ceiling {
		return false
	}
	d.used = others + new
	metrics.DiskReserved.Set(float64(d.used))
	return true
}

func (d *diskTracker) reserve(n int64) bool { return d.resize(0, n) }

func (d *diskTracker) release(n int64) { d.resize(n, 0) }

// Used returns the bytes currently reserved.
func (d *diskTracker) Used() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.used
}
