package flashfs

import (
	bitmap "github.com/boljen/go-bitmap"
)

// allocator tracks which sectors are free and their wear (allocation
// counter), so the wear-levelled allocation of spec.md §4.1.3 can pick the
// global-minimum-counter free sector without rescanning the whole device.
//
// Grounded on dargueta-disko's drivers/common/allocatormap.go, which backs
// a block allocator with the same github.com/boljen/go-bitmap bitmap; here
// the bitmap only tracks free/used (a single bit per sector) while the
// allocation counters — the actual wear metric spec.md cares about — are
// kept in a parallel slice, since unlike disko's file system ours must
// select by minimum wear, not merely "first free".
type allocator struct {
	free    bitmap.Bitmap
	counter []uint32
}

func newAllocator(numSectors int) *allocator {
	return &allocator{
		free:    bitmap.New(numSectors),
		counter: make([]uint32, numSectors),
	}
}

func (a *allocator) markFree(sector int, counter uint32) {
	a.free.Set(sector, true)
	a.counter[sector] = counter
}

func (a *allocator) markUsed(sector int) {
	a.free.Set(sector, false)
}

func (a *allocator) isFree(sector int) bool {
	return a.free.Get(sector)
}

// pick returns the free sector with the smallest allocation counter,
// ties broken by lowest index (spec.md §4.1.3, tested by E5/property 4).
func (a *allocator) pick() (int, bool) {
	best := -1
	for i := 0; i < len(a.counter); i++ {
		if !a.free.Get(i) {
			continue
		}
		if best == -1 || a.counter[i] < a.counter[best] {
			best = i
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

func (a *allocator) freeCount() int {
	n := 0
	for i := 0; i < len(a.counter); i++ {
		if a.free.Get(i) {
			n++
		}
	}
	return n
}
