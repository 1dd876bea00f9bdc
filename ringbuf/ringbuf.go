// Package ringbuf implements the bounded, fixed-slot ring buffers of
// spec.md §3.6: parameterized by (slot_size, slot_count), used for the
// transport TX queue (2 slots), RX queue (1 slot) and sensor-log staging
// (§4.5's callbacks write into it via Reserve/Commit).
//
// There are no locks (spec.md §4.3.6: "the main loop [is] the sole
// mutator"); a Ring is not safe for concurrent use.
package ringbuf

import "github.com/noxer/bytewriter"

// Ring is a fixed-capacity circular queue of fixed-size slots.
type Ring struct {
	slotSize int
	slots    [][]byte
	lens     []int // -1 for a free slot, else the committed length
	head     int   // index of the oldest committed slot
	tail     int   // index of the slot under reservation or next free
	count    int   // number of committed (unread) slots
	reserved bool
}

// New returns a Ring with slotCount slots of slotSize bytes each.
func New(slotSize, slotCount int) *Ring {
	r := &Ring{
		slotSize: slotSize,
		slots:    make([][]byte, slotCount),
		lens:     make([]int, slotCount),
	}
	for i := range r.slots {
		r.slots[i] = make([]byte, slotSize)
		r.lens[i] = -1
	}
	return r
}

// SlotWriter stages a record into a reserved slot. It wraps
// bytewriter.Writer so every write is bounds-checked against the slot's
// fixed capacity, matching spec.md §3.6's "&mut [u8; slot_size]".
type SlotWriter struct {
	w   *bytewriter.Writer
	buf []byte
	n   int
}

// Write appends p to the slot, failing with ErrSlotTooSmall rather than
// truncating silently if p would overflow the slot.
func (sw *SlotWriter) Write(p []byte) (int, error) {
	if sw.n+len(p) > len(sw.buf) {
		return 0, ErrSlotTooSmall
	}
	n, err := sw.w.Write(p)
	sw.n += n
	return n, err
}

// Len reports the bytes written so far, the value write_commit takes
// implicitly when the caller commits this exact writer.
func (sw *SlotWriter) Len() int { return sw.n }

// Reserve returns the next free slot to write into, or ErrFull if no
// slot is free or a reservation is already outstanding (spec.md §3.6
// "write_reserve() -> Option<&mut [u8; slot_size]>").
func (r *Ring) Reserve() (*SlotWriter, error) {
	if r.reserved || r.count == len(r.slots) {
		return nil, ErrFull
	}
	buf := r.slots[r.tail]
	r.reserved = true
	return &SlotWriter{w: bytewriter.New(buf), buf: buf}, nil
}

// Commit finalizes the outstanding reservation at the given length,
// making the slot available to Peek/Advance (spec.md §3.6
// "write_commit(len)"). sw must be the writer Reserve just returned.
func (r *Ring) Commit(sw *SlotWriter) error {
	if !r.reserved {
		return ErrEmpty
	}
	r.lens[r.tail] = sw.n
	r.tail = (r.tail + 1) % len(r.slots)
	r.count++
	r.reserved = false
	return nil
}

// Peek returns the oldest committed slot's live bytes without consuming
// it (spec.md §3.6 "read_peek() -> Option<(&[u8], len)>").
func (r *Ring) Peek() ([]byte, error) {
	if r.count == 0 {
		return nil, ErrEmpty
	}
	l := r.lens[r.head]
	return r.slots[r.head][:l], nil
}

// Advance discards the oldest committed slot (spec.md §3.6
// "read_advance()").
func (r *Ring) Advance() error {
	if r.count == 0 {
		return ErrEmpty
	}
	r.lens[r.head] = -1
	r.head = (r.head + 1) % len(r.slots)
	r.count--
	return nil
}

// Reset discards every committed slot and any outstanding reservation
// (spec.md §3.6 "reset()", §4.3.3's "Reset the logging ring buffer").
func (r *Ring) Reset() {
	for i := range r.lens {
		r.lens[i] = -1
	}
	r.head, r.tail, r.count, r.reserved = 0, 0, 0, false
}

// Len reports the number of committed, unread slots.
func (r *Ring) Len() int { return r.count }

// Cap reports the total slot count.
func (r *Ring) Cap() int { return len(r.slots) }

// SlotSize reports the fixed capacity of each slot.
func (r *Ring) SlotSize() int { return r.slotSize }
