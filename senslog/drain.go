package senslog

import (
	"github.com/seatag/firmware/flashfs"
	"github.com/seatag/firmware/ringbuf"
)

// Drain copies every committed ring record into the open log handle in
// FIFO order, the way spec.md §4.4.4 describes: "the main loop drains
// the ring into the log file via fs.write in FIFO order." It stops and
// returns flashfs.ErrFileSystemFull without losing the undrained
// records still queued in ring, leaving the caller (the top-level state
// machine, via Machine.ReportLogWriteFull) to decide what happens next.
func Drain(ring *ringbuf.Ring, h *flashfs.Handle) (int, error) {
	drained := 0
	for {
		buf, err := ring.Peek()
		if err == ringbuf.ErrEmpty {
			return drained, nil
		}
		if err != nil {
			return drained, err
		}
		if _, err := h.Write(buf); err != nil {
			return drained, err
		}
		if err := ring.Advance(); err != nil {
			return drained, err
		}
		drained++
	}
}
