package ringbuf

// Error is the ring buffer's failure taxonomy (spec.md §3.6).
type Error string

const (
	// ErrFull is returned by Reserve when every slot is occupied. Callers
	// treat this as back-pressure, never as a fatal condition (spec.md
	// §4.3.4 "Send fails with TxBufferFull...the state machine yields";
	// §4.5 "If reserve fails, the record is dropped").
	ErrFull Error = "ring buffer full"

	// ErrEmpty is returned by Peek when no committed slot is available.
	ErrEmpty Error = "ring buffer empty"

	// ErrSlotTooSmall is returned by Reserve's Writer when more bytes are
	// staged than the buffer's slot_size allows.
	ErrSlotTooSmall Error = "record exceeds ring buffer slot size"
)

func (e Error) Error() string { return string(e) }

func (e Error) Is(target error) bool {
	t, ok := target.(Error)
	return ok && t == e
}
