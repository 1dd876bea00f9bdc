// Package transport defines the packet transport boundary of spec.md
// component B: an external collaborator that delivers and accepts
// fixed-size packets and reports connect/disconnect events. Concrete
// transports (USB, BLE) are out of scope per spec.md §1; wstransport is
// the development/bench stand-in used to exercise the protocol engine
// end to end without real hardware.
package transport

// Transport feeds an engine's RX ring and drains its TX ring
// asynchronously (spec.md §4.3.1, §5's ISR/main-loop split). Connected
// reports whether a host is currently attached, consulted by the
// top-level state machine's transition rule 3 (spec.md §4.4.1).
type Transport interface {
	Connected() bool
	Close() error
}
