// Package gpioin wires the VUSB-presence, saltwater-switch and reed-switch
// inputs of spec.md §4.4.1/§4.4.5/§4.4.4 to real GPIO pins via periph.io,
// gated behind the devhw build tag the way hwio/spiflash is.
//
//go:build devhw

package gpioin

import "periph.io/x/conn/v3/gpio"

// Pin reports a single active-high or active-low digital input.
type Pin struct {
	io        gpio.PinIO
	activeLow bool
}

// New wraps an already-opened periph.io input pin. activeLow inverts the
// read so callers always see "true" meaning the physical condition the
// pin is named for (VUSB asserted, switch closed) regardless of board
// polarity.
func New(io gpio.PinIO, activeLow bool) (*Pin, error) {
	if err := io.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return nil, err
	}
	return &Pin{io: io, activeLow: activeLow}, nil
}

// Read samples the pin, already normalized for polarity.
func (p *Pin) Read() bool {
	level := p.io.Read()
	if p.activeLow {
		return level == gpio.Low
	}
	return level == gpio.High
}

// Asserted is the sm.Platform-facing accessor name for VUSB/switch reads that
// take no arguments, matching the call sites in sm.Platform and the top-
// level and GPS sub-state machines.
func (p *Pin) Asserted() bool { return p.Read() }
