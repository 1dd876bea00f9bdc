package main

import (
	"github.com/pkg/errors"

	"github.com/seatag/firmware/proto"
	"github.com/seatag/firmware/sm"
)

var errGPSBusy = errors.New("seatagd: GPS sub-machine is mid-acquisition, bridging refused")

// gpsBridge implements proto.GpsBridge over the out-of-scope GPS driver,
// consulting the autonomous sm.GPSMachine rather than commanding it
// (spec.md §4.4.5: "the machine is consulted (not commanded) by the
// transport-bridge path").
type gpsBridge struct {
	sub *sm.GPSMachine
	hw  interface {
		WritePassthrough([]byte) error
		ReadPassthrough([]byte) (int, error)
	}
}

func (b *gpsBridge) Write(p []byte) error {
	if !b.sub.CanBridge() {
		return errGPSBusy
	}
	return b.hw.WritePassthrough(p)
}

func (b *gpsBridge) Read(buf []byte) (int, error) {
	if !b.sub.CanBridge() {
		return 0, errGPSBusy
	}
	return b.hw.ReadPassthrough(buf)
}

// stubGPSPassthrough is the out-of-scope GPS driver's raw-byte bridge
// path stand-in: it loops the request back as a zero-filled reply of the
// same length, just enough to exercise proto's GpsWrite/GpsRead framing.
type stubGPSPassthrough struct{}

func (stubGPSPassthrough) WritePassthrough(p []byte) error { return nil }
func (stubGPSPassthrough) ReadPassthrough(buf []byte) (int, error) {
	for i := range buf {
		buf[i] = 0
	}
	return len(buf), nil
}

var _ proto.GpsBridge = (*gpsBridge)(nil)

// bleBridge implements proto.BleBridge over the out-of-scope BLE SPI
// register-map driver (spec.md §1).
type bleBridge struct{}

func (bleBridge) Write(addr uint8, p []byte) error { return nil }
func (bleBridge) Read(addr uint8, buf []byte) (int, error) {
	for i := range buf {
		buf[i] = 0
	}
	return len(buf), nil
}

var _ proto.BleBridge = bleBridge{}
