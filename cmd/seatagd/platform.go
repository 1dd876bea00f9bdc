package main

import (
	"time"

	"github.com/seatag/firmware/cfgstore"
	"github.com/seatag/firmware/conf"
	"github.com/seatag/firmware/flashfs"
	"github.com/seatag/firmware/ringbuf"
	"github.com/seatag/firmware/sm"
)

// sensorIn is the set of raw readings this build samples every loop pass;
// the real ADC/GPIO/I2C drivers behind it are out of scope (spec.md §1)
// and supplied by hwio under the devhw build tag, or by --simulate's
// fixed stand-ins.
type sensorIn interface {
	VUSBAsserted() bool
	BatteryMillivolts() (uint16, error)
	BelowWater() bool
}

// devicePlatform adapts flashfs/cfgstore/ringbuf/senslog state to
// sm.Platform, the capability set the top-level state machine needs
// (spec.md §4.4's entry/exit actions).
type devicePlatform struct {
	fs      *flashfs.FS
	store   *cfgstore.Store
	engine  transportConnChecker
	sensors sensorIn

	gps *sm.GPSMachine

	logRing *ringbuf.Ring
	logH    *flashfs.Handle

	flushTimerArmed bool
	sensorsArmed    bool
}

// transportConnChecker narrows proto.Engine to the one method sm.Platform
// needs, so this file doesn't need to import proto just to read a bool.
type transportConnChecker interface {
	Connected() bool
}

func (p *devicePlatform) VUSBAsserted() bool                 { return p.sensors.VUSBAsserted() }
func (p *devicePlatform) BatteryMillivolts() (uint16, error) { return p.sensors.BatteryMillivolts() }
func (p *devicePlatform) TransportConnected() bool           { return p.engine.Connected() }
func (p *devicePlatform) Config() *cfgstore.Store            { return p.store }
func (p *devicePlatform) BelowWater() bool                   { return p.sensors.BelowWater() }

func (p *devicePlatform) LogFileExists() bool {
	_, err := p.fs.Stat(conf.FileLog)
	return err == nil
}

func (p *devicePlatform) OpenLogAppend() error {
	h, err := p.fs.Open(conf.FileLog, flashfs.WriteOnly, 0)
	if err != nil {
		return err
	}
	p.logH = h
	return nil
}

func (p *devicePlatform) CloseLog() error {
	if p.logH == nil {
		return nil
	}
	err := p.logH.Close()
	p.logH = nil
	return err
}

func (p *devicePlatform) ResetLogRing() { p.logRing.Reset() }

func (p *devicePlatform) CancelAllTimers() {
	p.flushTimerArmed = false
}

func (p *devicePlatform) ArmFlushTimer(period time.Duration) { p.flushTimerArmed = true }

func (p *devicePlatform) ArmGPSTimers(mode cfgstore.GPSTriggerMode, belowWater bool, scheduled, noFix, maxAcq uint32) error {
	p.gps.Configure(mode, belowWater, scheduled, noFix, maxAcq)
	return nil
}

func (p *devicePlatform) GPSSleep() error {
	if p.gps.State() == sm.GPSAsleep {
		return nil
	}
	return p.gps.FixLost()
}

func (p *devicePlatform) ArmSensorSampling() error { p.sensorsArmed = true; return nil }
func (p *devicePlatform) DisableSensorSampling()   { p.sensorsArmed = false }

func (p *devicePlatform) EnumerateUSB(budget time.Duration) error { return nil }
func (p *devicePlatform) TerminateUSBTransport()                  {}

// stubGPSHardware is the out-of-scope GPS UBX driver's stand-in: it only
// tracks wake/sleep calls so the sub-state machine is exercisable without
// real hardware (spec.md §1).
type stubGPSHardware struct{ awake bool }

func (h *stubGPSHardware) Wake() error  { h.awake = true; return nil }
func (h *stubGPSHardware) Sleep() error { h.awake = false; return nil }

// fixedSensors is the --simulate default: VUSB deasserted, healthy
// battery, above water. cmd/seatagctl --simulate doesn't drive these; a
// real build swaps this for hwio/gpioin + an ADC reading.
type fixedSensors struct{}

func (fixedSensors) VUSBAsserted() bool                 { return false }
func (fixedSensors) BatteryMillivolts() (uint16, error) { return 3700, nil }
func (fixedSensors) BelowWater() bool                   { return false }
