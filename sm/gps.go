package sm

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/seatag/firmware/cfgstore"
)

// GPSState names the GPS sub-state machine's states (spec.md §4.4.5).
type GPSState uint8

const (
	GPSAsleep GPSState = iota
	GPSAcquiring
	GPSFixed
)

func (s GPSState) String() string {
	switch s {
	case GPSAsleep:
		return "Asleep"
	case GPSAcquiring:
		return "Acquiring"
	case GPSFixed:
		return "Fixed"
	default:
		return "Unknown"
	}
}

// wakeReason is a bitmask of conditions that can ask the GPS sub-machine
// to leave Asleep. Each trigger_mode permits a subset of reasons, and
// membership is decided by non-zero intersection rather than equality
// (spec.md §9.2: the source tests BLE trigger flags with `|` where `&`
// was clearly intended for a membership test; a strict reimplementation
// must pick one reading for every such flag test, and this machine
// treats all of them as "any permitted reason present wakes the GPS").
type wakeReason uint8

const (
	reasonSwitchClosed wakeReason = 1 << iota
	reasonScheduledDue
)

func permittedReasons(mode cfgstore.GPSTriggerMode) wakeReason {
	switch mode {
	case cfgstore.GPSTriggerSwitch:
		return reasonSwitchClosed
	case cfgstore.GPSTriggerScheduled:
		return reasonScheduledDue
	case cfgstore.GPSTriggerHybrid:
		return reasonSwitchClosed | reasonScheduledDue
	default:
		return 0
	}
}

// shouldWake reports whether any reason present in observed is permitted
// under mode, via non-zero intersection (not exact equality: Hybrid mode
// wakes on either reason alone, not only when both are present).
func shouldWake(mode cfgstore.GPSTriggerMode, observed wakeReason) bool {
	return permittedReasons(mode)&observed != 0
}

// GPSHardware is the device-driver collaborator the GPS sub-machine
// commands (spec.md §1 lists the UBX codec and driver as out of scope).
type GPSHardware interface {
	Wake() error
	Sleep() error
}

// GPSMachine tracks GPS acquisition independently of the top-level
// machine. The transport-bridge path (proto's GpsBridge) consults
// CanBridge rather than driving transitions itself, so a host bridge
// session never collides with autonomous acquisition (spec.md §4.4.5).
type GPSMachine struct {
	hw GPSHardware

	state              GPSState
	mode               cfgstore.GPSTriggerMode
	belowWater         bool
	scheduledInterval  time.Duration
	noFixTimeout       time.Duration
	maxAcquisitionTime time.Duration

	acquiringSince time.Time
	lastFixAt      time.Time
}

func NewGPSMachine(hw GPSHardware) *GPSMachine {
	return &GPSMachine{hw: hw, state: GPSAsleep}
}

func (g *GPSMachine) State() GPSState { return g.state }

// Configure installs the Operational entry action's trigger-mode and
// timer budgets (spec.md §4.4.2). A scheduled interval of 0 means
// "always on", a no-fix timeout of 0 means "never give up", and a
// maximum acquisition of 0 means "no upper bound" (spec.md §4.4.2).
func (g *GPSMachine) Configure(mode cfgstore.GPSTriggerMode, belowWater bool, scheduledIntervalS, noFixTimeoutS, maxAcquisitionS uint32) {
	g.mode = mode
	g.belowWater = belowWater
	g.scheduledInterval = time.Duration(scheduledIntervalS) * time.Second
	g.noFixTimeout = time.Duration(noFixTimeoutS) * time.Second
	g.maxAcquisitionTime = time.Duration(maxAcquisitionS) * time.Second
}

// CanBridge reports whether a host bridge session may safely use the GPS
// module right now: only while the autonomous machine isn't mid-acquisition.
func (g *GPSMachine) CanBridge() bool { return g.state != GPSAcquiring }

// SwitchChanged feeds a saltwater/reed switch transition (spec.md §4.4.4
// sensor-event ingestion, §4.4.5 GPS transitions).
func (g *GPSMachine) SwitchChanged(closed bool, now time.Time) error {
	g.belowWater = closed
	if g.mode == cfgstore.GPSTriggerScheduled {
		return nil
	}
	if !closed {
		return nil
	}
	return g.wake(reasonSwitchClosed, now)
}

// ScheduledIntervalElapsed fires from the scheduled-acquisition timer.
func (g *GPSMachine) ScheduledIntervalElapsed(now time.Time) error {
	if g.mode == cfgstore.GPSTriggerSwitch {
		return nil
	}
	return g.wake(reasonScheduledDue, now)
}

func (g *GPSMachine) wake(observed wakeReason, now time.Time) error {
	if g.state != GPSAsleep {
		return nil
	}
	if !shouldWake(g.mode, observed) {
		return nil
	}
	if err := g.hw.Wake(); err != nil {
		return err
	}
	g.state = GPSAcquiring
	g.acquiringSince = now
	log.WithField("reason", observed).Debug("sm: GPS waking to acquire")
	return nil
}

// FixAcquired moves Acquiring to Fixed on a driver fix-acquired event.
func (g *GPSMachine) FixAcquired(now time.Time) {
	if g.state != GPSAcquiring {
		return
	}
	g.state = GPSFixed
	g.lastFixAt = now
}

// Tick evaluates the no-fix and maximum-acquisition timeouts; call once
// per main-loop pass while the receiver is awake (spec.md §5's "each have
// independent interval and maximum-acquisition timers"). The no-fix
// timeout only bounds the wait for a first fix; the maximum-acquisition
// timeout bounds the whole awake session, fixed or not, as a power budget.
func (g *GPSMachine) Tick(now time.Time) error {
	switch g.state {
	case GPSAcquiring:
		if g.noFixTimeout > 0 && now.Sub(g.acquiringSince) >= g.noFixTimeout {
			return g.sleep()
		}
	case GPSFixed:
	default:
		return nil
	}
	if g.maxAcquisitionTime > 0 && now.Sub(g.acquiringSince) >= g.maxAcquisitionTime {
		return g.sleep()
	}
	return nil
}

// FixLost returns a Fixed acquisition to Asleep, matching hardware that
// sleeps the receiver as soon as a position is no longer needed.
func (g *GPSMachine) FixLost() error {
	if g.state != GPSFixed {
		return nil
	}
	return g.sleep()
}

func (g *GPSMachine) sleep() error {
	if err := g.hw.Sleep(); err != nil {
		return err
	}
	g.state = GPSAsleep
	return nil
}
