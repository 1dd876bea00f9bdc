package sm

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/seatag/firmware/cfgstore"
)

// Fault is the sentinel error type for conditions spec.md §7's fatal-fault
// taxonomy assigns to the outer exception handler (watchdog reset), the
// way proto.Fault marks engine-level exceptions.
type Fault string

func (f Fault) Error() string { return string(f) }
func (f Fault) Is(target error) bool {
	t, ok := target.(Fault)
	return ok && t == f
}

const FaultLogOpenFailed Fault = "sm: could not open log file for append"

// Platform is the capability set the top-level machine needs from the
// rest of the firmware: flash/fs, sensors, timers and the transport,
// passed in at construction the way proto.Engine takes a GpsBridge/
// BleBridge (spec.md §9.1's "capability-set passed in at init").
type Platform interface {
	VUSBAsserted() bool
	BatteryMillivolts() (uint16, error)
	TransportConnected() bool
	Config() *cfgstore.Store
	BelowWater() bool

	LogFileExists() bool
	OpenLogAppend() error
	CloseLog() error
	ResetLogRing()

	CancelAllTimers()
	ArmFlushTimer(period time.Duration)
	ArmGPSTimers(mode cfgstore.GPSTriggerMode, belowWater bool, scheduledIntervalS, noFixTimeoutS, maxAcqS uint32) error
	GPSSleep() error
	ArmSensorSampling() error
	DisableSensorSampling()

	EnumerateUSB(budget time.Duration) error
	TerminateUSBTransport()
}

// Machine is the top-level state machine of spec.md §4.4: a single
// current/previous pair plus a first-entry flag stand in for the
// per-state entry/exit booleans the spec calls out explicitly
// ("is_first_entry, is_last_entry, current, previous").
type Machine struct {
	platform Platform

	current, previous StateID
	firstEntry        bool
	logFull           bool

	flushPeriod time.Duration
	usbBudget   time.Duration
}

// New constructs a Machine parked in Boot, matching the "Boot" state
// every cold start begins in (spec.md E1, E2).
func New(p Platform, flushPeriod, usbBudget time.Duration) *Machine {
	return &Machine{
		platform:    p,
		current:     Boot,
		previous:    Boot,
		firstEntry:  true,
		flushPeriod: flushPeriod,
		usbBudget:   usbBudget,
	}
}

func (m *Machine) Current() StateID    { return m.current }
func (m *Machine) Previous() StateID   { return m.previous }
func (m *Machine) IsFirstEntry() bool  { return m.firstEntry }
func (m *Machine) IsLastEntry() bool   { return m.decideNext() != m.current }

// ReportLogWriteFull records that the Operational state's log append
// returned FileSystemFull, per spec.md §4.4.1's additional transition
// rule. The main loop's log-drain step calls this, not an ISR.
func (m *Machine) ReportLogWriteFull() { m.logFull = true }

// Iterate evaluates the priority-ordered transition rules of spec.md
// §4.4.1 once and, on a state change, runs the outgoing state's exit
// action followed by the incoming state's entry action.
func (m *Machine) Iterate(now time.Time) error {
	next := m.decideNext()
	if next == m.current {
		m.firstEntry = false
		return nil
	}

	log.WithFields(log.Fields{"from": m.current, "to": next}).Debug("sm: state transition")
	if err := m.exit(m.current); err != nil {
		return err
	}
	m.previous = m.current
	m.current = next
	m.firstEntry = true
	if next == Operational {
		m.logFull = false
	}
	return m.enter(next, now)
}

// decideNext implements spec.md §4.4.1's priority-ordered checks plus the
// Operational-only "additionally transitions to LogFileFull" rule.
func (m *Machine) decideNext() StateID {
	p := m.platform

	if p.VUSBAsserted() {
		return BatteryCharging
	}
	if m.batteryLow() {
		return BatteryLevelLow
	}
	if m.current == Operational && m.logFull {
		return LogFileFull
	}
	if p.TransportConnected() {
		return Provisioning
	}
	complete, _ := p.Config().Complete()
	if complete && p.LogFileExists() {
		return Operational
	}
	return ProvisioningNeeded
}

func (m *Machine) batteryLow() bool {
	store := m.platform.Config()
	if !store.IsSet(cfgstore.TagBatteryLowThresholdMv) {
		return false
	}
	mv, err := m.platform.BatteryMillivolts()
	if err != nil {
		return false
	}
	threshold := configUint32(store, cfgstore.TagBatteryLowThresholdMv)
	return uint32(mv) <= threshold
}

func (m *Machine) enter(s StateID, now time.Time) error {
	p := m.platform
	switch s {
	case BatteryCharging:
		if err := p.EnumerateUSB(m.usbBudget); err != nil {
			log.WithError(err).Warn("sm: USB enumeration failed, terminating transport")
			p.TerminateUSBTransport()
		}
	case Operational:
		return m.enterOperational(now)
	}
	return nil
}

// enterOperational runs spec.md §4.4.2's entry actions. A failure to
// open the log file is fatal: nothing in Operational is safe without it.
func (m *Machine) enterOperational(now time.Time) error {
	p := m.platform
	if err := p.OpenLogAppend(); err != nil {
		return errors.Wrap(FaultLogOpenFailed, err.Error())
	}
	p.ResetLogRing()
	p.CancelAllTimers()
	_ = p.GPSSleep()
	p.ArmFlushTimer(m.flushPeriod)

	store := p.Config()
	mode := cfgstore.GPSTriggerMode(configByte(store, cfgstore.TagGPSTriggerMode))
	scheduled := configUint32(store, cfgstore.TagGPSScheduledIntervalS)
	noFix := configUint32(store, cfgstore.TagGPSNoFixTimeoutS)
	maxAcq := configUint32(store, cfgstore.TagGPSMaxAcquisitionTimeS)
	if err := p.ArmGPSTimers(mode, p.BelowWater(), scheduled, noFix, maxAcq); err != nil {
		log.WithError(err).Warn("sm: arming GPS timers failed")
	}
	if err := p.ArmSensorSampling(); err != nil {
		log.WithError(err).Warn("sm: arming sensor sampling failed")
	}
	return nil
}

func (m *Machine) exit(s StateID) error {
	if s == Operational {
		p := m.platform
		if err := p.CloseLog(); err != nil {
			log.WithError(err).Warn("sm: closing log file on exit")
		}
		_ = p.GPSSleep()
		p.DisableSensorSampling()
		p.CancelAllTimers()
	}
	return nil
}

func configUint32(store *cfgstore.Store, tag cfgstore.Tag) uint32 {
	v, err := store.Get(tag)
	if err != nil || len(v) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(v)
}

func configByte(store *cfgstore.Store, tag cfgstore.Tag) byte {
	v, err := store.Get(tag)
	if err != nil || len(v) < 1 {
		return 0
	}
	return v[0]
}
