package sm_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatag/firmware/cfgstore"
	"github.com/seatag/firmware/sm"
)

type fakeGPSHardware struct {
	awake     bool
	wakeErr   error
	sleepErr  error
	wakeCalls int
}

func (h *fakeGPSHardware) Wake() error {
	h.wakeCalls++
	if h.wakeErr != nil {
		return h.wakeErr
	}
	h.awake = true
	return nil
}

func (h *fakeGPSHardware) Sleep() error {
	if h.sleepErr != nil {
		return h.sleepErr
	}
	h.awake = false
	return nil
}

func TestSwitchTriggeredWakesOnlyOnSwitchClose(t *testing.T) {
	hw := &fakeGPSHardware{}
	g := sm.NewGPSMachine(hw)
	g.Configure(cfgstore.GPSTriggerSwitch, false, 0, 0, 0)

	require.NoError(t, g.ScheduledIntervalElapsed(time.Now()))
	assert.Equal(t, sm.GPSAsleep, g.State())

	require.NoError(t, g.SwitchChanged(true, time.Now()))
	assert.Equal(t, sm.GPSAcquiring, g.State())
	assert.True(t, hw.awake)
}

func TestScheduledModeIgnoresSwitch(t *testing.T) {
	hw := &fakeGPSHardware{}
	g := sm.NewGPSMachine(hw)
	g.Configure(cfgstore.GPSTriggerScheduled, false, 60, 0, 0)

	require.NoError(t, g.SwitchChanged(true, time.Now()))
	assert.Equal(t, sm.GPSAsleep, g.State())

	require.NoError(t, g.ScheduledIntervalElapsed(time.Now()))
	assert.Equal(t, sm.GPSAcquiring, g.State())
}

func TestHybridModeWakesOnEitherReasonAlone(t *testing.T) {
	hwSwitch := &fakeGPSHardware{}
	g1 := sm.NewGPSMachine(hwSwitch)
	g1.Configure(cfgstore.GPSTriggerHybrid, false, 60, 0, 0)
	require.NoError(t, g1.SwitchChanged(true, time.Now()))
	assert.Equal(t, sm.GPSAcquiring, g1.State())

	hwSched := &fakeGPSHardware{}
	g2 := sm.NewGPSMachine(hwSched)
	g2.Configure(cfgstore.GPSTriggerHybrid, false, 60, 0, 0)
	require.NoError(t, g2.ScheduledIntervalElapsed(time.Now()))
	assert.Equal(t, sm.GPSAcquiring, g2.State())
}

func TestFixAcquiredThenLostReturnsToAsleep(t *testing.T) {
	hw := &fakeGPSHardware{}
	g := sm.NewGPSMachine(hw)
	g.Configure(cfgstore.GPSTriggerScheduled, false, 60, 0, 0)
	require.NoError(t, g.ScheduledIntervalElapsed(time.Now()))
	require.Equal(t, sm.GPSAcquiring, g.State())

	g.FixAcquired(time.Now())
	assert.Equal(t, sm.GPSFixed, g.State())

	require.NoError(t, g.FixLost())
	assert.Equal(t, sm.GPSAsleep, g.State())
}

func TestNoFixTimeoutGivesUpAcquisition(t *testing.T) {
	hw := &fakeGPSHardware{}
	g := sm.NewGPSMachine(hw)
	g.Configure(cfgstore.GPSTriggerScheduled, false, 60, 5, 0)
	start := time.Now()
	require.NoError(t, g.ScheduledIntervalElapsed(start))
	require.Equal(t, sm.GPSAcquiring, g.State())

	require.NoError(t, g.Tick(start.Add(4*time.Second)))
	assert.Equal(t, sm.GPSAcquiring, g.State())

	require.NoError(t, g.Tick(start.Add(6*time.Second)))
	assert.Equal(t, sm.GPSAsleep, g.State())
}

func TestZeroNoFixTimeoutNeverGivesUp(t *testing.T) {
	hw := &fakeGPSHardware{}
	g := sm.NewGPSMachine(hw)
	g.Configure(cfgstore.GPSTriggerScheduled, false, 60, 0, 0)
	start := time.Now()
	require.NoError(t, g.ScheduledIntervalElapsed(start))

	require.NoError(t, g.Tick(start.Add(24*time.Hour)))
	assert.Equal(t, sm.GPSAcquiring, g.State())
}

func TestMaxAcquisitionBoundsAFixedSession(t *testing.T) {
	hw := &fakeGPSHardware{}
	g := sm.NewGPSMachine(hw)
	g.Configure(cfgstore.GPSTriggerScheduled, false, 60, 0, 10)
	start := time.Now()
	require.NoError(t, g.ScheduledIntervalElapsed(start))
	g.FixAcquired(start.Add(time.Second))
	require.Equal(t, sm.GPSFixed, g.State())

	require.NoError(t, g.Tick(start.Add(9*time.Second)))
	assert.Equal(t, sm.GPSFixed, g.State())

	require.NoError(t, g.Tick(start.Add(11*time.Second)))
	assert.Equal(t, sm.GPSAsleep, g.State())
}

func TestCanBridgeRefusesDuringAcquisition(t *testing.T) {
	hw := &fakeGPSHardware{}
	g := sm.NewGPSMachine(hw)
	g.Configure(cfgstore.GPSTriggerScheduled, false, 60, 0, 0)
	assert.True(t, g.CanBridge())

	require.NoError(t, g.ScheduledIntervalElapsed(time.Now()))
	assert.False(t, g.CanBridge())
}
