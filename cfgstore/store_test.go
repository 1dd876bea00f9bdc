package cfgstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatag/firmware/cfgstore"
	"github.com/seatag/firmware/conf"
	"github.com/seatag/firmware/flashfs"
	"github.com/seatag/firmware/flashfs/memdevice"
)

func testFS(t *testing.T) *flashfs.FS {
	t.Helper()
	cfg := conf.Default()
	cfg.SectorSize = 512
	cfg.NumSectors = 4
	cfg.NumWriteSessions = 4
	dev := memdevice.New(cfg.SectorSize, cfg.NumSectors)
	require.NoError(t, flashfs.Format(dev, cfg))
	fs, err := flashfs.Mount(dev, cfg)
	require.NoError(t, err)
	return fs
}

func u32le(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func TestGetUnsetTagReturnsErrNotSet(t *testing.T) {
	s := cfgstore.New()
	_, err := s.Get(cfgstore.TagLoggingEnable)
	assert.ErrorIs(t, err, cfgstore.ErrNotSet)
}

func TestGetInvalidTagReturnsErrInvalidTag(t *testing.T) {
	s := cfgstore.New()
	_, err := s.Get(cfgstore.Tag(0xFFFF))
	assert.ErrorIs(t, err, cfgstore.ErrInvalidTag)
}

func TestSetWrongSizeReturnsErrWrongSize(t *testing.T) {
	s := cfgstore.New()
	err := s.Set(cfgstore.TagLoggingEnable, []byte{1, 2})
	assert.ErrorIs(t, err, cfgstore.ErrWrongSize)
}

func TestSetThenGetRoundTripsInMemory(t *testing.T) {
	s := cfgstore.New()
	require.NoError(t, s.Set(cfgstore.TagGPSScheduledIntervalS, u32le(900)))
	v, err := s.Get(cfgstore.TagGPSScheduledIntervalS)
	require.NoError(t, err)
	assert.Equal(t, u32le(900), v)
}

func TestUnsetReturnsToNotSet(t *testing.T) {
	s := cfgstore.New()
	require.NoError(t, s.Set(cfgstore.TagLoggingEnable, []byte{1}))
	require.NoError(t, s.Unset(cfgstore.TagLoggingEnable))
	_, err := s.Get(cfgstore.TagLoggingEnable)
	assert.ErrorIs(t, err, cfgstore.ErrNotSet)
}

func TestIterateVisitsEveryKnownTagOnce(t *testing.T) {
	s := cfgstore.New()
	seen := map[cfgstore.Tag]bool{}
	var cur cfgstore.Cursor
	for {
		tag, ok := s.Iterate(&cur)
		if !ok {
			break
		}
		assert.False(t, seen[tag], "tag %v visited twice", tag)
		seen[tag] = true
	}
	assert.Equal(t, 23, len(seen))
}

func TestSaveRestoreRoundTripsSetTagsAndKeepsUnsetTagsUnset(t *testing.T) {
	fs := testFS(t)

	s := cfgstore.New()
	require.NoError(t, s.Set(cfgstore.TagLoggingEnable, []byte{1}))
	require.NoError(t, s.Set(cfgstore.TagGPSScheduledIntervalS, u32le(120)))
	require.NoError(t, s.Set(cfgstore.TagBatteryLowThresholdMv, u32le(3100)))
	require.NoError(t, s.Save(fs))

	restored, err := cfgstore.Restore(fs)
	require.NoError(t, err)

	v, err := restored.Get(cfgstore.TagLoggingEnable)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, v)

	v, err = restored.Get(cfgstore.TagGPSScheduledIntervalS)
	require.NoError(t, err)
	assert.Equal(t, u32le(120), v)

	_, err = restored.Get(cfgstore.TagAxlHighThreshold)
	assert.ErrorIs(t, err, cfgstore.ErrNotSet)
}

func TestResaveAfterChangeReflectsNewValue(t *testing.T) {
	fs := testFS(t)

	s := cfgstore.New()
	require.NoError(t, s.Set(cfgstore.TagLoggingEnable, []byte{1}))
	require.NoError(t, s.Save(fs))

	require.NoError(t, s.Set(cfgstore.TagLoggingEnable, []byte{0}))
	require.NoError(t, s.Save(fs))

	restored, err := cfgstore.Restore(fs)
	require.NoError(t, err)
	v, err := restored.Get(cfgstore.TagLoggingEnable)
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, v)
}

func TestRestoreRejectsWrongFormatVersion(t *testing.T) {
	_, err := cfgstore.Unmarshal([]byte{0xEE, 0, 0, 0})
	assert.ErrorIs(t, err, cfgstore.ErrFileVersionMismatch)
}

func TestRestoreRejectsEmptyBlob(t *testing.T) {
	_, err := cfgstore.Unmarshal(nil)
	assert.ErrorIs(t, err, cfgstore.ErrFileVersionMismatch)
}

func TestCompleteFalseWithNothingSet(t *testing.T) {
	s := cfgstore.New()
	ok, missing := s.Complete()
	assert.False(t, ok)
	assert.NotZero(t, missing)
}

func TestCompleteIgnoresHiddenTagsWhenLoggingDisabled(t *testing.T) {
	s := cfgstore.New()
	require.NoError(t, s.Set(cfgstore.TagLoggingEnable, []byte{0}))
	require.NoError(t, s.Set(cfgstore.TagGPSLogPositionEnable, []byte{0}))
	require.NoError(t, s.Set(cfgstore.TagPressureMode, []byte{byte(cfgstore.SamplePeriodic)}))
	require.NoError(t, s.Set(cfgstore.TagPressureSamplePeriodS, u32le(60)))
	require.NoError(t, s.Set(cfgstore.TagAxlMode, []byte{byte(cfgstore.SamplePeriodic)}))
	require.NoError(t, s.Set(cfgstore.TagAxlSamplePeriodS, u32le(60)))
	require.NoError(t, s.Set(cfgstore.TagTemperatureEnable, []byte{0}))

	ok, missing := s.Complete()
	assert.True(t, ok, "unexpected missing tag %v", missing)
}

func TestCompleteTrueWithLoggingDisabledAndSensorLogTagsUnset(t *testing.T) {
	s := cfgstore.New()
	require.NoError(t, s.Set(cfgstore.TagLoggingEnable, []byte{0}))

	ok, missing := s.Complete()
	assert.True(t, ok, "unexpected missing tag %v", missing)
}

func TestCompleteRequiresScheduledGPSFieldsOnlyWhenTriggerModeScheduled(t *testing.T) {
	s := cfgstore.New()
	require.NoError(t, s.Set(cfgstore.TagLoggingEnable, []byte{1}))
	require.NoError(t, s.Set(cfgstore.TagLoggingDateTimeStamp, []byte{0}))
	require.NoError(t, s.Set(cfgstore.TagGPSLogPositionEnable, []byte{1}))
	require.NoError(t, s.Set(cfgstore.TagGPSTriggerMode, []byte{byte(cfgstore.GPSTriggerSwitch)}))
	require.NoError(t, s.Set(cfgstore.TagPressureMode, []byte{byte(cfgstore.SamplePeriodic)}))
	require.NoError(t, s.Set(cfgstore.TagPressureSamplePeriodS, u32le(60)))
	require.NoError(t, s.Set(cfgstore.TagAxlMode, []byte{byte(cfgstore.SamplePeriodic)}))
	require.NoError(t, s.Set(cfgstore.TagAxlSamplePeriodS, u32le(60)))
	require.NoError(t, s.Set(cfgstore.TagTemperatureEnable, []byte{0}))

	ok, missing := s.Complete()
	assert.True(t, ok, "unexpected missing tag %v", missing)

	require.NoError(t, s.Set(cfgstore.TagGPSTriggerMode, []byte{byte(cfgstore.GPSTriggerScheduled)}))
	ok, missing = s.Complete()
	assert.False(t, ok)
	assert.Equal(t, cfgstore.TagGPSScheduledIntervalS, missing)
}
