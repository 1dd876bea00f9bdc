package senslog_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatag/firmware/ringbuf"
	"github.com/seatag/firmware/senslog"
)

func TestDecodeRoundTripsEveryTag(t *testing.T) {
	ring := ringbuf.New(64, 8)
	rec := senslog.NewRecorder(ring, fixedClock(time.Unix(555, 0)))

	rec.LogGPSPosition(1234567, -7654321, true)
	rec.LogPressure(101325)
	rec.LogAxl(1, -2, 3)
	rec.LogBattery(4100)
	rec.LogSwitch(false)

	var stream []byte
	for ring.Len() > 0 {
		buf, err := ring.Peek()
		require.NoError(t, err)
		stream = append(stream, buf...)
		require.NoError(t, ring.Advance())
	}

	entries, err := senslog.Decode(stream)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	require.NotNil(t, entries[0].GPS)
	assert.EqualValues(t, 1234567, entries[0].GPS.LatE7)
	assert.EqualValues(t, -7654321, entries[0].GPS.LonE7)
	assert.EqualValues(t, 1, entries[0].GPS.FixValid)

	require.NotNil(t, entries[1].Pressure)
	assert.EqualValues(t, 101325, entries[1].Pressure.MillibarE2)

	require.NotNil(t, entries[2].Axl)
	assert.EqualValues(t, -2, entries[2].Axl.Y)

	require.NotNil(t, entries[3].Battery)
	assert.EqualValues(t, 4100, entries[3].Battery.Millivolts)

	require.NotNil(t, entries[4].Switch)
	assert.EqualValues(t, 0, entries[4].Switch.Closed)
}

func TestDecodeAttachesDateTimeToFollowingRecordOnly(t *testing.T) {
	ring := ringbuf.New(64, 8)
	rec := senslog.NewRecorder(ring, fixedClock(time.Unix(42, 0)))
	rec.SetDateTimeStamp(true)
	rec.LogBattery(3700)
	rec.SetDateTimeStamp(false)
	rec.LogBattery(3800)

	var stream []byte
	for ring.Len() > 0 {
		buf, err := ring.Peek()
		require.NoError(t, err)
		stream = append(stream, buf...)
		require.NoError(t, ring.Advance())
	}

	entries, err := senslog.Decode(stream)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, time.Unix(42, 0).UTC(), entries[0].Time)
	assert.True(t, entries[1].Time.IsZero())
}

func TestDecodeRejectsUnknownTag(t *testing.T) {
	_, err := senslog.Decode([]byte{0xEE, 1, 2, 3, 4})
	assert.Error(t, err)
}
