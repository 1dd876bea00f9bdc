package senslog_test

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/go-restruct/restruct"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatag/firmware/conf"
	"github.com/seatag/firmware/flashfs"
	"github.com/seatag/firmware/flashfs/memdevice"
	"github.com/seatag/firmware/ringbuf"
	"github.com/seatag/firmware/senslog"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestBatteryRecordRoundTrips(t *testing.T) {
	ring := ringbuf.New(64, 4)
	rec := senslog.NewRecorder(ring, fixedClock(time.Unix(1000, 0)))

	rec.LogBattery(3700)

	buf, err := ring.Peek()
	require.NoError(t, err)
	require.Equal(t, byte(senslog.TagBattery), buf[0])

	var got senslog.BatteryRecord
	require.NoError(t, restruct.Unpack(buf[1:], binary.LittleEndian, &got))
	assert.EqualValues(t, 3700, got.Millivolts)
}

func TestDateTimeStampPrecedesPayloadInSameSlot(t *testing.T) {
	ring := ringbuf.New(64, 4)
	rec := senslog.NewRecorder(ring, fixedClock(time.Unix(123456, 0)))
	rec.SetDateTimeStamp(true)

	rec.LogSwitch(true)

	buf, err := ring.Peek()
	require.NoError(t, err)
	require.Equal(t, byte(senslog.TagDateTime), buf[0])

	var dt senslog.DateTimeRecord
	require.NoError(t, restruct.Unpack(buf[1:5], binary.LittleEndian, &dt))
	assert.EqualValues(t, 123456, dt.EpochSeconds)

	assert.Equal(t, byte(senslog.TagSwitch), buf[5])
	var sw senslog.SwitchRecord
	require.NoError(t, restruct.Unpack(buf[6:7], binary.LittleEndian, &sw))
	assert.EqualValues(t, 1, sw.Closed)

	assert.Equal(t, 1, ring.Len(), "date-time and payload share one slot")
}

func TestFullRingDropsRecordWithoutError(t *testing.T) {
	ring := ringbuf.New(64, 1)
	rec := senslog.NewRecorder(ring, fixedClock(time.Now()))
	rec.LogBattery(1)
	rec.LogBattery(2) // ring already has one committed slot; dropped, not panicking

	assert.Equal(t, 1, ring.Len())
}

func TestDrainCopiesCommittedRecordsInFIFOOrder(t *testing.T) {
	cfg := conf.Default()
	cfg.SectorSize = 256
	cfg.NumSectors = 4
	cfg.NumWriteSessions = 4
	dev := memdevice.New(cfg.SectorSize, cfg.NumSectors)
	require.NoError(t, flashfs.Format(dev, cfg))
	fs, err := flashfs.Mount(dev, cfg)
	require.NoError(t, err)

	ring := ringbuf.New(16, 4)
	rec := senslog.NewRecorder(ring, fixedClock(time.Now()))
	rec.LogBattery(3000)
	rec.LogBattery(3100)
	rec.LogBattery(3200)
	require.Equal(t, 3, ring.Len())

	h, err := fs.Open(conf.FileLog, flashfs.Create, 0)
	require.NoError(t, err)
	n, err := senslog.Drain(ring, h)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, ring.Len())
	require.NoError(t, h.Close())

	r, err := fs.Open(conf.FileLog, flashfs.ReadOnly, 0)
	require.NoError(t, err)
	buf := make([]byte, 3*(1+2))
	got, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), got)

	for i, want := range []uint16{3000, 3100, 3200} {
		off := i * 3
		assert.Equal(t, byte(senslog.TagBattery), buf[off])
		assert.Equal(t, want, binary.LittleEndian.Uint16(buf[off+1:off+3]))
	}
}
