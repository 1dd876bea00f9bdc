// Package senslog builds the fixed-layout sensor log records of spec.md
// §4.4.4 and stages them into a ring buffer from sensor callbacks, the
// way flashfs/sector.go packs on-flash structures with restruct: each
// record is a one-byte tag followed by a little-endian fixed struct.
package senslog

import (
	"encoding/binary"
	"time"

	"github.com/go-restruct/restruct"
	log "github.com/sirupsen/logrus"

	"github.com/seatag/firmware/ringbuf"
)

// Tag identifies a log record's payload layout.
type Tag uint8

const (
	TagDateTime Tag = iota
	TagGPSPosition
	TagPressure
	TagAxl
	TagBattery
	TagSwitch
)

// DateTimeRecord is emitted ahead of any other record when the logging
// configuration's date-time-stamp bit is set (spec.md §4.4.4).
type DateTimeRecord struct {
	EpochSeconds uint32
}

// GPSPositionRecord holds a fix in 1e-7-degree fixed point, the common
// on-wire encoding for lat/lon that avoids floating point on the MCU.
type GPSPositionRecord struct {
	LatE7    int32
	LonE7    int32
	FixValid uint8
}

// PressureRecord holds millibar * 100.
type PressureRecord struct {
	MillibarE2 int32
}

// AxlRecord holds one accelerometer sample, axes in raw LSB counts.
type AxlRecord struct {
	X, Y, Z int16
}

// BatteryRecord holds a battery-voltage sample.
type BatteryRecord struct {
	Millivolts uint16
}

// SwitchRecord holds a saltwater/reed switch transition.
type SwitchRecord struct {
	Closed uint8
}

// Recorder encodes sensor events into fixed-layout records and stages
// them into a ring buffer via Reserve/Commit (spec.md §3.6, §4.4.4). It
// does not allocate per call beyond the small packed byte slices restruct
// produces, matching the "sensor callbacks... do not allocate" budget in
// spirit; the real ISR-side caller is out of scope (spec.md §1).
type Recorder struct {
	ring           *ringbuf.Ring
	now            func() time.Time
	dateTimeStamp  bool
}

// NewRecorder wires a ring buffer as the record-staging destination. now
// defaults to time.Now if nil, letting tests supply a fixed clock.
func NewRecorder(ring *ringbuf.Ring, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{ring: ring, now: now}
}

// SetDateTimeStamp toggles whether every record is preceded by a
// DateTime record, mirroring the logging configuration's date-time-stamp
// bit (spec.md §4.4.4, §6.3).
func (r *Recorder) SetDateTimeStamp(enabled bool) { r.dateTimeStamp = enabled }

func (r *Recorder) LogGPSPosition(latE7, lonE7 int32, fixValid bool) {
	r.record(TagGPSPosition, GPSPositionRecord{LatE7: latE7, LonE7: lonE7, FixValid: boolByte(fixValid)})
}

func (r *Recorder) LogPressure(millibarE2 int32) {
	r.record(TagPressure, PressureRecord{MillibarE2: millibarE2})
}

func (r *Recorder) LogAxl(x, y, z int16) {
	r.record(TagAxl, AxlRecord{X: x, Y: y, Z: z})
}

func (r *Recorder) LogBattery(millivolts uint16) {
	r.record(TagBattery, BatteryRecord{Millivolts: millivolts})
}

func (r *Recorder) LogSwitch(closed bool) {
	r.record(TagSwitch, SwitchRecord{Closed: boolByte(closed)})
}

// record reserves one ring slot and writes the optional DateTime record
// followed by the payload record into it contiguously (spec.md §4.4.4:
// "records are always contiguous within a ring slot"). A full ring is
// dropped silently: buffer-full is explicitly non-fatal.
func (r *Recorder) record(tag Tag, payload interface{}) {
	w, err := r.ring.Reserve()
	if err != nil {
		log.WithField("tag", tag).Debug("senslog: ring full, dropping record")
		return
	}

	if r.dateTimeStamp {
		if err := writeTagged(w, TagDateTime, DateTimeRecord{EpochSeconds: uint32(r.now().Unix())}); err != nil {
			log.WithError(err).Warn("senslog: date-time record did not fit, dropping whole slot")
			return
		}
	}
	if err := writeTagged(w, tag, payload); err != nil {
		log.WithError(err).Warn("senslog: record did not fit, dropping whole slot")
		return
	}
	if err := r.ring.Commit(w); err != nil {
		log.WithError(err).Warn("senslog: commit failed")
	}
}

type writer interface {
	Write([]byte) (int, error)
}

func writeTagged(w writer, tag Tag, payload interface{}) error {
	body, err := restruct.Pack(binary.LittleEndian, payload)
	if err != nil {
		return err
	}
	_, err = w.Write(append([]byte{byte(tag)}, body...))
	return err
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
