package senslog

import (
	"encoding/binary"
	"time"

	"github.com/go-restruct/restruct"
	"github.com/pkg/errors"
)

// Entry is one decoded log event: exactly one payload record, plus the
// DateTime record immediately preceding it, if the logging
// configuration's date-time-stamp bit was set when it was recorded
// (spec.md §4.4.4). Exactly one of the typed payload fields is non-nil.
type Entry struct {
	Tag      Tag
	Time     time.Time
	GPS      *GPSPositionRecord
	Pressure *PressureRecord
	Axl      *AxlRecord
	Battery  *BatteryRecord
	Switch   *SwitchRecord
}

// packedSize gives each tag's fixed payload width, the host-side mirror
// of the field widths record.go's writeTagged packs on the device.
func packedSize(tag Tag) (int, bool) {
	switch tag {
	case TagDateTime:
		return 4, true
	case TagGPSPosition:
		return 9, true
	case TagPressure:
		return 4, true
	case TagAxl:
		return 6, true
	case TagBattery:
		return 2, true
	case TagSwitch:
		return 1, true
	default:
		return 0, false
	}
}

// Decode walks a downloaded log byte stream (the raw bytes LogReadNext
// streams back, spec.md §4.3.3) into a sequence of Entry values, the
// host-side complement of Recorder.record's tag+struct encoding.
func Decode(data []byte) ([]Entry, error) {
	var entries []Entry
	var pendingTime time.Time
	havePendingTime := false

	pos := 0
	for pos < len(data) {
		tag := Tag(data[pos])
		pos++
		width, ok := packedSize(tag)
		if !ok {
			return nil, errors.Errorf("senslog: unrecognized tag 0x%02x at offset %d", tag, pos-1)
		}
		if pos+width > len(data) {
			return nil, errors.Errorf("senslog: truncated record for tag 0x%02x at offset %d", tag, pos-1)
		}
		body := data[pos : pos+width]
		pos += width

		if tag == TagDateTime {
			var r DateTimeRecord
			if err := restruct.Unpack(body, binary.LittleEndian, &r); err != nil {
				return nil, err
			}
			pendingTime = time.Unix(int64(r.EpochSeconds), 0).UTC()
			havePendingTime = true
			continue
		}

		entry := Entry{Tag: tag}
		if havePendingTime {
			entry.Time = pendingTime
			havePendingTime = false
		}

		switch tag {
		case TagGPSPosition:
			var r GPSPositionRecord
			if err := restruct.Unpack(body, binary.LittleEndian, &r); err != nil {
				return nil, err
			}
			entry.GPS = &r
		case TagPressure:
			var r PressureRecord
			if err := restruct.Unpack(body, binary.LittleEndian, &r); err != nil {
				return nil, err
			}
			entry.Pressure = &r
		case TagAxl:
			var r AxlRecord
			if err := restruct.Unpack(body, binary.LittleEndian, &r); err != nil {
				return nil, err
			}
			entry.Axl = &r
		case TagBattery:
			var r BatteryRecord
			if err := restruct.Unpack(body, binary.LittleEndian, &r); err != nil {
				return nil, err
			}
			entry.Battery = &r
		case TagSwitch:
			var r SwitchRecord
			if err := restruct.Unpack(body, binary.LittleEndian, &r); err != nil {
				return nil, err
			}
			entry.Switch = &r
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
