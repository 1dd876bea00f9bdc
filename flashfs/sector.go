package flashfs

import (
	"encoding/binary"

	"github.com/go-restruct/restruct"
	"github.com/pkg/errors"

	"github.com/seatag/firmware/conf"
)

// erasedSession is the value an unused write-session record reads as in a
// freshly erased sector (spec.md §3.2's "0xFF…" erased marker, widened to
// conf.SessionRecordWidth — see DESIGN.md).
const erasedSession uint16 = 0xFFFF

// rawHeader is the bit-exact fixed-size prefix of spec.md §6.1, restruct-
// packed little endian. The variable-length session-record array that
// follows it is handled separately because its length is a runtime config
// value, not a Go array type restruct can describe.
type rawHeader struct {
	FileID       uint8
	UserFlags    uint8
	NextSector   uint8
	Reserved     uint8
	AllocCounter uint32
}

// header is the in-memory decoding of a sector header plus its session
// records (spec.md §3.1, §3.2).
type header struct {
	FileID       uint8
	UserFlags    uint8
	NextSector   uint8
	AllocCounter uint32
	Sessions     []uint16 // cumulative committed byte counts; erasedSession = unused
}

func (h header) IsFree() bool       { return h.FileID == conf.FileNone }
func (h header) IsEndOfChain() bool { return h.NextSector == 0xFF }
func (h header) IsCircular() bool   { return h.UserFlags&conf.FlagCircular != 0 }

// IsProtected reports the protected bit. NOR flash can only clear bits, so
// the schema stores "protected" as 0 and "normal" as 1 (spec.md §4.1):
// bit clear means protected.
func (h header) IsProtected() bool { return h.UserFlags&conf.FlagProtected == 0 }

// liveLength returns the highest valid session record, or 0 if none is
// valid (spec.md §3.2).
func (h header) liveLength() int {
	best := -1
	for _, s := range h.Sessions {
		if s != erasedSession && int(s) > best {
			best = int(s)
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

// freeSessionSlot reports whether the sector has room for one more flush
// (spec.md §3.2 invariant), and its index.
func (h header) freeSessionSlot() (int, bool) {
	for i, s := range h.Sessions {
		if s == erasedSession {
			return i, true
		}
	}
	return 0, false
}

func headerSize(cfg conf.Config) int {
	return conf.SectorHeaderFixedSize + cfg.SessionArrayBytes()
}

func readHeader(dev BlockDevice, sector int, cfg conf.Config) (header, error) {
	buf := make([]byte, headerSize(cfg))
	if err := dev.ReadAt(sector, 0, buf); err != nil {
		return header{}, errors.Wrapf(err, "flashfs: reading header of sector %d", sector)
	}

	var raw rawHeader
	if err := restruct.Unpack(buf[:conf.SectorHeaderFixedSize], binary.LittleEndian, &raw); err != nil {
		return header{}, errors.Wrapf(err, "flashfs: unpacking header of sector %d", sector)
	}

	sessions := make([]uint16, cfg.NumWriteSessions)
	sb := buf[conf.SectorHeaderFixedSize:]
	for i := range sessions {
		sessions[i] = binary.LittleEndian.Uint16(sb[i*conf.SessionRecordWidth:])
	}

	return header{
		FileID:       raw.FileID,
		UserFlags:    raw.UserFlags,
		NextSector:   raw.NextSector,
		AllocCounter: raw.AllocCounter,
		Sessions:     sessions,
	}, nil
}

// writeHeaderFields writes only the fixed 8-byte prefix (file_id,
// user_flags, next_sector, reserved, allocation_counter); it never touches
// the session-record array. Every caller either follows a fresh Erase, or
// (protect/unprotect, chain linking) only clears bits relative to the
// sector's current contents, which is all NOR flash allows without an
// erase.
func writeHeaderFields(dev BlockDevice, sector int, fileID, userFlags, nextSector uint8, allocCounter uint32) error {
	raw := rawHeader{
		FileID:       fileID,
		UserFlags:    userFlags,
		NextSector:   nextSector,
		Reserved:     0xFF,
		AllocCounter: allocCounter,
	}
	buf, err := restruct.Pack(binary.LittleEndian, &raw)
	if err != nil {
		return errors.Wrap(err, "flashfs: packing header")
	}
	if err := dev.WriteAt(sector, 0, buf); err != nil {
		return errors.Wrapf(err, "flashfs: writing header of sector %d", sector)
	}
	return nil
}

// writeSessionRecord writes a single session-record slot. It is the only
// metadata write flush() performs, matching spec.md §4.1.5: the header
// precedes data, and a session record is the sole thing that makes new
// data visible on remount.
func writeSessionRecord(dev BlockDevice, sector int, slot int, value uint16) error {
	var buf [conf.SessionRecordWidth]byte
	binary.LittleEndian.PutUint16(buf[:], value)
	off := conf.SectorHeaderFixedSize + slot*conf.SessionRecordWidth
	if err := dev.WriteAt(sector, off, buf[:]); err != nil {
		return errors.Wrapf(err, "flashfs: writing session record %d of sector %d", slot, sector)
	}
	return nil
}

func dataOffset(cfg conf.Config) int { return headerSize(cfg) }
