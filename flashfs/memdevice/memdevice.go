// Package memdevice is an in-memory fake of the flash-block ext interface
// (flashfs.BlockDevice), used by every flashfs test, by cmd/seatagctl's
// --simulate mode, and by proto/sm tests that need a mounted file system
// without real hardware.
//
// Grounded on dargueta-disko's testing/images.go and
// file_systems/common/blockcache, which wrap a flat []byte with
// github.com/xaionaro-go/bytesextra's io.ReadWriteSeeker to stand in for a
// disk image; here the same wrapper stands in for a flash chip.
package memdevice

import (
	"io"

	"github.com/xaionaro-go/bytesextra"

	"github.com/seatag/firmware/flashfs"
)

// Device is a flat byte slice presented as NOR flash: SectorSize() *
// NumSectors() bytes, all 0xFF (erased) until written.
type Device struct {
	stream     io.ReadWriteSeeker
	raw        []byte
	sectorSize int
	numSectors int
}

var _ flashfs.BlockDevice = (*Device)(nil)

// New returns a freshly erased Device of the given geometry.
func New(sectorSize, numSectors int) *Device {
	raw := make([]byte, sectorSize*numSectors)
	for i := range raw {
		raw[i] = 0xFF
	}
	return &Device{
		stream:     bytesextra.NewReadWriteSeeker(raw),
		raw:        raw,
		sectorSize: sectorSize,
		numSectors: numSectors,
	}
}

func (d *Device) SectorSize() int { return d.sectorSize }
func (d *Device) NumSectors() int { return d.numSectors }

func (d *Device) absOffset(sector, offset int) int64 {
	return int64(sector)*int64(d.sectorSize) + int64(offset)
}

func (d *Device) ReadAt(sector, offset int, buf []byte) error {
	if _, err := d.stream.Seek(d.absOffset(sector, offset), io.SeekStart); err != nil {
		return err
	}
	n, err := io.ReadFull(d.stream, buf)
	if err != nil {
		return flashfs.ErrFlashMedia
	}
	if n != len(buf) {
		return flashfs.ErrFlashMedia
	}
	return nil
}

// WriteAt enforces NOR semantics: a write can only clear bits relative to
// what is already there (an Erase is required to set any bit back to 1),
// catching flashfs bugs that would be silently masked by a naive model.
func (d *Device) WriteAt(sector, offset int, buf []byte) error {
	abs := d.absOffset(sector, offset)
	existing := make([]byte, len(buf))
	if _, err := d.stream.Seek(abs, io.SeekStart); err != nil {
		return err
	}
	if _, err := io.ReadFull(d.stream, existing); err != nil {
		return flashfs.ErrFlashMedia
	}
	for i, b := range buf {
		existing[i] &= b
	}

	if _, err := d.stream.Seek(abs, io.SeekStart); err != nil {
		return err
	}
	n, err := d.stream.Write(existing)
	if err != nil {
		return flashfs.ErrFlashMedia
	}
	if n != len(existing) {
		return flashfs.ErrFlashMedia
	}
	return nil
}

func (d *Device) EraseSector(sector int) error {
	blank := make([]byte, d.sectorSize)
	for i := range blank {
		blank[i] = 0xFF
	}
	if _, err := d.stream.Seek(int64(sector)*int64(d.sectorSize), io.SeekStart); err != nil {
		return err
	}
	_, err := d.stream.Write(blank)
	return err
}

// SeedAllocationCounters writes a starting wear counter into every sector
// header without otherwise initializing it, used by tests that set up a
// specific wear distribution (e.g. spec.md scenario E5).
func (d *Device) SeedAllocationCounters(counters []uint32) {
	for s, c := range counters {
		off := d.absOffset(s, 4) // allocation_counter field offset
		buf := []byte{byte(c), byte(c >> 8), byte(c >> 16), byte(c >> 24)}
		d.stream.Seek(off, io.SeekStart)
		d.stream.Write(buf)
		d.stream.Seek(d.absOffset(s, 0), io.SeekStart)
		d.stream.Write([]byte{0xFF}) // file_id = free
	}
}
