// Package spiflash is a periph.io-based flashfs.BlockDevice backed by a
// real SPI NOR chip, grounded on the JEDEC command set gice's Flash
// driver exercises (ReadID, page-program, sector-erase). It is only
// built with the devhw tag: a development host plus an FTDI SPI bridge
// (hwio/ftdibridge), not the target MCU (spec.md §1's driver code is out
// of scope there; this is the bench stand-in used to exercise flashfs
// against real flash from a host, spec.md §8's properties run against
// memdevice in CI and against this in a hardware bring-up session).
//
//go:build devhw

package spiflash

import (
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// JEDEC command bytes for the flash chips gice's driver targets
// (N25Q32, W25Q128-class parts).
const (
	cmdReadID      = 0x9F
	cmdRead        = 0x03
	cmdWriteEnable = 0x06
	cmdPageProgram = 0x02
	cmdErase4KB    = 0x20
	cmdErase64KB   = 0xD8
	cmdReadStatus  = 0x05

	statusBusy = 1 << 0
	pageSize   = 256
)

// Device is a flashfs.BlockDevice over a SPI-attached NOR chip, with a
// per-sector byte offset derived from sectorSize.
type Device struct {
	conn       spi.Conn
	cs         gpio.PinIO
	sectorSize int
	numSectors int
}

// New wires an open SPI connection and its chip-select line into a
// BlockDevice of the given geometry.
func New(conn spi.Conn, cs gpio.PinIO, sectorSize, numSectors int) *Device {
	return &Device{conn: conn, cs: cs, sectorSize: sectorSize, numSectors: numSectors}
}

func (d *Device) SectorSize() int { return d.sectorSize }
func (d *Device) NumSectors() int { return d.numSectors }

func (d *Device) tx(buf []byte) (err error) {
	if err = d.cs.Out(gpio.Low); err != nil {
		return err
	}
	defer func() {
		if csErr := d.cs.Out(gpio.High); csErr != nil && err == nil {
			err = csErr
		}
	}()
	return d.conn.Tx(buf, buf)
}

func (d *Device) addrOf(sector, offset int) int { return sector*d.sectorSize + offset }

// ReadAt reads len(buf) bytes via a single READ command; callers never
// cross a sector boundary (flashfs enforces that), so this needs no
// chunking the way gice's general-purpose Read does.
func (d *Device) ReadAt(sector, offset int, buf []byte) error {
	addr := d.addrOf(sector, offset)
	req := make([]byte, 4+len(buf))
	req[0] = cmdRead
	req[1] = byte(addr >> 16)
	req[2] = byte(addr >> 8)
	req[3] = byte(addr)
	if err := d.tx(req); err != nil {
		return errors.Wrap(err, "spiflash: read")
	}
	copy(buf, req[4:])
	return nil
}

// WriteAt programs len(buf) bytes across as many 256-byte pages as
// needed, matching gice's pageProgram/Write split.
func (d *Device) WriteAt(sector, offset int, buf []byte) error {
	addr := d.addrOf(sector, offset)
	for off := 0; off < len(buf); {
		n := len(buf) - off
		pageRemain := pageSize - (addr+off)%pageSize
		if n > pageRemain {
			n = pageRemain
		}
		if err := d.pageProgram(addr+off, buf[off:off+n]); err != nil {
			return err
		}
		off += n
	}
	return nil
}

func (d *Device) pageProgram(addr int, data []byte) error {
	if err := d.writeEnable(); err != nil {
		return err
	}
	req := make([]byte, 4+len(data))
	req[0] = cmdPageProgram
	req[1] = byte(addr >> 16)
	req[2] = byte(addr >> 8)
	req[3] = byte(addr)
	copy(req[4:], data)
	if err := d.tx(req); err != nil {
		return errors.Wrap(err, "spiflash: page program")
	}
	return d.busyWait(100*time.Microsecond, 5*time.Millisecond)
}

// EraseSector erases a whole sector, choosing the 64 KiB or 4 KiB erase
// command to match flashfs's configured sector size.
func (d *Device) EraseSector(sector int) error {
	if err := d.writeEnable(); err != nil {
		return err
	}
	addr := d.addrOf(sector, 0)
	cmd := byte(cmdErase64KB)
	wait := 2 * time.Second
	if d.sectorSize <= 4096 {
		cmd = cmdErase4KB
		wait = 400 * time.Millisecond
	}
	req := []byte{cmd, byte(addr >> 16), byte(addr >> 8), byte(addr)}
	if err := d.tx(req); err != nil {
		return errors.Wrap(err, "spiflash: erase")
	}
	return d.busyWait(time.Millisecond, wait)
}

func (d *Device) writeEnable() error {
	return d.tx([]byte{cmdWriteEnable})
}

func (d *Device) readStatus() (byte, error) {
	buf := []byte{cmdReadStatus, 0}
	if err := d.tx(buf); err != nil {
		return 0, err
	}
	return buf[1], nil
}

func (d *Device) busyWait(interval, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		sr, err := d.readStatus()
		if err != nil {
			return err
		}
		if sr&statusBusy == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("spiflash: timed out waiting for ready")
		}
		time.Sleep(interval)
	}
}
