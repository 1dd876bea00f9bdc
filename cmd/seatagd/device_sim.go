//go:build !devhw

package main

import (
	"github.com/seatag/firmware/conf"
	"github.com/seatag/firmware/flashfs"
	"github.com/seatag/firmware/flashfs/memdevice"
)

// newBlockDevice returns the default build's flash backing: an in-memory
// device, the way --simulate runs on the host (spec.md §1's real NOR
// flash driver is out of scope; hwio/spiflash supplies it under the
// devhw build tag for bench bring-up).
func newBlockDevice(cfg conf.Config) flashfs.BlockDevice {
	return memdevice.New(cfg.SectorSize, cfg.NumSectors)
}
