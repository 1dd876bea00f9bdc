//go:build devhw

package main

import (
	"log"
	"os"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/seatag/firmware/conf"
	"github.com/seatag/firmware/flashfs"
	"github.com/seatag/firmware/hwio/ftdibridge"
	"github.com/seatag/firmware/hwio/spiflash"
)

// csPinEnv names the environment variable giving the FT232H chip-select
// line (e.g. "D4"); the FTDI bridge exposes no dedicated CS, so the flash
// driver drives an ordinary GPIO the way gice's Flash does.
const csPinEnv = "SEATAGD_FLASH_CS_PIN"

// newBlockDevice wires real SPI NOR flash through a bench FTDI bridge
// (spec.md §1's flash driver is out of scope; this is the devhw bring-up
// path, not the target MCU's own driver).
func newBlockDevice(cfg conf.Config) flashfs.BlockDevice {
	bridge, err := ftdibridge.Open(30*physic.MegaHertz, spi.Mode0)
	if err != nil {
		log.Fatalf("seatagd: opening FTDI SPI bridge: %v", err)
	}
	pinName := os.Getenv(csPinEnv)
	if pinName == "" {
		pinName = "D4"
	}
	cs := gpioreg.ByName(pinName)
	if cs == nil {
		log.Fatalf("seatagd: no such GPIO pin %q for flash chip-select", pinName)
	}
	return spiflash.New(bridge.Conn(), cs, cfg.SectorSize, cfg.NumSectors)
}
