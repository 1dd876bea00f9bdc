// Package ftdibridge turns a bench FTDI FT232H into the SPI master for
// hwio/spiflash and a GPIO source for hwio/gpioin, so flashfs and proto
// can be driven against real flash and a real BLE eval board from a
// development host without the target MCU (spec.md §1 excludes the
// driver/bring-up glue; this is the development-only harness that
// exercises it, gated behind devhw like the rest of hwio).
//
//go:build devhw

package ftdibridge

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	// Imported for its host.Init() driver registration side effect
	// (periph.io/x/d2xx registers itself so host.Init() can find the
	// FT232H); nothing here calls it directly.
	_ "periph.io/x/d2xx"
)

// Bridge owns one FTDI device's SPI port, opened at the given clock
// speed and SPI mode, ready to hand to hwio/spiflash.New.
type Bridge struct {
	port spi.PortCloser
	conn spi.Conn
}

// Open initializes the periph.io host (registering the d2xx driver) and
// opens the first FTDI device found as an SPI master.
func Open(hz physic.Frequency, mode spi.Mode) (*Bridge, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "ftdibridge: host init")
	}
	all := spireg.All()
	if len(all) == 0 {
		return nil, errors.New("ftdibridge: no SPI ports found, is the FT232H attached?")
	}
	port, err := spireg.Open(all[0].Name)
	if err != nil {
		return nil, errors.Wrap(err, "ftdibridge: open SPI port")
	}
	conn, err := port.Connect(hz, mode, 8)
	if err != nil {
		_ = port.Close()
		return nil, errors.Wrap(err, "ftdibridge: connect")
	}
	return &Bridge{port: port, conn: conn}, nil
}

// Conn is the SPI connection hwio/spiflash.New consumes.
func (b *Bridge) Conn() spi.Conn { return b.conn }

// Close releases the underlying FTDI device.
func (b *Bridge) Close() error { return b.port.Close() }
