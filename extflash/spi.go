//go:build tinygo

package extflash

import (
	"machine"
	"time"
)

// AT25/W25-class command set.
const (
	cmdReadData       = 0x03
	cmdReadJEDECID    = 0x9F
	cmdReleasePowerDn = 0xAB
)

// Deep power-down exit timing. The datasheet asks for >=1us of CS low and
// 35us of recovery; 75us covers every part we have seen on the bench.
const (
	wakePulse   = 2 * time.Microsecond
	wakeRecover = 75 * time.Microsecond
)

// SPI drives the external NOR flash over a machine SPI port with a
// dedicated chip-select pin. CS is active low and must already be
// configured as a high output.
type SPI struct {
	Bus machine.SPI
	CS  machine.Pin
}

// NewSPI wraps an already-configured SPI bus and chip-select pin.
func NewSPI(bus machine.SPI, cs machine.Pin) *SPI {
	cs.High()
	return &SPI{Bus: bus, CS: cs}
}

// Wakeup releases the chip from deep power-down. A plain CS pulse is
// enough on AT25 parts, but sending the release command as well is
// harmless and also wakes parts that require it.
func (f *SPI) Wakeup() error {
	f.CS.Low()
	time.Sleep(wakePulse)
	f.CS.High()
	time.Sleep(wakeRecover)

	f.CS.Low()
	err := f.Bus.Tx([]byte{cmdReleasePowerDn}, nil)
	f.CS.High()
	if err != nil {
		return err
	}
	time.Sleep(wakeRecover)
	return nil
}

// JEDECID reads the 3-byte JEDEC identification.
func (f *SPI) JEDECID() (JEDECID, error) {
	var resp [3]byte

	f.CS.Low()
	err := f.Bus.Tx([]byte{cmdReadJEDECID}, nil)
	if err == nil {
		err = f.Bus.Tx(nil, resp[:])
	}
	f.CS.High()
	if err != nil {
		return JEDECID{}, err
	}

	return JEDECID{
		Manufacturer: resp[0],
		MemoryType:   resp[1],
		Capacity:     resp[2],
	}, nil
}

// ReadAt performs a plain (non-fast) read starting at the 24-bit address
// off. The chip streams until CS rises, so one command covers any length.
func (f *SPI) ReadAt(p []byte, off int64) (int, error) {
	cmd := [4]byte{
		cmdReadData,
		byte(off >> 16),
		byte(off >> 8),
		byte(off),
	}

	f.CS.Low()
	err := f.Bus.Tx(cmd[:], nil)
	if err == nil {
		err = f.Bus.Tx(nil, p)
	}
	f.CS.High()
	if err != nil {
		return 0, err
	}
	return len(p), nil
}
