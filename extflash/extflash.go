// Package extflash reads the staged firmware image out of the SPI NOR
// flash chip. The part ships in deep power-down, so a boot always starts
// with a wakeup pulse followed by JEDEC identification before any read is
// trusted.
package extflash

import (
	"errors"
	"io"
)

// Manufacturer IDs as reported by the JEDEC ID command. The boards in the
// field all carry Adesto (formerly Atmel) AT25-series parts.
const (
	mfrNone   = 0x00
	mfrFloat  = 0xFF
	MfrAdesto = 0x1F
)

var (
	// ErrNoFlash means the JEDEC ID read back as all-zero or all-one:
	// nothing is driving MISO.
	ErrNoFlash = errors.New("extflash: no flash device detected")

	// ErrUnknownFlash means a device answered with a manufacturer this
	// bootloader was never qualified against.
	ErrUnknownFlash = errors.New("extflash: unknown flash manufacturer")
)

// JEDECID is the 3-byte response to the JEDEC ID command.
type JEDECID struct {
	Manufacturer byte
	MemoryType   byte
	Capacity     byte
}

// Check triages the manufacturer byte. Both failure modes are fatal to the
// boot: without a readable external flash there is no candidate to judge.
func (id JEDECID) Check() error {
	switch id.Manufacturer {
	case mfrNone, mfrFloat:
		return ErrNoFlash
	case MfrAdesto:
		return nil
	default:
		return ErrUnknownFlash
	}
}

// Device is the reader the boot pipeline runs against. The SPI
// implementation lives behind the tinygo build tag; tests and host tools
// substitute Mem or a file.
type Device interface {
	// Wakeup releases the chip from deep power-down. Must be called
	// once before JEDECID or ReadAt.
	Wakeup() error

	// JEDECID identifies the chip.
	JEDECID() (JEDECID, error)

	// ReadAt fills p from the flash address space starting at off.
	io.ReaderAt
}

// Mem is an in-memory Device used by tests and by host-side tooling
// operating on image dumps.
type Mem struct {
	Data []byte

	// ID is returned by JEDECID. The zero value reads as "no device";
	// NewMem presets an Adesto ID.
	ID JEDECID

	// WakeupErr forces Wakeup to fail.
	WakeupErr error

	awake bool
}

// NewMem returns a Mem holding data that identifies as a healthy Adesto
// part.
func NewMem(data []byte) *Mem {
	return &Mem{
		Data: data,
		ID:   JEDECID{Manufacturer: MfrAdesto, MemoryType: 0x44, Capacity: 0x01},
	}
}

func (m *Mem) Wakeup() error {
	if m.WakeupErr != nil {
		return m.WakeupErr
	}
	m.awake = true
	return nil
}

func (m *Mem) JEDECID() (JEDECID, error) {
	if !m.awake {
		// A sleeping part answers with a floating bus.
		return JEDECID{Manufacturer: mfrFloat, MemoryType: mfrFloat, Capacity: mfrFloat}, nil
	}
	return m.ID, nil
}

func (m *Mem) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m.Data)) {
		return 0, io.EOF
	}
	n := copy(p, m.Data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
