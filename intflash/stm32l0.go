//go:build tinygo

package intflash

import (
	"runtime/volatile"
	"unsafe"
)

// Flash program/erase controller registers (reference manual section 3.7).
type flashRegs struct {
	ACR     volatile.Register32
	PECR    volatile.Register32
	PDKEYR  volatile.Register32
	PEKEYR  volatile.Register32
	PRGKEYR volatile.Register32
	OPTKEYR volatile.Register32
	SR      volatile.Register32
	OPTR    volatile.Register32
	WRPROT  volatile.Register32
}

var flash = (*flashRegs)(unsafe.Pointer(uintptr(0x40022000)))

// PECR bits.
const (
	pecrPELOCK  = 1 << 0
	pecrPRGLOCK = 1 << 1
	pecrPROG    = 1 << 3
	pecrERASE   = 1 << 9
	pecrFPRG    = 1 << 10
)

// SR bits. srErrMask covers every error the controller can latch during an
// erase or program cycle.
const (
	srBSY = 1 << 0
	srEOP = 1 << 1

	srWRPERR     = 1 << 8
	srPGAERR     = 1 << 9
	srSIZERR     = 1 << 10
	srNOTZEROERR = 1 << 16
	srFWWERR     = 1 << 17

	srErrMask = srWRPERR | srPGAERR | srSIZERR | srNOTZEROERR | srFWWERR
)

// Unlock key sequences.
const (
	pekey1  = 0x89ABCDEF
	pekey2  = 0x02030405
	prgkey1 = 0x8C9DAEBF
	prgkey2 = 0x13141516
)

// Linker-provided flash geometry. The addresses of these symbols are the
// values; they are never dereferenced as data.
//
//go:extern __FLASH_START
var flashStartSym [0]byte

//go:extern __FLASH_USER_START
var flashUserStartSym [0]byte

//go:extern __FLASH_USER_LENGTH
var flashUserLengthSym [0]byte

// LinkerLayout returns the flash layout baked in by the linker script.
func LinkerLayout() Layout {
	return Layout{
		FlashStart: uintptr(unsafe.Pointer(&flashStartSym)),
		UserStart:  uintptr(unsafe.Pointer(&flashUserStartSym)),
		UserLength: uint32(uintptr(unsafe.Pointer(&flashUserLengthSym))),
	}
}

// Device programs the real on-chip flash.
type Device struct {
	layout Layout
}

// NewDevice returns a writer over the linker-provided layout.
func NewDevice(layout Layout) *Device {
	return &Device{layout: layout}
}

func waitNotBusy() {
	for flash.SR.HasBits(srBSY) {
	}
}

// checkAndClearErrors reads the latched error flags, clears them, and
// reports whether the previous operation failed.
func checkAndClearErrors() error {
	sr := flash.SR.Get()
	if sr&srErrMask != 0 {
		flash.SR.Set(sr & srErrMask)
		return ErrWriteFailed
	}
	if sr&srEOP != 0 {
		flash.SR.Set(srEOP)
	}
	return nil
}

func unlock() {
	if flash.PECR.HasBits(pecrPELOCK) {
		flash.PEKEYR.Set(pekey1)
		flash.PEKEYR.Set(pekey2)
	}
	if flash.PECR.HasBits(pecrPRGLOCK) {
		flash.PRGKEYR.Set(prgkey1)
		flash.PRGKEYR.Set(prgkey2)
	}
}

func lock() {
	flash.PECR.SetBits(pecrPRGLOCK | pecrPELOCK)
}

// WritePage erases the page, verifies the erase, and programs the new
// content as two half-pages.
func (d *Device) WritePage(page uint32, buf *[PageSize]byte) error {
	addr, err := d.layout.pageBounds(page)
	if err != nil {
		return err
	}

	unlock()
	defer lock()

	// Erase: ERASE+PROG selects program-memory page erase; writing any
	// word in the page starts it.
	waitNotBusy()
	flash.PECR.SetBits(pecrERASE | pecrPROG)
	(*volatile.Register32)(unsafe.Pointer(addr)).Set(0)
	waitNotBusy()
	flash.PECR.ClearBits(pecrERASE | pecrPROG)
	if err := checkAndClearErrors(); err != nil {
		return err
	}

	// This flash erases to zero. Read the page back before trusting it.
	for i := uintptr(0); i < PageSize; i++ {
		if (*volatile.Register8)(unsafe.Pointer(addr + i)).Get() != 0 {
			return ErrNotErased
		}
	}

	// Program two half-pages. The controller wants the sixteen word
	// writes back to back; keep this loop free of anything else.
	for half := 0; half < 2; half++ {
		var words [HalfPageWords]uint32
		packWords(&words, buf, half)

		waitNotBusy()
		flash.PECR.SetBits(pecrFPRG | pecrPROG)
		dst := addr + uintptr(half*4*HalfPageWords)
		for w := 0; w < HalfPageWords; w++ {
			(*volatile.Register32)(unsafe.Pointer(dst + uintptr(4*w))).Set(words[w])
		}
		waitNotBusy()
		flash.PECR.ClearBits(pecrFPRG | pecrPROG)
		if err := checkAndClearErrors(); err != nil {
			return err
		}
	}

	return nil
}
