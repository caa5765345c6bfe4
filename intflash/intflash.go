// Package intflash programs the user region of the on-chip flash. Writes
// are page-granular: erase, verify the erase took (this flash erases to
// zero), then program the page as two half-pages of little-endian words.
package intflash

import (
	"errors"
	"fmt"
)

const (
	// PageSize is the erase granularity of the on-chip flash.
	PageSize = 128

	// HalfPageWords is the number of 32-bit words in one half-page
	// program operation.
	HalfPageWords = PageSize / 4 / 2
)

var (
	// ErrBounds means a page index outside the user region reached the
	// writer. That is an installer bug, not bad input, and the boot
	// must halt rather than risk self-destruction.
	ErrBounds = errors.New("intflash: page outside user region")

	// ErrNotErased means a byte read back non-zero after a page erase.
	ErrNotErased = errors.New("intflash: page not erased")

	// ErrWriteFailed means the flash controller reported an erase or
	// program error.
	ErrWriteFailed = errors.New("intflash: write failed")
)

// Layout describes where the user region sits inside the on-chip flash.
// On the device the three values come from linker symbols; tests build
// them directly.
type Layout struct {
	FlashStart uintptr
	UserStart  uintptr
	UserLength uint32
}

// Check validates the layout invariants the installer depends on.
func (l Layout) Check() error {
	if l.UserStart < l.FlashStart {
		return fmt.Errorf("intflash: user region before flash start (%#x < %#x)", l.UserStart, l.FlashStart)
	}
	if l.UserLength == 0 {
		return errors.New("intflash: empty user region")
	}
	if (l.UserStart-l.FlashStart)%PageSize != 0 {
		return fmt.Errorf("intflash: user region offset %#x not page aligned", l.UserStart-l.FlashStart)
	}
	if l.UserLength%PageSize != 0 {
		return fmt.Errorf("intflash: user region length %#x not page aligned", l.UserLength)
	}
	return nil
}

// UserOffset returns the byte offset of the user region from the start of
// flash.
func (l Layout) UserOffset() uint32 {
	return uint32(l.UserStart - l.FlashStart)
}

// pageBounds checks that the page lies entirely inside the user region
// and returns its absolute address.
func (l Layout) pageBounds(page uint32) (uintptr, error) {
	addr := l.FlashStart + uintptr(page)*PageSize
	if addr < l.UserStart || addr+PageSize > l.UserStart+uintptr(l.UserLength) {
		return 0, ErrBounds
	}
	return addr, nil
}

// Writer programs whole pages. Page indices count from the start of
// flash, not from the start of the user region.
type Writer interface {
	WritePage(page uint32, buf *[PageSize]byte) error
}

// packWords assembles one half-page worth of little-endian words from the
// page buffer.
func packWords(words *[HalfPageWords]uint32, buf *[PageSize]byte, half int) {
	base := half * 4 * HalfPageWords
	for w := 0; w < HalfPageWords; w++ {
		off := base + 4*w
		words[w] = uint32(buf[off]) |
			uint32(buf[off+1])<<8 |
			uint32(buf[off+2])<<16 |
			uint32(buf[off+3])<<24
	}
}

// Mem is an in-memory Writer backing the boot pipeline in tests. It
// enforces the same bounds as the device writer and keeps the region
// content addressable for assertions.
type Mem struct {
	Layout Layout

	// User mirrors the user region. NewMem allocates it zero-filled.
	User []byte

	// Erases and Writes record the page indices in operation order.
	Erases []uint32
	Writes []uint32

	// FailAtPage makes the write of the given page index fail, -1
	// disables.
	FailAtPage int
}

// NewMem returns a Mem over the given layout with failure injection off.
func NewMem(l Layout) *Mem {
	return &Mem{Layout: l, User: make([]byte, l.UserLength), FailAtPage: -1}
}

func (m *Mem) WritePage(page uint32, buf *[PageSize]byte) error {
	addr, err := m.Layout.pageBounds(page)
	if err != nil {
		return err
	}
	if m.FailAtPage >= 0 && page == uint32(m.FailAtPage) {
		return ErrWriteFailed
	}

	off := addr - m.Layout.UserStart
	m.Erases = append(m.Erases, page)
	for i := range m.User[off : off+PageSize] {
		m.User[off+uintptr(i)] = 0
	}

	// Same word packing as the device path, so endianness bugs show up
	// in tests.
	m.Writes = append(m.Writes, page)
	for half := 0; half < 2; half++ {
		var words [HalfPageWords]uint32
		packWords(&words, buf, half)
		for w, word := range words {
			base := off + uintptr(half*4*HalfPageWords+4*w)
			m.User[base] = byte(word)
			m.User[base+1] = byte(word >> 8)
			m.User[base+2] = byte(word >> 16)
			m.User[base+3] = byte(word >> 24)
		}
	}
	return nil
}
