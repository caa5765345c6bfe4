// Package launch hands control to the installed application. The user
// region starts with a standard Cortex-M vector table: word 0 is the
// initial main stack pointer, word 1 the reset handler.
package launch

import (
	"openenterprise/bootloader/intflash"
)

// Core is the minimal CPU surface the hand-off needs. The device core is
// the real thing; tests substitute a recording core and assert on the
// operation order.
type Core interface {
	// ReadWord returns the 32-bit word at a physical address.
	ReadWord(addr uintptr) uint32

	// SetVTOR relocates the exception vector table.
	SetVTOR(offset uint32)

	// Jump loads the main stack pointer, issues the data and
	// instruction barriers, and branches to handler. It must not touch
	// the caller's stack after the stack pointer write and must not
	// return.
	Jump(sp uint32, handler uintptr)
}

// App reads the application's vector table, relocates VTOR, and jumps.
// It only returns if the core's Jump does, which real hardware never
// does; callers treat a return as unreachable.
func App(core Core, layout intflash.Layout) {
	sp := core.ReadWord(layout.UserStart)
	handler := uintptr(core.ReadWord(layout.UserStart + 4))

	core.SetVTOR(layout.UserOffset())
	core.Jump(sp, handler)
}
