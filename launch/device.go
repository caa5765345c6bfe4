//go:build tinygo

package launch

import (
	"device/arm"
	"runtime/volatile"
	"unsafe"
)

// userProgram keeps the reset handler address in a fixed global so the
// jump sequence never depends on the bootloader stack once the stack
// pointer has been switched.
var userProgram volatile.Register32

// DeviceCore drives the real CPU.
type DeviceCore struct{}

func (DeviceCore) ReadWord(addr uintptr) uint32 {
	return (*volatile.Register32)(unsafe.Pointer(addr)).Get()
}

func (DeviceCore) SetVTOR(offset uint32) {
	arm.SCB.VTOR.Set(offset)
}

// Jump switches to the application stack and branches to its reset
// handler. The whole tail runs inside a single asm block: after the msp
// write, no Go code executes and no stack is touched.
func (DeviceCore) Jump(sp uint32, handler uintptr) {
	userProgram.Set(uint32(handler))

	arm.AsmFull(`
		msr msp, {sp}
		dsb
		isb
		bx {handler}
	`, map[string]interface{}{
		"sp":      sp,
		"handler": userProgram.Get(),
	})

	// Unreachable: the application never returns.
	for {
	}
}
