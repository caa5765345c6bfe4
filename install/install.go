// Package install runs the boot-time update pipeline: read the candidate
// metadata out of external flash, authenticate the image, and copy it page
// by page into the user region. A rejected candidate leaves the previously
// installed application bootable; fatal errors (no usable external flash,
// a failed internal flash write) halt the boot instead.
package install

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"openenterprise/bootloader/extflash"
	"openenterprise/bootloader/image"
	"openenterprise/bootloader/intflash"
	"openenterprise/bootloader/launch"
	"openenterprise/bootloader/verify"
)

// StatusLED is the one human-visible output. machine.Pin satisfies it on
// the device.
type StatusLED interface {
	High()
	Low()
}

// Deps carries everything the pipeline touches. Tests wire in the
// in-memory devices; main wires the hardware.
type Deps struct {
	Ext     extflash.Device
	Int     intflash.Writer
	Layout  intflash.Layout
	Anchors verify.Anchors

	// MetaOffset locates the metadata record inside the staged image.
	MetaOffset uint32

	// Debrick is how long to idle before the first flash access, so a
	// debugger can still win the race against a bad installed image.
	Debrick time.Duration

	LED   StatusLED
	Sleep func(time.Duration)
	Log   *slog.Logger
}

// Boot runs the pipeline once and then hands control to whatever the
// user region holds: a rejected candidate still boots the previously
// installed image. Only fatal errors keep the device in the blinking
// halt loop instead of launching.
func Boot(d Deps, core launch.Core) {
	if err := Run(d); Fatal(err) {
		BlinkHalt(d)
	}
	launch.App(core, d.Layout)
}

// Run executes the pipeline once. A nil return means a new image was
// verified and fully installed. A non-nil return reports why the
// candidate was not installed; use Fatal to decide whether booting may
// continue.
func Run(d Deps) error {
	err := run(d)

	switch {
	case err == nil:
		d.Log.Info("image installed")
		blinkOK(d)
	case Fatal(err):
		// No blink here: the caller halts with the error pattern and
		// never launches.
		d.Log.Error("boot pipeline failed", "err", err)
	default:
		d.Log.Info("candidate rejected", "err", err)
		blinkError(d)
	}
	return err
}

func run(d Deps) error {
	d.Sleep(d.Debrick)

	if err := d.Ext.Wakeup(); err != nil {
		return fmt.Errorf("install: flash wakeup: %w", err)
	}
	id, err := d.Ext.JEDECID()
	if err != nil {
		return fmt.Errorf("install: jedec id: %w", err)
	}
	if err := id.Check(); err != nil {
		return err
	}
	d.Log.Debug("external flash up", "mfr", id.Manufacturer, "type", id.MemoryType, "cap", id.Capacity)

	var metaBuf [image.MetaLen]byte
	if _, err := d.Ext.ReadAt(metaBuf[:], int64(d.MetaOffset)); err != nil {
		return fmt.Errorf("install: reading metadata: %w", err)
	}
	meta := image.ParseMeta(metaBuf)
	if err := meta.Validate(d.MetaOffset, d.Layout.UserLength); err != nil {
		return err
	}
	d.Log.Info("candidate found", "fw_len", meta.FwLen)

	blinkStartUpdate(d)

	if err := verify.Image(d.Ext, meta.FwLen, d.Anchors); err != nil {
		return err
	}
	d.Log.Info("candidate authenticated")

	return copyImage(d, meta.FwLen)
}

// copyImage moves the whole image (payload and trailing signature) from
// external flash into the user region. The page buffer is zeroed per
// page, so the tail of the last page programs as zeroes.
func copyImage(d Deps, fwLen uint32) error {
	userOffset := d.Layout.UserOffset()

	remaining := fwLen
	extOffset := uint32(0)
	for remaining > 0 {
		n := uint32(intflash.PageSize)
		if remaining < n {
			n = remaining
		}

		var buf [intflash.PageSize]byte
		if _, err := d.Ext.ReadAt(buf[:n], int64(extOffset)); err != nil {
			return fmt.Errorf("install: reading image at %#x: %w", extOffset, err)
		}

		page := (extOffset + userOffset) / intflash.PageSize
		if err := d.Int.WritePage(page, &buf); err != nil {
			return fmt.Errorf("install: page %d: %w", page, err)
		}

		remaining -= n
		extOffset += n
	}
	return nil
}

// Fatal reports whether err must halt the boot instead of falling through
// to the launcher. Rejected candidates are not fatal: the previously
// installed image still boots. Everything else left the device in an
// unknown state.
func Fatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, image.ErrImageType),
		errors.Is(err, image.ErrExtraFiles),
		errors.Is(err, image.ErrTooShort),
		errors.Is(err, image.ErrMetaOutside),
		errors.Is(err, image.ErrTooLarge),
		errors.Is(err, verify.ErrBlacklisted),
		errors.Is(err, verify.ErrBadSignature):
		return false
	default:
		return true
	}
}

// LED signalling. Timings are the shipped behavior; the field tooling
// recognizes these patterns.

func blinkStartUpdate(d Deps) {
	d.LED.High()
	d.Sleep(300 * time.Millisecond)
	d.LED.Low()
}

func blinkOK(d Deps) {
	for i := 0; i < 2; i++ {
		d.LED.High()
		d.Sleep(300 * time.Millisecond)
		d.LED.Low()
		d.Sleep(600 * time.Millisecond)
	}
}

func blinkError(d Deps) {
	for i := 0; i < 3; i++ {
		d.LED.High()
		d.Sleep(50 * time.Millisecond)
		d.LED.Low()
		d.Sleep(40 * time.Millisecond)
	}
}

// BlinkHalt is the terminal state for fatal errors: the error pattern,
// forever. An external watchdog is the only way out.
func BlinkHalt(d Deps) {
	for {
		blinkError(d)
		d.Sleep(time.Second)
	}
}
