//go:build tinygo

package main

import (
	"log/slog"
	"machine"
	"time"

	"openenterprise/bootloader/bootlog"
	"openenterprise/bootloader/config"
	"openenterprise/bootloader/extflash"
	"openenterprise/bootloader/install"
	"openenterprise/bootloader/intflash"
	"openenterprise/bootloader/launch"
	"openenterprise/bootloader/verify"
	"openenterprise/bootloader/version"
)

func main() {
	logger := bootlog.New(machine.Serial, slog.LevelInfo)

	println("========================================")
	println("  Openenterprise Bootloader")
	println("  Version:", version.Version)
	println("  Git SHA:", version.GitSHA)
	println("  Built:  ", version.BuildDate)
	println("  Marker: ", version.BuildMarker)
	println("========================================")

	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	led.Low()

	flashCS.Configure(machine.PinConfig{Mode: machine.PinOutput})
	flashCS.High()

	err := spiBus.Configure(machine.SPIConfig{
		Frequency: config.SPIBaud(),
		Mode:      machine.Mode0,
		SCK:       spiSCK,
		SDO:       spiSDO,
		SDI:       spiSDI,
	})
	if err != nil {
		logger.Error("spi bring-up failed", "err", err.Error())
	}

	layout := intflash.LinkerLayout()
	if err := layout.Check(); err != nil {
		logger.Error("flash layout invalid", "err", err.Error())
		haltForever()
	}

	deps := install.Deps{
		Ext:        extflash.NewSPI(spiBus, flashCS),
		Int:        intflash.NewDevice(layout),
		Layout:     layout,
		Anchors:    verify.BuiltIn(),
		MetaOffset: config.MetaOffset(),
		Debrick:    config.DebrickDelay(),
		LED:        led,
		Sleep:      time.Sleep,
		Log:        logger,
	}

	// Launch whatever ends up installed, new or old; fatal errors stay
	// in the blinking halt loop instead. Never returns.
	install.Boot(deps, launch.DeviceCore{})

	haltForever()
}

func haltForever() {
	for {
		time.Sleep(time.Second)
	}
}
