//go:build tinygo && board_sensor

package main

import "machine"

// Sensor board pin mapping.
var (
	led     = machine.PA0
	flashCS = machine.PB5

	spiBus = machine.SPI2
	spiSCK = machine.PB13
	spiSDI = machine.PB14
	spiSDO = machine.PB15
)
