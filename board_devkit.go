//go:build tinygo && !board_sensor && !board_gateway

package main

import "machine"

// Devkit pin mapping. Select other boards with -tags board_sensor or
// -tags board_gateway.
var (
	led     = machine.PB5
	flashCS = machine.PB12

	spiBus = machine.SPI2
	spiSCK = machine.PB13
	spiSDI = machine.PB14
	spiSDO = machine.PB15
)
