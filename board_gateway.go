//go:build tinygo && board_gateway

package main

import "machine"

// Gateway board pin mapping.
var (
	led     = machine.PA0
	flashCS = machine.PA11

	spiBus = machine.SPI2
	spiSCK = machine.PB13
	spiSDI = machine.PB14
	spiSDO = machine.PB15
)
