// Copyright 2026 the ilcbus authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

/*
Package ilcbus provides framing and response dispatch for Inner-Loop
Controllers (ILCs) reached over Modbus RTU serial buses fronted by an
FPGA. The FPGA multiplexes framed byte streams onto FIFO command and
response queues; this package serializes typed values into the FIFO
word stream, maintains the Modbus CRC-16 over payload bytes, pairs
responses with the requests that caused them and dispatches each
response to a per-function handler.
*/
package ilcbus

// FPGA FIFO word classes. The top nibble of each 16-bit word selects
// the class; the low 12 bits carry data or a small integer.
const (
	// FIFOWrite carries one Tx payload byte in bits 1..8. Bit 0 is
	// the Modbus start bit and stays clear.
	FIFOWrite = 0x1000
	// FIFOTxFrameEnd is the literal token terminating a Tx frame.
	FIFOTxFrameEnd = 0x20DA
	// FIFOTxTimestamp begins an outgoing timestamp block.
	FIFOTxTimestamp = 0x3000
	// FIFODelay requests post-transmit silence in microseconds.
	FIFODelay = 0x4000
	// FIFOLongDelay requests post-transmit silence in milliseconds+1.
	FIFOLongDelay = 0x5000
	// FIFOTxWaitRx sets the Rx timeout in microseconds.
	FIFOTxWaitRx = 0x6000
	// FIFOTxIRQTrigger triggers an interrupt.
	FIFOTxIRQTrigger = 0x7000
	// FIFOTxWaitTrigger awaits a hardware trigger.
	FIFOTxWaitTrigger = 0x8000
	// FIFOTxWaitLongRx sets the Rx timeout in milliseconds+1.
	FIFOTxWaitLongRx = 0x9000
	// FIFORxEndFrame marks the end of a received frame.
	FIFORxEndFrame = 0xA000
	// FIFORxTimestamp begins a received timestamp block.
	FIFORxTimestamp = 0xB000

	// FIFOCmdMask selects the class nibble of a FIFO word.
	FIFOCmdMask = 0xF000
	// FIFOTxMask is the template for Tx payload byte words.
	FIFOTxMask = 0x1200
	// FIFORxMask is the template for Rx payload byte words.
	FIFORxMask = 0x9200
)

// Generic ILC management function codes every unit implements, plus
// the electromechanical/pneumatic extensions.
const (
	FuncReportServerID     = 17
	FuncReportServerStatus = 18
	FuncChangeILCMode      = 65
	FuncSetTempILCAddress  = 72
	FuncResetServer        = 107

	FuncReportHardpointForceStatus = 67
	FuncSetOffsetAndSensitivity    = 81
	FuncReportCalibrationData      = 110
	FuncReportMezzaninePressure    = 119
)

// AddressBroadcast addresses every unit on the bus. Addresses 148, 149
// and 250 broadcast to unit groups; none of the four is ever entered
// into the request ledger, as broadcasts produce no replies.
const AddressBroadcast = 0

// IsUnicast reports whether address identifies a single unit and so
// produces exactly one reply. Unicast addresses are 1..247 and 255;
// the group broadcasts 148 and 149 fall inside the unicast range and
// are excluded explicitly.
func IsUnicast(address uint8) bool {
	switch address {
	case AddressBroadcast, 148, 149, 250:
		return false
	}
	return (address > 0 && address < 248) || address == 255
}

// Mode is the ILC server operating mode.
type Mode uint16

// ILC server modes as reported by function 18 and commanded by
// function 65.
const (
	ModeStandby Mode = iota
	ModeDisabled
	ModeEnabled
	ModeFirmwareUpdate
	ModeFault
)

func (m Mode) String() string {
	switch m {
	case ModeStandby:
		return "Standby"
	case ModeDisabled:
		return "Disabled"
	case ModeEnabled:
		return "Enabled"
	case ModeFirmwareUpdate:
		return "FirmwareUpdate"
	case ModeFault:
		return "Fault"
	default:
		return "unknown"
	}
}
