// Copyright 2026 the ilcbus authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package ilcbus

import (
	"fmt"
	"time"
)

// SimulatedUnit is the state one simulated ILC answers from.
type SimulatedUnit struct {
	ID     ServerID
	Mode   Mode
	Status uint16
	Faults uint16

	HardpointStatus uint8
	EncoderPosition int32
	LoadCellForce   float32

	Calibration CalibrationData

	PrimaryPushPressure   float32
	PrimaryPullPressure   float32
	SecondaryPushPressure float32
	SecondaryPullPressure float32
}

// Simulator answers framed unicast requests from in-memory unit state.
// It implements FPGA, so a façade can run end-to-end without hardware.
// Queued replies carry payload words only - no timestamps and no
// Rx end-of-frame tokens - and are directly consumable by
// Buffer.ProcessResponse.
type Simulator struct {
	units    map[uint8]*SimulatedUnit
	response *Buffer
}

// NewSimulator returns a simulator without any units.
func NewSimulator() *Simulator {
	return &Simulator{
		units:    make(map[uint8]*SimulatedUnit),
		response: NewBuffer(ILCFraming{}),
	}
}

// AddUnit registers unit state under a bus address.
func (s *Simulator) AddUnit(address uint8, unit *SimulatedUnit) {
	s.units[address] = unit
}

// Unit returns the state registered under address, nil if none.
func (s *Simulator) Unit(address uint8) *SimulatedUnit {
	return s.units[address]
}

// WriteCommandFIFO walks framed requests, verifies their CRC and
// queues replies. Words outside the WRITE class (frame ends, delays,
// Rx waits) are skipped the way the FPGA consumes them.
func (s *Simulator) WriteCommandFIFO(words []uint16, _ time.Duration) error {
	buf := NewBufferFrom(ILCFraming{}, words)
	for !buf.EndOfBuffer() {
		if buf.Peek()&FIFOCmdMask != FIFOWrite {
			if err := buf.Next(); err != nil {
				return err
			}
			continue
		}
		address, err := buf.ReadU8()
		if err != nil {
			return err
		}
		function, err := buf.ReadU8()
		if err != nil {
			return err
		}
		if err := s.simulate(buf, address, function); err != nil {
			return err
		}
	}
	return nil
}

// ReadResponseFIFO drains the queued reply words.
func (s *Simulator) ReadResponseFIFO(_ time.Duration) ([]uint16, error) {
	words := append([]uint16(nil), s.response.Words()...)
	s.response.Clear(false)
	return words, nil
}

func (s *Simulator) simulate(buf *Buffer, address, function uint8) error {
	unit := s.units[address]
	if unit == nil {
		return fmt.Errorf("ilcbus: no simulated unit at address %d", address)
	}
	r := s.response

	switch function {
	case FuncReportServerID:
		if err := buf.CheckCRC(); err != nil {
			return err
		}
		r.WriteU8(address)
		r.WriteU8(FuncReportServerID)
		r.WriteU8(uint8(12 + len(unit.ID.FirmwareName)))
		r.WriteU48(unit.ID.UniqueID)
		r.WriteU8(unit.ID.ILCAppType)
		r.WriteU8(unit.ID.NetworkNodeType)
		r.WriteU8(unit.ID.SelectedOptions)
		r.WriteU8(unit.ID.NetworkNodeOptions)
		r.WriteU8(unit.ID.MajorRev)
		r.WriteU8(unit.ID.MinorRev)
		r.WriteBytes([]byte(unit.ID.FirmwareName))
		r.WriteCRC()

	case FuncReportServerStatus:
		if err := buf.CheckCRC(); err != nil {
			return err
		}
		r.WriteU8(address)
		r.WriteU8(FuncReportServerStatus)
		r.WriteU8(uint8(unit.Mode))
		r.WriteU16(unit.Status)
		r.WriteU16(unit.Faults)
		r.WriteCRC()

	case FuncChangeILCMode:
		mode, err := buf.ReadU16()
		if err != nil {
			return err
		}
		if err := buf.CheckCRC(); err != nil {
			return err
		}
		unit.Mode = Mode(mode)
		r.WriteU8(address)
		r.WriteU8(FuncChangeILCMode)
		r.WriteU16(mode)
		r.WriteCRC()

	case FuncSetTempILCAddress:
		newAddress, err := buf.ReadU8()
		if err != nil {
			return err
		}
		if err := buf.CheckCRC(); err != nil {
			return err
		}
		r.WriteU8(address)
		r.WriteU8(FuncSetTempILCAddress)
		r.WriteU8(newAddress)
		r.WriteCRC()

	case FuncResetServer:
		if err := buf.CheckCRC(); err != nil {
			return err
		}
		unit.Mode = ModeStandby
		r.WriteU8(address)
		r.WriteU8(FuncResetServer)
		r.WriteCRC()

	case FuncReportHardpointForceStatus:
		if err := buf.CheckCRC(); err != nil {
			return err
		}
		r.WriteU8(address)
		r.WriteU8(FuncReportHardpointForceStatus)
		r.WriteU8(unit.HardpointStatus)
		r.WriteI32(unit.EncoderPosition)
		r.WriteF32(unit.LoadCellForce)
		r.WriteCRC()

	case FuncSetOffsetAndSensitivity:
		if _, err := buf.ReadU8(); err != nil { // channel
			return err
		}
		if _, err := buf.ReadF32(); err != nil { // offset
			return err
		}
		if _, err := buf.ReadF32(); err != nil { // sensitivity
			return err
		}
		if err := buf.CheckCRC(); err != nil {
			return err
		}
		r.WriteU8(address)
		r.WriteU8(FuncSetOffsetAndSensitivity)
		r.WriteCRC()

	case FuncReportCalibrationData:
		if err := buf.CheckCRC(); err != nil {
			return err
		}
		r.WriteU8(address)
		r.WriteU8(FuncReportCalibrationData)
		groups := [][4]float32{
			unit.Calibration.MainADCK, unit.Calibration.MainOffset, unit.Calibration.MainSensitivity,
			unit.Calibration.BackupADCK, unit.Calibration.BackupOffset, unit.Calibration.BackupSensitivity,
		}
		for _, group := range groups {
			for _, v := range group {
				r.WriteF32(v)
			}
		}
		r.WriteCRC()

	case FuncReportMezzaninePressure:
		if err := buf.CheckCRC(); err != nil {
			return err
		}
		r.WriteU8(address)
		r.WriteU8(FuncReportMezzaninePressure)
		r.WriteF32(unit.PrimaryPushPressure)
		r.WriteF32(unit.PrimaryPullPressure)
		r.WriteF32(unit.SecondaryPushPressure)
		r.WriteF32(unit.SecondaryPullPressure)
		r.WriteCRC()

	default:
		return fmt.Errorf("ilcbus: simulator does not implement function %d", function)
	}
	return nil
}
