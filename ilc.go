// Copyright 2026 the ilcbus authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package ilcbus

import (
	"fmt"

	"go.uber.org/zap"
)

// Rx timeouts in microseconds.
const (
	ilcTimeout = 335
	// Transitions between standby and firmware update reflash the
	// unit and take far longer to acknowledge.
	firmwareUpdateTimeout = 100000
)

// ServerID is the unit identification reported by function 17.
type ServerID struct {
	UniqueID           uint64
	ILCAppType         uint8
	NetworkNodeType    uint8
	SelectedOptions    uint8
	NetworkNodeOptions uint8
	MajorRev           uint8
	MinorRev           uint8
	FirmwareName       string
}

// ILC drives the generic management functions every inner-loop
// controller implements: report server ID (17), report server status
// (18), change mode (65), set temporary address (72) and reset (107).
// Responses parsed from the bus fire the On* hooks; a nil hook ignores
// its event. Responses to 17, 18 and 65 are gated by the change cache,
// so a hook only fires when the payload differs from the last one seen
// for the same unit and function.
//
// Like the Buffer it embeds, an ILC must be confined to one goroutine.
type ILC struct {
	*Buffer

	bus    uint8
	logger *zap.Logger

	broadcastCounter uint8
	alwaysTrigger    bool

	lastMode map[uint8]Mode
	cached   map[uint8]map[uint8][]byte

	OnServerID          func(address uint8, id ServerID)
	OnServerStatus      func(address uint8, mode Mode, status, faults uint16)
	OnChangeILCMode     func(address uint8, mode Mode)
	OnSetTempILCAddress func(address, newAddress uint8)
	OnResetServer       func(address uint8)
}

// NewILC returns an ILC for the given bus number (1..) with the five
// mandatory function handlers registered.
func NewILC(bus uint8) *ILC {
	ilc := &ILC{
		Buffer:   NewBuffer(ILCFraming{}),
		bus:      bus,
		logger:   zap.NewNop(),
		lastMode: make(map[uint8]Mode),
		cached:   make(map[uint8]map[uint8][]byte),
	}

	ilc.AddResponse(FuncReportServerID, ilc.handleServerID, FuncReportServerID|0x80, nil)
	ilc.AddResponse(FuncReportServerStatus, ilc.handleServerStatus, FuncReportServerStatus|0x80, nil)
	ilc.AddResponse(FuncChangeILCMode, ilc.handleChangeILCMode, FuncChangeILCMode|0x80, nil)
	ilc.AddResponse(FuncSetTempILCAddress, ilc.handleSetTempILCAddress, FuncSetTempILCAddress|0x80, nil)
	ilc.AddResponse(FuncResetServer, ilc.handleResetServer, FuncResetServer|0x80, nil)

	return ilc
}

// Bus returns the ILC bus number.
func (ilc *ILC) Bus() uint8 {
	return ilc.bus
}

// SetLogger installs the logger used during response dispatch.
func (ilc *ILC) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ilc.logger = logger
}

// SetAlwaysTrigger forces every response to count as changed, so hooks
// fire even for payloads identical to the cached snapshot.
func (ilc *ILC) SetAlwaysTrigger(always bool) {
	ilc.alwaysTrigger = always
}

// LastMode returns the last mode the unit at address reported.
func (ilc *ILC) LastMode(address uint8) (Mode, bool) {
	mode, ok := ilc.lastMode[address]
	return mode, ok
}

// NextBroadcastCounter increments the 4-bit rolling broadcast counter
// and returns its new value. Units record the counter, so a later
// unicast query can confirm the broadcast was received.
func (ilc *ILC) NextBroadcastCounter() uint8 {
	ilc.broadcastCounter = (ilc.broadcastCounter + 1) % 16
	return ilc.broadcastCounter
}

// ReportServerID queries the unit identification (function 17).
func (ilc *ILC) ReportServerID(address uint8) error {
	return ilc.CallFunction(address, FuncReportServerID, ilcTimeout)
}

// ReportServerStatus queries mode, status and fault words (function 18).
func (ilc *ILC) ReportServerStatus(address uint8) error {
	return ilc.CallFunction(address, FuncReportServerStatus, ilcTimeout)
}

// ChangeILCMode commands a mode transition (function 65).
func (ilc *ILC) ChangeILCMode(address uint8, mode Mode) error {
	timeout := uint32(ilcTimeout)
	if last, ok := ilc.lastMode[address]; ok {
		if (last == ModeStandby && mode == ModeFirmwareUpdate) ||
			(last == ModeFirmwareUpdate && mode == ModeStandby) {
			timeout = firmwareUpdateTimeout
		}
	}
	return ilc.CallFunction(address, FuncChangeILCMode, timeout, uint16(mode))
}

// SetTempILCAddress assigns a temporary bus address to the single
// unprogrammed unit listening on 255 (function 72).
func (ilc *ILC) SetTempILCAddress(newAddress uint8) error {
	return ilc.CallFunction(255, FuncSetTempILCAddress, ilcTimeout, newAddress)
}

// ResetServer reboots the unit (function 107).
func (ilc *ILC) ResetServer(address uint8) error {
	return ilc.CallFunction(address, FuncResetServer, ilcTimeout)
}

// responseMatchCached compares the payload recorded for (address,
// function) against the cached snapshot and stores the new snapshot on
// change. With alwaysTrigger set every response counts as changed.
func (ilc *ILC) responseMatchCached(address, function uint8) bool {
	functions := ilc.cached[address]
	if functions == nil {
		functions = make(map[uint8][]byte)
		ilc.cached[address] = functions
	}
	snapshot, equal := ilc.CheckRecording(functions[function])
	functions[function] = snapshot
	return equal && !ilc.alwaysTrigger
}

func (ilc *ILC) handleServerID(address uint8) error {
	ilc.RecordChanges()
	length, err := ilc.ReadU8()
	if err != nil {
		return err
	}
	if length < 12 {
		return fmt.Errorf("ilcbus: invalid function 17 response length - expected at least 12, got %d", length)
	}

	var id ServerID
	if id.UniqueID, err = ilc.ReadU48(); err != nil {
		return err
	}
	if id.ILCAppType, err = ilc.ReadU8(); err != nil {
		return err
	}
	if id.NetworkNodeType, err = ilc.ReadU8(); err != nil {
		return err
	}
	if id.SelectedOptions, err = ilc.ReadU8(); err != nil {
		return err
	}
	if id.NetworkNodeOptions, err = ilc.ReadU8(); err != nil {
		return err
	}
	if id.MajorRev, err = ilc.ReadU8(); err != nil {
		return err
	}
	if id.MinorRev, err = ilc.ReadU8(); err != nil {
		return err
	}
	if id.FirmwareName, err = ilc.ReadString(int(length) - 12); err != nil {
		return err
	}
	if err := ilc.CheckCRC(); err != nil {
		return err
	}

	if !ilc.responseMatchCached(address, FuncReportServerID) {
		ilc.logger.Debug("server ID",
			zap.Uint8("address", address),
			zap.Uint64("uniqueID", id.UniqueID),
			zap.String("firmware", id.FirmwareName),
		)
		if ilc.OnServerID != nil {
			ilc.OnServerID(address, id)
		}
	}
	return nil
}

func (ilc *ILC) handleServerStatus(address uint8) error {
	ilc.RecordChanges()
	mode, err := ilc.ReadU8()
	if err != nil {
		return err
	}
	status, err := ilc.ReadU16()
	if err != nil {
		return err
	}
	faults, err := ilc.ReadU16()
	if err != nil {
		return err
	}
	if err := ilc.CheckCRC(); err != nil {
		return err
	}

	ilc.lastMode[address] = Mode(mode)
	if !ilc.responseMatchCached(address, FuncReportServerStatus) {
		ilc.logger.Debug("server status",
			zap.Uint8("address", address),
			zap.Stringer("mode", Mode(mode)),
			zap.Uint16("status", status),
			zap.Uint16("faults", faults),
		)
		if ilc.OnServerStatus != nil {
			ilc.OnServerStatus(address, Mode(mode), status, faults)
		}
	}
	return nil
}

func (ilc *ILC) handleChangeILCMode(address uint8) error {
	ilc.RecordChanges()
	mode, err := ilc.ReadU16()
	if err != nil {
		return err
	}
	if err := ilc.CheckCRC(); err != nil {
		return err
	}

	ilc.lastMode[address] = Mode(mode)
	if !ilc.responseMatchCached(address, FuncChangeILCMode) {
		ilc.logger.Debug("mode changed",
			zap.Uint8("address", address),
			zap.Stringer("mode", Mode(mode)),
		)
		if ilc.OnChangeILCMode != nil {
			ilc.OnChangeILCMode(address, Mode(mode))
		}
	}
	return nil
}

func (ilc *ILC) handleSetTempILCAddress(address uint8) error {
	newAddress, err := ilc.ReadU8()
	if err != nil {
		return err
	}
	if err := ilc.CheckCRC(); err != nil {
		return err
	}
	if ilc.OnSetTempILCAddress != nil {
		ilc.OnSetTempILCAddress(address, newAddress)
	}
	return nil
}

func (ilc *ILC) handleResetServer(address uint8) error {
	if err := ilc.CheckCRC(); err != nil {
		return err
	}
	if ilc.OnResetServer != nil {
		ilc.OnResetServer(address)
	}
	return nil
}
