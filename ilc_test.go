// Copyright 2026 the ilcbus authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package ilcbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportServerID(t *testing.T) {
	ilc := NewILC(1)

	var gotAddress uint8
	var gotID ServerID
	calls := 0
	ilc.OnServerID = func(address uint8, id ServerID) {
		gotAddress = address
		gotID = id
		calls++
	}

	require.NoError(t, ilc.ReportServerID(0x05))

	ilc.Reset()
	address, err := ilc.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x05), address)
	function, err := ilc.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(17), function)
	require.NoError(t, ilc.CheckCRC())
	require.NoError(t, ilc.ReadEndOfFrame())
	micros, err := ilc.ReadWaitForRx()
	require.NoError(t, err)
	assert.Equal(t, uint32(335), micros)

	response := NewBuffer(ILCFraming{})
	response.WriteU8(0x05)
	response.WriteU8(17)
	response.WriteU8(18)
	response.WriteU48(0x010203040506)
	response.WriteU8(2)
	response.WriteU8(3)
	response.WriteU8(0)
	response.WriteU8(0)
	response.WriteU8(1)
	response.WriteU8(0)
	response.WriteBytes([]byte("hello\x00"))
	response.WriteCRC()

	require.NoError(t, ilc.ProcessResponse(response.Words()))
	require.NoError(t, ilc.CheckCommandedEmpty())

	assert.Equal(t, 1, calls)
	assert.Equal(t, uint8(0x05), gotAddress)
	assert.Equal(t, ServerID{
		UniqueID:        0x010203040506,
		ILCAppType:      2,
		NetworkNodeType: 3,
		MajorRev:        1,
		FirmwareName:    "hello\x00",
	}, gotID)
}

func TestReportServerIDTooShort(t *testing.T) {
	ilc := NewILC(1)
	require.NoError(t, ilc.ReportServerID(5))

	response := NewBuffer(ILCFraming{})
	response.WriteU8(5)
	response.WriteU8(17)
	response.WriteU8(11)
	response.WriteCRC()

	assert.Error(t, ilc.ProcessResponse(response.Words()))
}

func TestServerStatusChangeGating(t *testing.T) {
	ilc := NewILC(1)

	calls := 0
	ilc.OnServerStatus = func(address uint8, mode Mode, status, faults uint16) {
		calls++
		assert.Equal(t, uint8(12), address)
		assert.Equal(t, ModeStandby, mode)
	}

	respond := func() {
		require.NoError(t, ilc.ReportServerStatus(12))
		response := NewBuffer(ILCFraming{})
		response.WriteU8(12)
		response.WriteU8(18)
		response.WriteU8(uint8(ModeStandby))
		response.WriteU16(0)
		response.WriteU16(0)
		response.WriteCRC()
		require.NoError(t, ilc.ProcessResponse(response.Words()))
		require.NoError(t, ilc.CheckCommandedEmpty())
	}

	respond()
	respond()

	// The identical second response is swallowed by the change cache.
	assert.Equal(t, 1, calls)
	mode, ok := ilc.LastMode(12)
	assert.True(t, ok)
	assert.Equal(t, ModeStandby, mode)

	// One differing payload byte is a change again.
	require.NoError(t, ilc.ReportServerStatus(12))
	response := NewBuffer(ILCFraming{})
	response.WriteU8(12)
	response.WriteU8(18)
	response.WriteU8(uint8(ModeStandby))
	response.WriteU16(0)
	response.WriteU16(1)
	response.WriteCRC()
	require.NoError(t, ilc.ProcessResponse(response.Words()))
	assert.Equal(t, 2, calls)
}

func TestAlwaysTrigger(t *testing.T) {
	ilc := NewILC(1)
	ilc.SetAlwaysTrigger(true)

	calls := 0
	ilc.OnServerStatus = func(address uint8, mode Mode, status, faults uint16) { calls++ }

	for i := 0; i < 2; i++ {
		require.NoError(t, ilc.ReportServerStatus(3))
		response := NewBuffer(ILCFraming{})
		response.WriteU8(3)
		response.WriteU8(18)
		response.WriteU8(uint8(ModeDisabled))
		response.WriteU16(0)
		response.WriteU16(0)
		response.WriteCRC()
		require.NoError(t, ilc.ProcessResponse(response.Words()))
	}
	assert.Equal(t, 2, calls)
}

func TestNextBroadcastCounterWrap(t *testing.T) {
	ilc := NewILC(1)

	first := ilc.NextBroadcastCounter()
	for i := 0; i < 15; i++ {
		ilc.NextBroadcastCounter()
	}
	assert.Equal(t, first, ilc.NextBroadcastCounter())
	assert.Equal(t, uint8(1), first)
}

// changeModeWaitWord builds a mode change request and returns the
// trailing wait-for-rx word.
func changeModeWaitWord(t *testing.T, ilc *ILC, address uint8, mode Mode) uint16 {
	t.Helper()
	ilc.Clear(true)
	require.NoError(t, ilc.ChangeILCMode(address, mode))
	words := ilc.Words()
	return words[len(words)-1]
}

func TestChangeILCModeTimeouts(t *testing.T) {
	ilc := NewILC(1)

	// No mode on record yet, the default timeout applies.
	assert.Equal(t, uint16(FIFOTxWaitRx|335), changeModeWaitWord(t, ilc, 8, ModeFirmwareUpdate))

	// Report standby, so the firmware update transition waits long.
	ilc.Clear(false)
	require.NoError(t, ilc.ReportServerStatus(8))
	response := NewBuffer(ILCFraming{})
	response.WriteU8(8)
	response.WriteU8(18)
	response.WriteU8(uint8(ModeStandby))
	response.WriteU16(0)
	response.WriteU16(0)
	response.WriteCRC()
	require.NoError(t, ilc.ProcessResponse(response.Words()))

	assert.Equal(t, uint16(FIFOTxWaitLongRx|101), changeModeWaitWord(t, ilc, 8, ModeFirmwareUpdate))
	assert.Equal(t, uint16(FIFOTxWaitRx|335), changeModeWaitWord(t, ilc, 8, ModeEnabled))

	// And back: firmware update to standby waits long as well.
	ilc.Clear(false)
	require.NoError(t, ilc.ChangeILCMode(8, ModeFirmwareUpdate))
	confirm := NewBuffer(ILCFraming{})
	confirm.WriteU8(8)
	confirm.WriteU8(65)
	confirm.WriteU16(uint16(ModeFirmwareUpdate))
	confirm.WriteCRC()
	require.NoError(t, ilc.ProcessResponse(confirm.Words()))

	assert.Equal(t, uint16(FIFOTxWaitLongRx|101), changeModeWaitWord(t, ilc, 8, ModeStandby))
	assert.Equal(t, uint16(FIFOTxWaitRx|335), changeModeWaitWord(t, ilc, 8, ModeDisabled))
}

func TestChangeILCModeResponse(t *testing.T) {
	ilc := NewILC(1)

	var gotMode Mode
	ilc.OnChangeILCMode = func(address uint8, mode Mode) { gotMode = mode }

	require.NoError(t, ilc.ChangeILCMode(6, ModeEnabled))
	response := NewBuffer(ILCFraming{})
	response.WriteU8(6)
	response.WriteU8(65)
	response.WriteU16(uint16(ModeEnabled))
	response.WriteCRC()
	require.NoError(t, ilc.ProcessResponse(response.Words()))

	assert.Equal(t, ModeEnabled, gotMode)
	mode, ok := ilc.LastMode(6)
	assert.True(t, ok)
	assert.Equal(t, ModeEnabled, mode)
}

func TestSetTempILCAddress(t *testing.T) {
	ilc := NewILC(1)

	var gotAddress, gotNew uint8
	ilc.OnSetTempILCAddress = func(address, newAddress uint8) {
		gotAddress = address
		gotNew = newAddress
	}

	require.NoError(t, ilc.SetTempILCAddress(14))

	ilc.Reset()
	address, err := ilc.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(255), address)

	response := NewBuffer(ILCFraming{})
	response.WriteU8(255)
	response.WriteU8(72)
	response.WriteU8(14)
	response.WriteCRC()
	require.NoError(t, ilc.ProcessResponse(response.Words()))

	assert.Equal(t, uint8(255), gotAddress)
	assert.Equal(t, uint8(14), gotNew)
}

func TestResetServer(t *testing.T) {
	ilc := NewILC(1)

	calls := 0
	ilc.OnResetServer = func(address uint8) { calls++ }

	require.NoError(t, ilc.ResetServer(9))
	response := NewBuffer(ILCFraming{})
	response.WriteU8(9)
	response.WriteU8(107)
	response.WriteCRC()
	require.NoError(t, ilc.ProcessResponse(response.Words()))
	// A repeated reset fires again; reset responses are not gated.
	require.NoError(t, ilc.ResetServer(9))
	require.NoError(t, ilc.ProcessResponse(response.Words()))
	assert.Equal(t, 2, calls)
}

func TestILCErrorResponse(t *testing.T) {
	ilc := NewILC(1)
	require.NoError(t, ilc.ReportServerStatus(5))

	response := NewBuffer(ILCFraming{})
	response.WriteU8(5)
	response.WriteU8(146)
	response.WriteU8(3)
	response.WriteCRC()

	err := ilc.ProcessResponse(response.Words())
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, uint8(5), protoErr.Address)
	assert.Equal(t, uint8(146), protoErr.Function)
	assert.Equal(t, uint8(3), protoErr.Exception)
}
