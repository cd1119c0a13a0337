// Copyright 2026 the ilcbus authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package ilcbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statusDispatcher registers a bare function 18 action that drains the
// response payload and verifies the CRC.
func statusDispatcher(t *testing.T) *Buffer {
	t.Helper()
	b := NewBuffer(ILCFraming{})
	b.AddResponse(18, func(address uint8) error {
		if _, err := b.ReadU8(); err != nil {
			return err
		}
		if _, err := b.ReadU16(); err != nil {
			return err
		}
		if _, err := b.ReadU16(); err != nil {
			return err
		}
		return b.CheckCRC()
	}, 146, nil)
	return b
}

func statusResponse(address uint8, mode uint8, status, faults uint16) []uint16 {
	r := NewBuffer(ILCFraming{})
	r.WriteU8(address)
	r.WriteU8(18)
	r.WriteU8(mode)
	r.WriteU16(status)
	r.WriteU16(faults)
	r.WriteCRC()
	return r.Words()
}

func TestProcessResponseInOrder(t *testing.T) {
	b := statusDispatcher(t)
	require.NoError(t, b.CallFunction(8, 18, 335))
	require.NoError(t, b.CallFunction(9, 18, 335))

	words := statusResponse(8, 0, 0, 0)
	words = append(words, statusResponse(9, 0, 0, 0)...)

	require.NoError(t, b.ProcessResponse(words))
	assert.NoError(t, b.CheckCommandedEmpty())
}

func TestProcessResponseOutOfOrder(t *testing.T) {
	b := statusDispatcher(t)
	require.NoError(t, b.CallFunction(8, 18, 335))
	require.NoError(t, b.CallFunction(9, 18, 335))

	err := b.ProcessResponse(statusResponse(9, 0, 0, 0))
	var unmatched *UnmatchedFunctionError
	require.ErrorAs(t, err, &unmatched)
	assert.Equal(t, uint8(9), unmatched.Address)
	assert.Equal(t, uint8(18), unmatched.Function)
	assert.True(t, unmatched.Expected)
	assert.Equal(t, uint8(8), unmatched.ExpectedAddress)
	assert.Equal(t, uint8(18), unmatched.ExpectedFunction)
}

func TestProcessResponseUncommanded(t *testing.T) {
	b := statusDispatcher(t)

	err := b.ProcessResponse(statusResponse(8, 0, 0, 0))
	var unmatched *UnmatchedFunctionError
	require.ErrorAs(t, err, &unmatched)
	assert.False(t, unmatched.Expected)
}

func TestBroadcastsNotLedgered(t *testing.T) {
	b := statusDispatcher(t)
	for _, address := range []uint8{0, 148, 149, 250} {
		require.NoError(t, b.CallFunction(address, 18, 335))
	}
	assert.NoError(t, b.CheckCommandedEmpty())
}

func TestCheckCommandedEmpty(t *testing.T) {
	b := statusDispatcher(t)
	require.NoError(t, b.CallFunction(8, 17, 335))
	require.NoError(t, b.CallFunction(9, 18, 335))

	err := b.CheckCommandedEmpty()
	var outstanding *OutstandingRequestsError
	require.ErrorAs(t, err, &outstanding)
	assert.Contains(t, err.Error(), "8:17,9:18")

	// The failed check drained the ledger.
	assert.NoError(t, b.CheckCommandedEmpty())
}

func TestProcessResponseUnknownFunction(t *testing.T) {
	b := statusDispatcher(t)
	b.PushCommanded(5, 99)

	r := NewBuffer(ILCFraming{})
	r.WriteU8(5)
	r.WriteU8(99)
	r.WriteCRC()

	err := b.ProcessResponse(r.Words())
	var unknown *UnknownResponseError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, uint8(5), unknown.Address)
	assert.Equal(t, uint8(99), unknown.Function)
}

func errorResponseWords(address, errorFunction, exception uint8) []uint16 {
	r := NewBuffer(ILCFraming{})
	r.WriteU8(address)
	r.WriteU8(errorFunction)
	r.WriteU8(exception)
	r.WriteCRC()
	return r.Words()
}

func TestProcessResponseDefaultErrorAction(t *testing.T) {
	b := statusDispatcher(t)
	require.NoError(t, b.CallFunction(5, 18, 335))

	err := b.ProcessResponse(errorResponseWords(5, 146, 3))
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, uint8(5), protoErr.Address)
	assert.Equal(t, uint8(146), protoErr.Function)
	assert.Equal(t, uint8(3), protoErr.Exception)
}

func TestProcessResponseCustomErrorAction(t *testing.T) {
	b := NewBuffer(ILCFraming{})
	var gotAddress, gotException uint8
	b.AddResponse(65, func(address uint8) error {
		if _, err := b.ReadU16(); err != nil {
			return err
		}
		return b.CheckCRC()
	}, 193, func(address, exception uint8) error {
		gotAddress = address
		gotException = exception
		return nil
	})

	require.NoError(t, b.CallFunction(7, 65, 335, uint16(2)))
	require.NoError(t, b.ProcessResponse(errorResponseWords(7, 193, 4)))
	assert.Equal(t, uint8(7), gotAddress)
	assert.Equal(t, uint8(4), gotException)
	assert.NoError(t, b.CheckCommandedEmpty())
}

func TestProcessResponseHooks(t *testing.T) {
	b := statusDispatcher(t)
	var order []string
	b.PreProcess = func() { order = append(order, "pre") }
	b.PostProcess = func() { order = append(order, "post") }

	require.NoError(t, b.CallFunction(8, 18, 335))
	require.NoError(t, b.ProcessResponse(statusResponse(8, 0, 0, 0)))
	assert.Equal(t, []string{"pre", "post"}, order)
}
