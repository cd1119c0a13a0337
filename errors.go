// Copyright 2026 the ilcbus authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package ilcbus

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEndOfBuffer is returned by reads past the last buffered word. The
// caller holds a partial frame and should discard it.
var ErrEndOfBuffer = errors.New("ilcbus: end of buffer while reading response")

// CRCError is returned when the CRC carried in a frame does not match
// the CRC accumulated over its payload. The caller should flush the
// response buffer and re-issue its requests.
type CRCError struct {
	Expected uint16 // accumulated over the payload
	Got      uint16 // carried in the frame
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("ilcbus: invalid CRC - expected 0x%04x, got 0x%04x", e.Expected, e.Got)
}

// UnmatchedFunctionError is returned when a response does not pair
// with the front of the request ledger. Responses must arrive in
// request order; any reordering is a protocol-level failure fatal for
// the in-flight batch.
type UnmatchedFunctionError struct {
	Address  uint8
	Function uint8

	// Expected is set when the ledger held a pair that did not match.
	Expected         bool
	ExpectedAddress  uint8
	ExpectedFunction uint8
}

func (e *UnmatchedFunctionError) Error() string {
	if !e.Expected {
		return fmt.Sprintf("ilcbus: received response %d (0x%02x) from address %d without matching sent function",
			e.Function, e.Function, e.Address)
	}
	return fmt.Sprintf("ilcbus: expected function %d (0x%02x) from address %d, got %d (0x%02x) from address %d",
		e.ExpectedFunction, e.ExpectedFunction, e.ExpectedAddress, e.Function, e.Function, e.Address)
}

// UnknownResponseError is returned when a response function has no
// registered action. An unknown function means unknown response length
// and hence unknown CRC position; frame boundaries are lost and the
// caller should flush the response buffer and send its queries again.
type UnknownResponseError struct {
	Address  uint8
	Function uint8
}

func (e *UnknownResponseError) Error() string {
	return fmt.Sprintf("ilcbus: unknown function %d (0x%02x) in response for address %d",
		e.Function, e.Function, e.Address)
}

// ProtocolError is a Modbus error response (request function | 0x80)
// carrying the unit's exception code.
type ProtocolError struct {
	Address   uint8
	Function  uint8
	Exception uint8
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ilcbus: exception %d (address %d, response function %d (0x%02x))",
		e.Exception, e.Address, e.Function, e.Function)
}

// FramingError is returned when a FIFO word of an unexpected class is
// read where a framing token was required. The buffer is structurally
// corrupt.
type FramingError struct {
	Want   string // token class that was expected
	Word   uint16
	Offset int
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("ilcbus: expected %s, found 0x%04x (@ offset %d)", e.Want, e.Word, e.Offset)
}

// OutstandingRequestsError lists the <address:function> pairs still
// waiting for a response when none was expected to remain.
type OutstandingRequestsError struct {
	pairs []commandedPair
}

func (e *OutstandingRequestsError) Error() string {
	parts := make([]string, len(e.pairs))
	for i, p := range e.pairs {
		parts[i] = fmt.Sprintf("%d:%d", p.address, p.function)
	}
	return "ilcbus: responses for those <address:function> pairs weren't received: " + strings.Join(parts, ",")
}
