// Copyright 2026 the ilcbus authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package ilcbus

// errorResponse ties a Modbus error code to the request function it
// answers for and to the action handling it.
type errorResponse struct {
	function uint8
	action   func(address, exception uint8) error
}

// handle runs the registered error action, or raises the standard
// ProtocolError when none was installed.
func (e errorResponse) handle(address, errorFunction, exception uint8) error {
	if e.action != nil {
		return e.action(address, exception)
	}
	return &ProtocolError{Address: address, Function: errorFunction, Exception: exception}
}

// AddResponse registers the action processing responses to function,
// together with the Modbus error response code paired with it
// (typically function | 0x80). The action receives the unit address
// after the two header bytes were read; it must read the rest of the
// payload and call CheckCRC. A nil errorAction raises ProtocolError
// when the error response arrives; a custom errorAction receives
// address and exception code and must not touch the buffer.
func (b *Buffer) AddResponse(function uint8, action func(address uint8) error, errorFunction uint8, errorAction func(address, exception uint8) error) {
	if b.actions == nil {
		b.actions = make(map[uint8]func(address uint8) error)
		b.errorActions = make(map[uint8]errorResponse)
	}
	b.actions[function] = action
	b.errorActions[errorFunction] = errorResponse{function: function, action: errorAction}
}

// ProcessResponse walks a response buffer. For each frame it reads the
// (address, function) header, verifies the pair against the request
// ledger and dispatches to the registered action. Registered error
// codes consume their exception byte and CRC before the error action
// (or the default ProtocolError) fires; a function that is neither
// known nor a known error loses the frame boundary and surfaces as
// UnknownResponseError.
//
// ProcessResponse can be called repeatedly; call CheckCommandedEmpty
// once all responses were processed.
func (b *Buffer) ProcessResponse(words []uint16) error {
	if b.PreProcess != nil {
		b.PreProcess()
	}

	b.SetBuffer(words)

	for !b.EndOfBuffer() {
		address, err := b.ReadU8()
		if err != nil {
			return err
		}
		function, err := b.ReadU8()
		if err != nil {
			return err
		}

		// An error response stands in for the function it answers;
		// the ledger is matched against the request function either
		// way.
		requested := function
		errResp, isError := b.errorActions[function]
		if isError {
			requested = errResp.function
		}
		if err := b.CheckCommanded(address, requested); err != nil {
			return err
		}

		action, known := b.actions[function]
		switch {
		case known:
			if err := action(address); err != nil {
				return err
			}
		case isError:
			exception, err := b.ReadU8()
			if err != nil {
				return err
			}
			if err := b.CheckCRC(); err != nil {
				return err
			}
			if err := errResp.handle(address, function, exception); err != nil {
				return err
			}
		default:
			return &UnknownResponseError{Address: address, Function: function}
		}
	}

	if b.PostProcess != nil {
		b.PostProcess()
	}
	return nil
}
