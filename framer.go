// Copyright 2026 the ilcbus authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package ilcbus

// Framer encodes payload bytes and framing tokens into FPGA FIFO
// words. It abstracts the hardware specific word layout so the same
// buffer logic serves both the bus-facing framing and plain
// byte-per-word scratch buffers.
type Framer interface {
	// EncodeByte converts one payload byte into a FIFO word.
	EncodeByte(d uint8) uint16
	// DecodeByte extracts the payload byte from a FIFO word.
	DecodeByte(w uint16) uint8
	// EndOfFrame returns the token terminating a Tx frame.
	EndOfFrame() uint16
	// WaitForRx returns the word commanding the FPGA to await a reply
	// within the given timeout.
	WaitForRx(micros uint32) uint16
	// DecodeWaitForRx returns the timeout carried by a wait-for-rx
	// word, in microseconds. ok is false when w is of another class.
	DecodeWaitForRx(w uint16) (micros uint32, ok bool)
	// RxEndFrame returns the token marking the end of a received frame.
	RxEndFrame() uint16
}

// encodeDuration stores micros verbatim under the short class when it
// fits into 12 bits, otherwise (micros/1000)+1 under the long class.
func encodeDuration(micros uint32, short, long uint16) uint16 {
	if micros > 0x0FFF {
		return long | uint16(0x0FFF&(micros/1000+1))
	}
	return short | uint16(micros)
}

// ILCFraming frames payload the way the ILC buses' FPGA expects:
// payload bytes shifted into the WRITE class with the Modbus start bit
// in bit 0.
type ILCFraming struct{}

// EncodeByte shifts d into the WRITE class, start bit clear.
func (ILCFraming) EncodeByte(d uint8) uint16 {
	return FIFOTxMask | uint16(d)<<1
}

// DecodeByte strips the start bit off a payload word.
func (ILCFraming) DecodeByte(w uint16) uint8 {
	return uint8(w >> 1)
}

// EndOfFrame returns the Tx frame terminator.
func (ILCFraming) EndOfFrame() uint16 {
	return FIFOTxFrameEnd
}

// WaitForRx encodes the Rx timeout, short or long class per its size.
func (ILCFraming) WaitForRx(micros uint32) uint16 {
	return encodeDuration(micros, FIFOTxWaitRx, FIFOTxWaitLongRx)
}

// DecodeWaitForRx returns the Rx timeout in microseconds.
func (ILCFraming) DecodeWaitForRx(w uint16) (uint32, bool) {
	switch w & FIFOCmdMask {
	case FIFOTxWaitRx:
		return uint32(w & 0x0FFF), true
	case FIFOTxWaitLongRx:
		return uint32(w&0x0FFF) * 1000, true
	}
	return 0, false
}

// RxEndFrame returns the received-frame terminator.
func (ILCFraming) RxEndFrame() uint16 {
	return FIFORxEndFrame
}

// PlainFraming stores payload bytes verbatim in the low byte of each
// word. Used for scratch buffers that never reach the bus.
type PlainFraming struct{}

func (PlainFraming) EncodeByte(d uint8) uint16 {
	return uint16(d)
}

func (PlainFraming) DecodeByte(w uint16) uint8 {
	return uint8(w)
}

func (PlainFraming) EndOfFrame() uint16 {
	return FIFOTxFrameEnd
}

func (PlainFraming) WaitForRx(micros uint32) uint16 {
	return encodeDuration(micros, FIFOTxWaitRx, FIFOTxWaitLongRx)
}

func (PlainFraming) DecodeWaitForRx(w uint16) (uint32, bool) {
	return ILCFraming{}.DecodeWaitForRx(w)
}

func (PlainFraming) RxEndFrame() uint16 {
	return FIFORxEndFrame
}
