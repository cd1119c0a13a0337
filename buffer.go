// Copyright 2026 the ilcbus authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package ilcbus

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Buffer is an ordered sequence of FPGA FIFO words with a read cursor.
// Writes append typed values as framed payload bytes and feed the
// running CRC; reads consume words, strip the framing and accumulate
// the same CRC so a frame can be verified with CheckCRC. Multi-byte
// values travel in network (big-endian) order except the CRC and
// timestamps, which are little-endian.
//
// A Buffer also keeps the ledger of outstanding requests and the
// response actions dispatching replies; see CallFunction, AddResponse
// and ProcessResponse.
//
// A Buffer is not safe for concurrent use. It is an in-memory staging
// area handed to the FPGA driver as a contiguous region; interleaved
// writers would scramble frames and CRC state.
type Buffer struct {
	framer Framer
	words  []uint16
	index  int

	crc CRC

	recording bool
	records   []byte

	commanded requestLedger

	actions      map[uint8]func(address uint8) error
	errorActions map[uint8]errorResponse

	// PreProcess and PostProcess, when set, run before and after
	// ProcessResponse walks a response buffer.
	PreProcess  func()
	PostProcess func()
}

// NewBuffer returns an empty buffer using the given framing strategy.
func NewBuffer(framer Framer) *Buffer {
	b := &Buffer{framer: framer}
	b.crc.Reset()
	return b
}

// NewBufferFrom returns a buffer positioned at the start of words.
func NewBufferFrom(framer Framer, words []uint16) *Buffer {
	b := NewBuffer(framer)
	b.SetBuffer(words)
	return b
}

// Words returns the buffered FIFO words. Write calls can reallocate
// the backing array; do not retain the slice across writes.
func (b *Buffer) Words() []uint16 {
	return b.words
}

// Len returns the number of buffered words.
func (b *Buffer) Len() int {
	return len(b.words)
}

// Reset rewinds the cursor so the message can be read again, clears
// the CRC accumulator and stops change recording.
func (b *Buffer) Reset() {
	b.index = 0
	b.crc.Reset()
	b.recording = false
	b.records = b.records[:0]
}

// Clear empties the buffer. With onlyBuffers set the request ledger
// survives, so queries already on the wire can still be answered.
func (b *Buffer) Clear(onlyBuffers bool) {
	b.words = b.words[:0]
	if !onlyBuffers {
		b.commanded.clear()
	}
	b.Reset()
}

// SetBuffer replaces the buffer contents and rewinds cursor and CRC.
func (b *Buffer) SetBuffer(words []uint16) {
	b.words = append(b.words[:0], words...)
	b.index = 0
	b.crc.Reset()
}

// EndOfBuffer reports whether the cursor passed the last word.
func (b *Buffer) EndOfBuffer() bool {
	return b.index >= len(b.words)
}

// EndOfFrame reports whether the cursor sits on a received-frame
// terminator.
func (b *Buffer) EndOfFrame() bool {
	return !b.EndOfBuffer() && b.words[b.index] == b.framer.RxEndFrame()
}

// Peek returns the current word without advancing the cursor. Valid
// only before EndOfBuffer.
func (b *Buffer) Peek() uint16 {
	return b.words[b.index]
}

// Next skips the current word without decoding it. Neither Peek nor
// Next touch the CRC.
func (b *Buffer) Next() error {
	if b.EndOfBuffer() {
		return ErrEndOfBuffer
	}
	b.index++
	return nil
}

// CalcCRC returns the CRC accumulated so far.
func (b *Buffer) CalcCRC() uint16 {
	return b.crc.Value()
}

// processData routes one payload byte through the recording hook and
// the CRC. Recording happens before CRC accumulation.
func (b *Buffer) processData(d byte) {
	if b.recording {
		b.records = append(b.records, d)
	}
	b.crc.Add(d)
}

// readByte decodes the payload byte under the cursor and advances. It
// does not feed the CRC; that is the caller's job.
func (b *Buffer) readByte() (uint8, error) {
	if b.EndOfBuffer() {
		return 0, ErrEndOfBuffer
	}
	d := b.framer.DecodeByte(b.words[b.index])
	b.index++
	return d, nil
}

// ReadBytes consumes n payload words, accumulating each byte into the
// CRC.
func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	data := make([]byte, n)
	for i := range data {
		d, err := b.readByte()
		if err != nil {
			return nil, err
		}
		b.processData(d)
		data[i] = d
	}
	return data, nil
}

// WriteBytes appends payload bytes, feeding each into the CRC.
func (b *Buffer) WriteBytes(data []byte) {
	for _, d := range data {
		b.processData(d)
		b.words = append(b.words, b.framer.EncodeByte(d))
	}
}

// WriteU8 appends an unsigned byte.
func (b *Buffer) WriteU8(v uint8) {
	b.WriteBytes([]byte{v})
}

// WriteI8 appends a signed byte.
func (b *Buffer) WriteI8(v int8) {
	b.WriteU8(uint8(v))
}

// WriteU16 appends v most significant byte first.
func (b *Buffer) WriteU16(v uint16) {
	var d [2]byte
	binary.BigEndian.PutUint16(d[:], v)
	b.WriteBytes(d[:])
}

// WriteI16 appends a signed 16-bit value.
func (b *Buffer) WriteI16(v int16) {
	b.WriteU16(uint16(v))
}

// WriteI24 appends the low 24 bits of v, most significant byte first.
func (b *Buffer) WriteI24(v int32) {
	b.WriteBytes([]byte{byte(v >> 16), byte(v >> 8), byte(v)})
}

// WriteU32 appends v most significant byte first.
func (b *Buffer) WriteU32(v uint32) {
	var d [4]byte
	binary.BigEndian.PutUint32(d[:], v)
	b.WriteBytes(d[:])
}

// WriteI32 appends a signed 32-bit value.
func (b *Buffer) WriteI32(v int32) {
	b.WriteU32(uint32(v))
}

// WriteU48 appends the low 48 bits of v, most significant byte first.
func (b *Buffer) WriteU48(v uint64) {
	var d [8]byte
	binary.BigEndian.PutUint64(d[:], v)
	b.WriteBytes(d[2:])
}

// WriteU64 appends v most significant byte first.
func (b *Buffer) WriteU64(v uint64) {
	var d [8]byte
	binary.BigEndian.PutUint64(d[:], v)
	b.WriteBytes(d[:])
}

// WriteF32 appends the IEEE-754 bits of v most significant byte first.
func (b *Buffer) WriteF32(v float32) {
	b.WriteU32(math.Float32bits(v))
}

// ReadU8 reads an unsigned byte.
func (b *Buffer) ReadU8() (uint8, error) {
	data, err := b.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

// ReadU16 reads a big-endian 16-bit value.
func (b *Buffer) ReadU16() (uint16, error) {
	data, err := b.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(data), nil
}

// ReadI16 reads a big-endian signed 16-bit value.
func (b *Buffer) ReadI16() (int16, error) {
	v, err := b.ReadU16()
	return int16(v), err
}

// ReadU32 reads a big-endian 32-bit value.
func (b *Buffer) ReadU32() (uint32, error) {
	data, err := b.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(data), nil
}

// ReadI32 reads a big-endian signed 32-bit value.
func (b *Buffer) ReadI32() (int32, error) {
	v, err := b.ReadU32()
	return int32(v), err
}

// ReadU48 reads 6 big-endian bytes into the low 48 bits of a 64-bit
// value.
func (b *Buffer) ReadU48() (uint64, error) {
	data, err := b.ReadBytes(6)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, d := range data {
		v = v<<8 | uint64(d)
	}
	return v, nil
}

// ReadU64 reads a big-endian 64-bit value.
func (b *Buffer) ReadU64() (uint64, error) {
	data, err := b.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(data), nil
}

// ReadF32 reads a big-endian IEEE-754 single.
func (b *Buffer) ReadF32() (float32, error) {
	v, err := b.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadString reads a string of the given byte length.
func (b *Buffer) ReadString(length int) (string, error) {
	data, err := b.ReadBytes(length)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadTimestamp reads the FPGA 8-byte little-endian timestamp and
// converts it to seconds.
func (b *Buffer) ReadTimestamp() (float64, error) {
	data, err := b.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return TimestampFromRaw(binary.LittleEndian.Uint64(data)), nil
}

// WriteCRC appends the accumulated CRC, low byte first, and resets the
// accumulator so the buffer can take further frames. The CRC bytes do
// not feed back into the accumulator.
func (b *Buffer) WriteCRC() {
	crc := b.crc.Value()
	for _, d := range []byte{byte(crc), byte(crc >> 8)} {
		b.words = append(b.words, b.framer.EncodeByte(d))
	}
	b.crc.Reset()
}

// CheckCRC stops change recording, reads the two little-endian CRC
// bytes and compares them against the accumulator. The accumulator is
// reset either way; the CRC bytes never participate in the next
// frame's accumulation.
func (b *Buffer) CheckCRC() error {
	calculated := b.crc.Value()
	b.recording = false
	lo, err := b.readByte()
	if err != nil {
		return err
	}
	hi, err := b.readByte()
	if err != nil {
		return err
	}
	b.crc.Reset()
	got := uint16(hi)<<8 | uint16(lo)
	if got != calculated {
		return &CRCError{Expected: calculated, Got: got}
	}
	return nil
}

// WriteEndOfFrame terminates the Tx frame. The resulting bus silence
// lets the addressed unit verify the CRC and execute the command.
func (b *Buffer) WriteEndOfFrame() {
	b.words = append(b.words, b.framer.EndOfFrame())
}

// ReadEndOfFrame consumes the end-of-frame token and resets the CRC.
func (b *Buffer) ReadEndOfFrame() error {
	if b.EndOfBuffer() {
		return ErrEndOfBuffer
	}
	if w := b.words[b.index]; w != b.framer.EndOfFrame() {
		return &FramingError{Want: "end of frame", Word: w, Offset: b.index}
	}
	b.index++
	b.crc.Reset()
	return nil
}

// WriteWaitForRx commands the FPGA to wait the given number of
// microseconds for the unit's reply before timing out.
func (b *Buffer) WriteWaitForRx(micros uint32) {
	b.words = append(b.words, b.framer.WaitForRx(micros))
}

// ReadWaitForRx consumes a wait-for-rx word and returns the timeout in
// microseconds.
func (b *Buffer) ReadWaitForRx() (uint32, error) {
	if b.EndOfBuffer() {
		return 0, ErrEndOfBuffer
	}
	micros, ok := b.framer.DecodeWaitForRx(b.words[b.index])
	if !ok {
		return 0, &FramingError{Want: "wait for RX", Word: b.words[b.index], Offset: b.index}
	}
	b.index++
	return micros, nil
}

// WriteDelay commands post-transmit bus silence, letting units process
// a broadcast.
func (b *Buffer) WriteDelay(micros uint32) {
	b.words = append(b.words, encodeDuration(micros, FIFODelay, FIFOLongDelay))
}

// ReadDelay consumes a delay word and returns the silence in
// microseconds.
func (b *Buffer) ReadDelay() (uint32, error) {
	if b.EndOfBuffer() {
		return 0, ErrEndOfBuffer
	}
	w := b.words[b.index]
	var micros uint32
	switch w & FIFOCmdMask {
	case FIFODelay:
		micros = uint32(w & 0x0FFF)
	case FIFOLongDelay:
		micros = uint32(w&0x0FFF) * 1000
	default:
		return 0, &FramingError{Want: "delay", Word: w, Offset: b.index}
	}
	b.index++
	return micros, nil
}

// WriteRxEndFrame appends the received-frame terminator.
func (b *Buffer) WriteRxEndFrame() {
	b.words = append(b.words, b.framer.RxEndFrame())
}

// RecordChanges starts copying every payload byte passing through the
// codec into the current record, for later comparison with
// CheckRecording.
func (b *Buffer) RecordChanges() {
	b.recording = true
}

// PauseRecordChanges suspends recording without discarding the record.
func (b *Buffer) PauseRecordChanges() {
	b.recording = false
}

// CheckRecording stops recording and compares the record against
// cached. It returns the snapshot the caller should keep and whether
// the record equaled cached (no change observed).
func (b *Buffer) CheckRecording(cached []byte) ([]byte, bool) {
	b.recording = false
	if bytes.Equal(cached, b.records) {
		b.records = b.records[:0]
		return cached, true
	}
	snapshot := append([]byte(nil), b.records...)
	b.records = b.records[:0]
	return snapshot, false
}

// PushCommanded records an outstanding (address, function) pair.
// Broadcast addresses produce no reply and are not recorded.
func (b *Buffer) PushCommanded(address, function uint8) {
	if IsUnicast(address) {
		b.commanded.push(address, function)
	}
}

// CheckCommanded pops the ledger front and verifies it matches the
// received (address, function). For an error response, function must
// be the request function the error stands in for.
func (b *Buffer) CheckCommanded(address, function uint8) error {
	front, ok := b.commanded.pop()
	if !ok {
		return &UnmatchedFunctionError{Address: address, Function: function}
	}
	if front.address != address || front.function != function {
		return &UnmatchedFunctionError{
			Address:          address,
			Function:         function,
			Expected:         true,
			ExpectedAddress:  front.address,
			ExpectedFunction: front.function,
		}
	}
	return nil
}

// CheckCommandedEmpty verifies no more replies are expected. It
// returns an error enumerating the pairs still outstanding, emptying
// the ledger.
func (b *Buffer) CheckCommandedEmpty() error {
	pairs := b.commanded.drain()
	if len(pairs) == 0 {
		return nil
	}
	return &OutstandingRequestsError{pairs: pairs}
}

// CallFunction frames a unicast or broadcast request: address,
// function, parameters, CRC, end of frame and the Rx timeout. Unicast
// requests enter the ledger; subnet selection, payload lengths and
// triggers are the FPGA driver's business.
func (b *Buffer) CallFunction(address, function uint8, timeoutMicros uint32, params ...interface{}) error {
	b.WriteU8(address)
	b.WriteU8(function)
	for _, p := range params {
		if err := b.writeParam(p); err != nil {
			return err
		}
	}
	b.WriteCRC()
	b.WriteEndOfFrame()
	b.WriteWaitForRx(timeoutMicros)

	b.PushCommanded(address, function)
	return nil
}

func (b *Buffer) writeParam(p interface{}) error {
	switch v := p.(type) {
	case uint8:
		b.WriteU8(v)
	case int8:
		b.WriteI8(v)
	case uint16:
		b.WriteU16(v)
	case int16:
		b.WriteI16(v)
	case uint32:
		b.WriteU32(v)
	case int32:
		b.WriteI32(v)
	case uint64:
		b.WriteU64(v)
	case float32:
		b.WriteF32(v)
	case Mode:
		b.WriteU16(uint16(v))
	case []byte:
		b.WriteBytes(v)
	default:
		return fmt.Errorf("ilcbus: unsupported parameter type %T", p)
	}
	return nil
}

// BroadcastFunction frames a broadcast request. The 4-bit counter lets
// unicast queries later confirm receipt, data usually carries one
// value per addressed unit, and the trailing delay keeps the bus
// silent while units process. Broadcasts are never ledgered.
func (b *Buffer) BroadcastFunction(address, function, counter uint8, delayMicros uint32, data []byte) {
	b.WriteU8(address)
	b.WriteU8(function)
	b.WriteU8(counter)
	b.WriteBytes(data)
	b.WriteCRC()
	b.WriteEndOfFrame()
	b.WriteDelay(delayMicros)
}
