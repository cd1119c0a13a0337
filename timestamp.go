// Copyright 2026 the ilcbus authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package ilcbus

// The FPGA stamps received frames with a 64-bit little-endian word
// counting nanoseconds.

// TimestampFromRaw converts the FPGA time representation to seconds.
func TimestampFromRaw(raw uint64) float64 {
	return float64(raw) / 1e9
}

// TimestampToRaw converts seconds to the FPGA time representation.
func TimestampToRaw(seconds float64) uint64 {
	return uint64(seconds * 1e9)
}
