// Copyright 2026 the ilcbus authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package ilcbus

import "time"

// FPGA is the hardware collaborator multiplexing framed byte streams
// onto FIFO command and response queues. The core never waits on I/O
// itself; implementations time frames on the wire and hand back
// complete response payloads ready for Buffer.ProcessResponse.
type FPGA interface {
	// WriteCommandFIFO queues framed Tx words for transmission.
	WriteCommandFIFO(words []uint16, timeout time.Duration) error
	// ReadResponseFIFO returns framed Rx words received on the bus.
	ReadResponseFIFO(timeout time.Duration) ([]uint16, error)
}
