// Copyright 2026 the ilcbus authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package ilcbus

// commandedPair is one outstanding request awaiting its response.
type commandedPair struct {
	address  uint8
	function uint8
}

// requestLedger is a FIFO of outstanding (address, function) pairs.
// Requests enter in issue order and the front entry always names the
// next expected response.
type requestLedger struct {
	pairs []commandedPair
}

func (l *requestLedger) push(address, function uint8) {
	l.pairs = append(l.pairs, commandedPair{address: address, function: function})
}

func (l *requestLedger) pop() (commandedPair, bool) {
	if len(l.pairs) == 0 {
		return commandedPair{}, false
	}
	p := l.pairs[0]
	l.pairs = l.pairs[1:]
	return p, true
}

// drain empties the ledger and returns what it held.
func (l *requestLedger) drain() []commandedPair {
	p := l.pairs
	l.pairs = nil
	return p
}

func (l *requestLedger) clear() {
	l.pairs = nil
}
