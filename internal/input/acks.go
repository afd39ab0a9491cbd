package input

import "sync/atomic"

// DefaultMaxPeers matches the transport's default peer cap; the table
// size and the transport's configured maximum must agree.
const DefaultMaxPeers = 64

// AckTable tracks, per peer, the latest input sequence seen by the
// receiver and the latest applied by the simulation. The receiver is
// the only writer of the received column and the engine the only writer
// of the applied column; each cell is an independent atomic and
// snapshots report the two values verbatim, so no cross-cell ordering is
// needed.
type AckTable struct {
	received []atomic.Uint32
	applied  []atomic.Uint32
}

// NewAckTable creates a table for the given peer count. Non-positive
// counts fall back to DefaultMaxPeers.
func NewAckTable(peers int) *AckTable {
	if peers <= 0 {
		peers = DefaultMaxPeers
	}
	return &AckTable{
		received: make([]atomic.Uint32, peers),
		applied:  make([]atomic.Uint32, peers),
	}
}

// Size returns the peer capacity.
func (t *AckTable) Size() int {
	return len(t.received)
}

// RecordReceived stores the latest sequence seen from peer. Out-of-range
// peers are ignored and reported as false.
func (t *AckTable) RecordReceived(peer, seq uint32) bool {
	if int(peer) >= len(t.received) {
		return false
	}
	t.received[peer].Store(seq)
	return true
}

// RecordApplied stores the latest sequence applied for peer. Out-of-range
// peers are ignored and reported as false.
func (t *AckTable) RecordApplied(peer, seq uint32) bool {
	if int(peer) >= len(t.applied) {
		return false
	}
	t.applied[peer].Store(seq)
	return true
}

// Received returns the last sequence seen from peer, zero when out of
// range.
func (t *AckTable) Received(peer uint32) uint32 {
	if int(peer) >= len(t.received) {
		return 0
	}
	return t.received[peer].Load()
}

// Applied returns the last sequence applied for peer, zero when out of
// range.
func (t *AckTable) Applied(peer uint32) uint32 {
	if int(peer) >= len(t.applied) {
		return 0
	}
	return t.applied[peer].Load()
}

// Reset zeroes every cell.
func (t *AckTable) Reset() {
	for i := range t.received {
		t.received[i].Store(0)
		t.applied[i].Store(0)
	}
}
