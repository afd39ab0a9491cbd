// Package snapshot buffers recent server snapshots on the client.
package snapshot

import (
	"github.com/andersfylling/ticknet/internal/protocol"
)

// Buffer holds the most recent snapshots, evicting the oldest at
// capacity.
type Buffer struct {
	snaps    []protocol.Snapshot
	capacity int
}

// NewBuffer creates a buffer with the given capacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{
		snaps:    make([]protocol.Snapshot, 0, capacity),
		capacity: capacity,
	}
}

// Add appends a snapshot, dropping the oldest when full.
func (b *Buffer) Add(s protocol.Snapshot) {
	if len(b.snaps) >= b.capacity {
		copy(b.snaps, b.snaps[1:])
		b.snaps = b.snaps[:len(b.snaps)-1]
	}
	b.snaps = append(b.snaps, s)
}

// Latest returns the most recent snapshot.
func (b *Buffer) Latest() (protocol.Snapshot, bool) {
	if len(b.snaps) == 0 {
		return protocol.Snapshot{}, false
	}
	return b.snaps[len(b.snaps)-1], true
}

// Len returns the number of buffered snapshots.
func (b *Buffer) Len() int {
	return len(b.snaps)
}
