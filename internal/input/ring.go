// Package input implements the server-side input path: the handoff queue
// the receiver worker fills, the tick-scheduled ring the engine drains,
// and the per-client acknowledgement table reported in snapshots.
package input

import (
	"github.com/andersfylling/ticknet/internal/protocol"
)

// DefaultRingCapacity must exceed the input delay plus tolerated arrival
// jitter in ticks.
const DefaultRingCapacity = 256

type slot struct {
	tick   uint64
	inputs []protocol.ClientInput
}

// Ring holds inputs scheduled against the absolute simulation tick they
// must be applied at. Slots are addressed tick mod capacity and stamped
// with the tick they currently belong to; a mismatched stamp means the
// slot content is stale and is discarded on first touch. Inputs whose
// target tick has already passed are never taken and silently age out.
//
// The ring is owned by the engine goroutine; it is not safe for
// concurrent use.
type Ring struct {
	slots []slot
}

// NewRing creates a ring with the given slot count. Non-positive
// capacities fall back to DefaultRingCapacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Ring{slots: make([]slot, capacity)}
}

// Capacity returns the slot count.
func (r *Ring) Capacity() int {
	return len(r.slots)
}

// Schedule appends in to the slot for targetTick. A slot stamped with a
// different tick is reset first (lazy reset on overwrite); its backing
// storage is reused.
func (r *Ring) Schedule(targetTick uint64, in protocol.ClientInput) {
	s := &r.slots[targetTick%uint64(len(r.slots))]
	if s.tick != targetTick {
		s.tick = targetTick
		s.inputs = s.inputs[:0]
	}
	s.inputs = append(s.inputs, in)
}

// Take returns the inputs scheduled for tick and clears the slot. A slot
// stamped with any other tick is treated as empty. The returned slice
// shares the slot's backing storage and is valid until the next Schedule
// into the same slot (a late input for this tick, or the tick a full ring
// capacity later).
func (r *Ring) Take(tick uint64) []protocol.ClientInput {
	s := &r.slots[tick%uint64(len(r.slots))]
	if s.tick != tick {
		return nil
	}
	out := s.inputs
	s.inputs = out[:0]
	return out
}
