package input

import (
	"sync"

	"github.com/andersfylling/ticknet/internal/protocol"
)

// Queued is an input stamped with the simulation tick it must be applied
// at, computed by the receiver as receive-tick + input delay.
type Queued struct {
	TargetTick uint64
	Input      protocol.ClientInput
}

// Queue is the handoff between the receiver worker (producer) and the
// engine loop (consumer). Push appends under the mutex; DrainInto swaps
// the internal buffer with the caller's in O(1), so the lock is held for
// the duration of a pointer swap, never for the length of the work.
// Inputs pushed concurrently with a drain land in the next drain.
type Queue struct {
	mu  sync.Mutex
	buf []Queued
}

// Push appends item to the queue.
func (q *Queue) Push(item Queued) {
	q.mu.Lock()
	q.buf = append(q.buf, item)
	q.mu.Unlock()
}

// DrainInto swaps the queue's buffer with *out. On return *out holds
// everything pushed before the swap and the queue continues on the
// caller's old buffer, truncated to zero length.
func (q *Queue) DrainInto(out *[]Queued) {
	q.mu.Lock()
	q.buf, *out = (*out)[:0], q.buf
	q.mu.Unlock()
}

// Len reports the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}
