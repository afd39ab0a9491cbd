// Package clock provides the monotonic time source the tick loop runs on.
package clock

import "time"

// spinMargin is the residual busy-wait window: sleeping the whole interval
// risks oversleeping by a scheduler quantum, spinning the whole interval
// burns a core.
const spinMargin = 200 * time.Microsecond

// Clock is the time source consumed by the engine loop. Production code
// uses Monotonic; tests substitute a hand-advanced implementation.
type Clock interface {
	// NowNanos returns monotonic nanoseconds. The zero point is arbitrary,
	// only differences are meaningful. Never retreats.
	NowNanos() int64

	// SleepUntil blocks until NowNanos() >= deadline. A deadline in the
	// past returns immediately.
	SleepUntil(deadline int64)
}

// Monotonic reads the runtime's monotonic clock, anchored at creation time.
type Monotonic struct {
	base time.Time
}

// NewMonotonic creates a Monotonic clock starting near zero.
func NewMonotonic() *Monotonic {
	return &Monotonic{base: time.Now()}
}

// NowNanos returns nanoseconds elapsed since the clock was created.
func (m *Monotonic) NowNanos() int64 {
	return int64(time.Since(m.base))
}

// SleepUntil sleeps most of the interval, then spins the final spinMargin.
func (m *Monotonic) SleepUntil(deadline int64) {
	if remaining := deadline - m.NowNanos(); remaining > int64(spinMargin) {
		time.Sleep(time.Duration(remaining) - spinMargin)
	}
	for m.NowNanos() < deadline {
	}
}
