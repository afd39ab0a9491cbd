package clock

import (
	"testing"
	"time"
)

func TestNowNanosNeverRetreats(t *testing.T) {
	c := NewMonotonic()

	prev := c.NowNanos()
	for i := 0; i < 10_000; i++ {
		now := c.NowNanos()
		if now < prev {
			t.Fatalf("clock retreated: %d -> %d", prev, now)
		}
		prev = now
	}
}

func TestSleepUntilPastDeadline(t *testing.T) {
	c := NewMonotonic()

	start := c.NowNanos()
	c.SleepUntil(start - int64(time.Second))
	elapsed := c.NowNanos() - start

	if elapsed > int64(10*time.Millisecond) {
		t.Fatalf("past deadline should return immediately, took %s", time.Duration(elapsed))
	}
}

func TestSleepUntilReachesDeadline(t *testing.T) {
	c := NewMonotonic()

	deadline := c.NowNanos() + int64(5*time.Millisecond)
	c.SleepUntil(deadline)

	if now := c.NowNanos(); now < deadline {
		t.Fatalf("woke %s early", time.Duration(deadline-now))
	}
}
