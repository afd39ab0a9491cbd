package snapshot

import (
	"testing"

	"github.com/andersfylling/ticknet/internal/protocol"
)

func TestBufferLatest(t *testing.T) {
	b := NewBuffer(4)

	if _, ok := b.Latest(); ok {
		t.Fatal("empty buffer should have no latest")
	}

	b.Add(protocol.Snapshot{ServerTick: 1})
	b.Add(protocol.Snapshot{ServerTick: 2})

	latest, ok := b.Latest()
	if !ok || latest.ServerTick != 2 {
		t.Fatalf("latest = %+v", latest)
	}
}

func TestBufferEvictsOldest(t *testing.T) {
	b := NewBuffer(2)

	for tick := uint64(1); tick <= 5; tick++ {
		b.Add(protocol.Snapshot{ServerTick: tick})
	}

	if b.Len() != 2 {
		t.Fatalf("len = %d, want 2", b.Len())
	}
	latest, _ := b.Latest()
	if latest.ServerTick != 5 {
		t.Fatalf("latest tick = %d, want 5", latest.ServerTick)
	}
}
