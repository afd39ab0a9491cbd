package transport

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/andersfylling/ticknet/internal/protocol"
)

func startHost(t *testing.T, maxPeers int) *Host {
	t.Helper()

	h, err := Listen(0, maxPeers, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func dialHost(t *testing.T, h *Host) *Conn {
	t.Helper()

	_, port, err := net.SplitHostPort(h.Addr())
	if err != nil {
		t.Fatal(err)
	}
	c, err := Dial("127.0.0.1:"+port, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// serviceUntil polls the host until an event of the wanted type arrives.
func serviceUntil(t *testing.T, h *Host, want EventType) Event {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ev := h.Service(time.Millisecond)
		if ev.Type == want {
			return ev
		}
	}
	t.Fatalf("no event of type %d within deadline", want)
	return Event{}
}

func TestHostLoopback(t *testing.T) {
	h := startHost(t, 4)
	c := dialHost(t, h)

	hello, err := c.AwaitHello(5 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if hello.Version != protocol.Version {
		t.Fatalf("hello version = %d", hello.Version)
	}
	if hello.PeerID != 0 {
		t.Fatalf("first peer should get index 0, got %d", hello.PeerID)
	}

	ev := serviceUntil(t, h, EventConnect)
	if ev.Peer != 0 {
		t.Fatalf("connect peer = %d", ev.Peer)
	}

	// Client -> server input payload on the game channel.
	in := protocol.ClientInput{ClientTick: 7, Seq: 1, Buttons: 1, AxisX: 0.25, AxisY: -0.10}
	payload, err := in.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Send(ChannelGame, FlagUnsequenced, payload); err != nil {
		t.Fatal(err)
	}

	ev = serviceUntil(t, h, EventReceive)
	if ev.Channel != ChannelGame {
		t.Fatalf("receive channel = %d", ev.Channel)
	}
	got, err := protocol.ParseClientInput(ev.Payload, ev.Peer)
	if err != nil {
		t.Fatal(err)
	}
	if got.Seq != 1 || got.ClientTick != 7 {
		t.Fatalf("parsed input %+v", got)
	}

	// Server -> client snapshot.
	snap, err := protocol.Snapshot{ServerTick: 100, AckApplied: 1, AckRecv: 1}.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Send(0, ChannelGame, FlagUnsequenced, snap); err != nil {
		t.Fatal(err)
	}

	ch, body, err := c.RecvPayload(5 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if ch != ChannelGame {
		t.Fatalf("snapshot channel = %d", ch)
	}
	gotSnap, err := protocol.ParseSnapshot(body)
	if err != nil {
		t.Fatal(err)
	}
	if gotSnap.ServerTick != 100 {
		t.Fatalf("snapshot %+v", gotSnap)
	}
}

func TestHostDisconnectEvent(t *testing.T) {
	h := startHost(t, 4)
	c := dialHost(t, h)

	if _, err := c.AwaitHello(5 * time.Second); err != nil {
		t.Fatal(err)
	}
	serviceUntil(t, h, EventConnect)

	c.Close()
	ev := serviceUntil(t, h, EventDisconnect)
	if ev.Peer != 0 {
		t.Fatalf("disconnect peer = %d", ev.Peer)
	}

	if len(h.Peers()) != 0 {
		t.Fatalf("peer table not empty: %v", h.Peers())
	}
}

func TestHostSendToUnknownPeer(t *testing.T) {
	h := startHost(t, 4)

	if err := h.Send(3, ChannelGame, 0, []byte("{}")); err != ErrPeerGone {
		t.Fatalf("expected ErrPeerGone, got %v", err)
	}
}

func TestConnRecvTimeout(t *testing.T) {
	h := startHost(t, 4)
	c := dialHost(t, h)

	if _, err := c.AwaitHello(5 * time.Second); err != nil {
		t.Fatal(err)
	}

	_, _, err := c.RecvPayload(10 * time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout")
	}
	if !IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}
