// Package transport adapts the kcp reliable-UDP session layer to the
// event-driven host model the engine consumes: one listening host with an
// indexed peer table, serviced by a single worker polling for events,
// with per-peer sends from the engine thread.
package transport

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	kcp "github.com/xtaci/kcp-go/v5"

	"github.com/andersfylling/ticknet/internal/protocol"
)

// EventType discriminates host events.
type EventType int

const (
	// EventNone is returned when Service times out with nothing pending.
	EventNone EventType = iota
	EventConnect
	EventReceive
	EventDisconnect
)

// Event is one occurrence delivered by Service.
type Event struct {
	Type    EventType
	Peer    uint32
	Channel byte
	Flags   byte
	Payload []byte
}

// ErrPeerGone is returned by Send for a peer that is not connected.
var ErrPeerGone = errors.New("peer not connected")

type peerConn struct {
	id   uint32
	ref  xid.ID
	sess *kcp.UDPSession
}

// Host accepts peers and surfaces their traffic as events.
//
// Concurrency contract: Service is intended for a single worker
// goroutine. Send and Peers may be called from any goroutine concurrently
// with Service; kcp session writes are goroutine-safe, and the peer table
// carries its own mutex.
type Host struct {
	log      zerolog.Logger
	listener *kcp.Listener
	maxPeers int

	mu    sync.Mutex
	peers map[uint32]*peerConn

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Listen binds a host to the given UDP port (dual-stack wildcard) and
// starts accepting up to maxPeers concurrent peers.
func Listen(port, maxPeers int, log zerolog.Logger) (*Host, error) {
	listener, err := kcp.ListenWithOptions(fmt.Sprintf(":%d", port), nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("listen udp :%d: %w", port, err)
	}

	h := &Host{
		log:      log.With().Str("component", "transport").Logger(),
		listener: listener,
		maxPeers: maxPeers,
		peers:    make(map[uint32]*peerConn),
		events:   make(chan Event, 256),
		done:     make(chan struct{}),
	}

	h.wg.Add(1)
	go h.acceptLoop()

	h.log.Info().Stringer("addr", listener.Addr()).Int("max_peers", maxPeers).Msg("listening")
	return h, nil
}

// Addr returns the bound address.
func (h *Host) Addr() string {
	return h.listener.Addr().String()
}

func (h *Host) acceptLoop() {
	defer h.wg.Done()

	for {
		sess, err := h.listener.AcceptKCP()
		if err != nil {
			select {
			case <-h.done:
			default:
				h.log.Error().Err(err).Msg("accept failed")
			}
			return
		}

		tuneSession(sess)

		p, ok := h.addPeer(sess)
		if !ok {
			h.log.Warn().Stringer("remote", sess.RemoteAddr()).Msg("refusing peer, table full")
			sess.Close()
			continue
		}

		hello, err := protocol.Hello{Version: protocol.Version, PeerID: p.id}.Marshal()
		if err == nil {
			err = writeFrame(sess, ChannelControl, 0, hello)
		}
		if err != nil {
			h.log.Warn().Err(err).Uint32("peer", p.id).Msg("hello failed, dropping peer")
			h.removePeer(p.id)
			sess.Close()
			continue
		}

		h.log.Info().Uint32("peer", p.id).Stringer("ref", p.ref).
			Stringer("remote", sess.RemoteAddr()).Msg("peer accepted")

		h.wg.Add(1)
		go h.readLoop(p)
		h.emit(Event{Type: EventConnect, Peer: p.id})
	}
}

// tuneSession configures a session for low-latency small-message traffic.
func tuneSession(sess *kcp.UDPSession) {
	sess.SetStreamMode(true)
	sess.SetNoDelay(1, 10, 2, 1)
	sess.SetWindowSize(128, 128)
	sess.SetACKNoDelay(true)
}

func (h *Host) readLoop(p *peerConn) {
	defer h.wg.Done()

	for {
		f, err := readFrame(p.sess)
		if err != nil {
			if h.removePeer(p.id) {
				p.sess.Close()
				h.emit(Event{Type: EventDisconnect, Peer: p.id})
			}
			return
		}
		h.emit(Event{
			Type:    EventReceive,
			Peer:    p.id,
			Channel: f.channel,
			Flags:   f.flags,
			Payload: f.payload,
		})
	}
}

func (h *Host) emit(ev Event) {
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

// addPeer assigns the lowest free index below maxPeers.
func (h *Host) addPeer(sess *kcp.UDPSession) (*peerConn, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id := uint32(0); int(id) < h.maxPeers; id++ {
		if _, taken := h.peers[id]; !taken {
			p := &peerConn{id: id, ref: xid.New(), sess: sess}
			h.peers[id] = p
			return p, true
		}
	}
	return nil, false
}

// removePeer reports whether the peer was still present, so disconnects
// are emitted exactly once.
func (h *Host) removePeer(id uint32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.peers[id]; !ok {
		return false
	}
	delete(h.peers, id)
	return true
}

// Service returns the next pending event, or a zero Event after timeout.
func (h *Host) Service(timeout time.Duration) Event {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-h.events:
		return ev
	case <-timer.C:
		return Event{}
	case <-h.done:
		return Event{}
	}
}

// Send writes one frame to the given peer.
func (h *Host) Send(peer uint32, channel, flags byte, payload []byte) error {
	h.mu.Lock()
	p, ok := h.peers[peer]
	h.mu.Unlock()
	if !ok {
		return ErrPeerGone
	}
	return writeFrame(p.sess, channel, flags, payload)
}

// Peers returns the connected peer indexes in ascending order.
func (h *Host) Peers() []uint32 {
	h.mu.Lock()
	ids := make([]uint32, 0, len(h.peers))
	for id := range h.peers {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ClosePeer drops a peer's session; the read loop observes the close and
// emits the disconnect event.
func (h *Host) ClosePeer(peer uint32) {
	h.mu.Lock()
	p, ok := h.peers[peer]
	h.mu.Unlock()
	if ok {
		p.sess.Close()
	}
}

// Close shuts the host down: stops accepting, closes every session, and
// waits for the worker goroutines to finish.
func (h *Host) Close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.done)
		err = h.listener.Close()

		h.mu.Lock()
		for _, p := range h.peers {
			p.sess.Close()
		}
		h.mu.Unlock()

		h.wg.Wait()
	})
	return err
}
