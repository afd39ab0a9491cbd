package server

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/andersfylling/ticknet/internal/input"
	"github.com/andersfylling/ticknet/internal/protocol"
	"github.com/andersfylling/ticknet/internal/transport"
)

// pollTimeout is the receiver's sole blocking point and the only
// backpressure knob on the input path.
const pollTimeout = time.Millisecond

// Transport is the slice of the host the receiver needs.
type Transport interface {
	Service(timeout time.Duration) transport.Event
	ClosePeer(peer uint32)
}

// Receiver services the transport on its own goroutine: it parses
// inputs, records received acks, stamps each input with its target
// simulation tick, and hands it to the engine through the queue.
type Receiver struct {
	ctx     *Context
	tr      Transport
	log     zerolog.Logger
	running atomic.Bool
	done    chan struct{}
}

// NewReceiver wires a receiver to an engine context and a transport.
func NewReceiver(ctx *Context, tr Transport, log zerolog.Logger) *Receiver {
	return &Receiver{
		ctx: ctx,
		tr:  tr,
		log: log.With().Str("component", "receiver").Logger(),
	}
}

// Start launches the worker goroutine. Starting twice is a no-op.
func (r *Receiver) Start() {
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	r.done = make(chan struct{})
	go r.run()
}

// Stop clears the worker's flag and joins it. The transport host must
// stay alive until Stop returns; the worker never touches it afterwards.
func (r *Receiver) Stop() {
	if !r.running.CompareAndSwap(true, false) {
		return
	}
	<-r.done
}

func (r *Receiver) run() {
	defer close(r.done)

	for r.running.Load() {
		r.handleEvent(r.tr.Service(pollTimeout))
	}
}

func (r *Receiver) handleEvent(ev transport.Event) {
	switch ev.Type {
	case transport.EventConnect:
		r.log.Info().Uint32("peer", ev.Peer).Msg("peer connected")
		r.ctx.Metrics.ConnectedPeers.Inc()
	case transport.EventDisconnect:
		r.log.Info().Uint32("peer", ev.Peer).Msg("peer disconnected")
		r.ctx.Metrics.ConnectedPeers.Dec()
	case transport.EventReceive:
		r.handleReceive(ev)
	}
}

func (r *Receiver) handleReceive(ev transport.Event) {
	if ev.Channel == transport.ChannelControl {
		r.handleControl(ev)
		return
	}

	in, err := protocol.ParseClientInput(ev.Payload, ev.Peer)
	if err != nil {
		r.log.Warn().
			Uint32("peer", ev.Peer).
			Int("payload_len", len(ev.Payload)).
			Err(err).
			Msg("dropping unparseable input")
		r.ctx.Metrics.InputsRejected.Inc()
		return
	}

	r.ctx.Acks.RecordReceived(in.ClientID, in.Seq)

	target := r.ctx.SimTick() + uint64(r.ctx.Cfg.InputDelayTicks)
	r.ctx.Queue.Push(input.Queued{TargetTick: target, Input: in})
	r.ctx.Metrics.InputsReceived.Inc()
}

func (r *Receiver) handleControl(ev transport.Event) {
	bye, err := protocol.ParseGoodbye(ev.Payload)
	if err != nil {
		r.log.Warn().Uint32("peer", ev.Peer).Err(err).Msg("unrecognized control frame")
		return
	}
	r.log.Info().Uint32("peer", ev.Peer).Str("reason", bye.Reason).Msg("peer leaving")
	r.tr.ClosePeer(ev.Peer)
}
