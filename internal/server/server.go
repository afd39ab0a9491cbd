package server

import (
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/andersfylling/ticknet/internal/clock"
	"github.com/andersfylling/ticknet/internal/game"
	"github.com/andersfylling/ticknet/internal/metrics"
	"github.com/andersfylling/ticknet/internal/protocol"
	"github.com/andersfylling/ticknet/internal/transport"
)

// Server ties the engine to a real transport: it owns the listening
// host, the receiver worker, and the demo world, and implements the
// engine's hook surface.
type Server struct {
	cfg Config
	log zerolog.Logger

	eng   *Engine
	ctx   *Context
	world *game.World

	mu   sync.RWMutex
	host *transport.Host
	recv *Receiver
}

// NewServer builds a dedicated server around a fresh engine.
func NewServer(cfg Config, m *metrics.Metrics, log zerolog.Logger) (*Server, error) {
	cfg = cfg.normalized(log)

	s := &Server{
		cfg:   cfg,
		log:   log.With().Str("component", "server").Logger(),
		world: game.NewWorld(cfg.MaxPeers),
	}

	eng, err := NewEngine(cfg, s, clock.NewMonotonic(), m, log)
	if err != nil {
		return nil, err
	}
	s.eng = eng
	s.ctx = eng.Context()
	return s, nil
}

// Run blocks in the engine loop until Stop is called.
func (s *Server) Run() error {
	return s.eng.Run()
}

// Stop requests shutdown.
func (s *Server) Stop() {
	s.eng.Stop()
}

// PlayerState returns a copy of a demo-world entity.
func (s *Server) PlayerState(id uint32) (game.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.world.Player(id)
}

// Addr returns the transport's bound address once loaded.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.host == nil {
		return ""
	}
	return s.host.Addr()
}

// Load creates the transport host and starts the receiver worker.
func (s *Server) Load(ctx *Context) error {
	host, err := transport.Listen(s.cfg.Port, s.cfg.MaxPeers, s.log)
	if err != nil {
		s.log.Error().Err(err).Int("port", s.cfg.Port).Msg("transport startup failed")
		return err
	}

	recv := NewReceiver(ctx, host, s.log)
	recv.Start()

	s.mu.Lock()
	s.host = host
	s.recv = recv
	s.mu.Unlock()

	s.log.Info().
		Int("sim_hz", s.cfg.SimHz).
		Int("net_hz", s.cfg.NetHz).
		Int("input_delay", s.cfg.InputDelayTicks).
		Msg("server loaded")
	return nil
}

// Unload joins the receiver, then tears the host down. The join comes
// first: the worker must never touch host memory after shutdown begins.
func (s *Server) Unload(*Context) error {
	s.mu.Lock()
	host, recv := s.host, s.recv
	s.host, s.recv = nil, nil
	s.mu.Unlock()

	var result *multierror.Error
	if recv != nil {
		recv.Stop()
	}
	if host != nil {
		result = multierror.Append(result, host.Close())
	}
	return result.ErrorOrNil()
}

// SimulationUpdate applies this tick's inputs to the world and steps it.
func (s *Server) SimulationUpdate(_ uint64, dt float64, inputs []protocol.ClientInput) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, in := range inputs {
		s.world.Apply(in)
	}
	s.world.Step(dt)
}

// NetworkUpdate emits one snapshot per connected peer, each carrying
// that peer's own ack pair.
func (s *Server) NetworkUpdate(uint64) {
	s.mu.RLock()
	host := s.host
	s.mu.RUnlock()
	if host == nil {
		return
	}

	serverTick := s.ctx.SimTick()
	for _, peer := range host.Peers() {
		snap := protocol.Snapshot{
			ServerTick: serverTick,
			AckApplied: s.ctx.Acks.Applied(peer),
			AckRecv:    s.ctx.Acks.Received(peer),
		}
		payload, err := snap.Marshal()
		if err != nil {
			s.log.Error().Err(err).Msg("snapshot encode failed")
			continue
		}
		if err := host.Send(peer, transport.ChannelGame, transport.FlagUnsequenced, payload); err != nil {
			s.log.Debug().Err(err).Uint32("peer", peer).Msg("snapshot send failed")
		}
	}
}
