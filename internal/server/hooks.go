package server

import (
	"sync/atomic"

	"github.com/andersfylling/ticknet/internal/input"
	"github.com/andersfylling/ticknet/internal/metrics"
	"github.com/andersfylling/ticknet/internal/protocol"
)

// Hooks is the surface a host implements to run on the engine.
type Hooks interface {
	// Load runs once before the loop starts. This is where a dedicated
	// server creates its transport host and starts the receiver worker.
	Load(ctx *Context) error

	// Unload runs once after the loop exits, regardless of how.
	Unload(ctx *Context) error

	// SimulationUpdate runs once per simulation tick with the fixed
	// timestep and the inputs scheduled for that tick, already
	// acknowledged as applied.
	SimulationUpdate(tick uint64, dt float64, inputs []protocol.ClientInput)

	// NetworkUpdate runs once per network tick.
	NetworkUpdate(tick uint64)
}

// Context bundles the state shared between the engine loop, the receiver
// worker, and the hooks of one engine instance.
type Context struct {
	Cfg     Config
	Metrics *metrics.Metrics
	Queue   *input.Queue
	Ring    *input.Ring
	Acks    *input.AckTable

	// Tick counters. The engine loop is the only writer; the receiver
	// reads simTick to stamp target ticks and needs only a recent lower
	// bound, so relaxed atomic loads suffice.
	simTick atomic.Uint64
	netTick atomic.Uint64
}

// SimTick returns the current simulation tick id.
func (c *Context) SimTick() uint64 {
	return c.simTick.Load()
}

// NetTick returns the current network tick id.
func (c *Context) NetTick() uint64 {
	return c.netTick.Load()
}
