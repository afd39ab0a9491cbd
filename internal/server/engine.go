// Package server implements the authoritative engine: a fixed-timestep
// loop driving simulation and network callbacks at independent rates,
// fed by a receiver worker that schedules client inputs a fixed number
// of ticks ahead.
package server

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/andersfylling/ticknet/internal/clock"
	"github.com/andersfylling/ticknet/internal/input"
	"github.com/andersfylling/ticknet/internal/metrics"
)

const (
	// frameClampNanos bounds a single frame's contribution to the
	// accumulators, protecting against debugger pauses and suspends.
	frameClampNanos = int64(250 * time.Millisecond)

	// maxCatchup bounds how many ticks either clock may run per loop
	// iteration before surplus time is dropped.
	maxCatchup = 5
)

// Engine owns the tick loop. Both clocks accumulate independently from
// one monotonic source, so neither rate leaks jitter into the other.
type Engine struct {
	cfg     Config
	hooks   Hooks
	clk     clock.Clock
	log     zerolog.Logger
	ctx     *Context
	running atomic.Bool
}

// NewEngine builds an engine for the given hooks. Invalid rates fall
// back to defaults; an input delay incompatible with the ring capacity
// is rejected.
func NewEngine(cfg Config, hooks Hooks, clk clock.Clock, m *metrics.Metrics, log zerolog.Logger) (*Engine, error) {
	cfg = cfg.normalized(log)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if m == nil {
		m = metrics.New(nil)
	}

	acks := input.NewAckTable(cfg.MaxPeers)
	if acks.Size() != cfg.MaxPeers {
		return nil, fmt.Errorf("ack table size %d does not match max peers %d", acks.Size(), cfg.MaxPeers)
	}

	return &Engine{
		cfg:   cfg,
		hooks: hooks,
		clk:   clk,
		log:   log.With().Str("component", "engine").Logger(),
		ctx: &Context{
			Cfg:     cfg,
			Metrics: m,
			Queue:   &input.Queue{},
			Ring:    input.NewRing(cfg.RingCapacity),
			Acks:    acks,
		},
	}, nil
}

// Context returns the engine's shared state, for wiring the receiver and
// for the hooks.
func (e *Engine) Context() *Context {
	return e.ctx
}

// Run executes load, the tick loop, and unload. It blocks until Stop is
// called from another goroutine.
func (e *Engine) Run() error {
	if err := e.hooks.Load(e.ctx); err != nil {
		return fmt.Errorf("load: %w", err)
	}

	e.running.Store(true)
	e.loop()

	if err := e.hooks.Unload(e.ctx); err != nil {
		return fmt.Errorf("unload: %w", err)
	}
	return nil
}

// Stop requests a cooperative shutdown; the loop exits after the current
// iteration.
func (e *Engine) Stop() {
	e.running.Store(false)
}

func (e *Engine) loop() {
	st := e.newLoopState()
	for e.running.Load() {
		e.iterate(st)
	}
}

type loopState struct {
	simPeriod int64
	netPeriod int64
	simDt     float64

	accSim int64
	accNet int64
	last   int64

	scratch []input.Queued
}

func (e *Engine) newLoopState() *loopState {
	return &loopState{
		simPeriod: int64(time.Second) / int64(e.cfg.SimHz),
		netPeriod: int64(time.Second) / int64(e.cfg.NetHz),
		simDt:     1.0 / float64(e.cfg.SimHz),
		last:      e.clk.NowNanos(),
	}
}

func (e *Engine) iterate(st *loopState) {
	now := e.clk.NowNanos()
	frame := now - st.last
	if frame > frameClampNanos {
		frame = frameClampNanos
	}
	if frame < 0 {
		frame = 0
	}
	st.last = now

	st.accSim += frame
	st.accNet += frame

	for catchup := 0; st.accSim >= st.simPeriod; {
		if catchup == maxCatchup {
			e.log.Warn().
				Int64("surplus_ns", st.accSim-st.simPeriod).
				Msg("simulation behind, dropping accumulated time")
			e.ctx.Metrics.BacklogOverruns.WithLabelValues(metrics.ClockSim).Inc()
			st.accSim = st.simPeriod
			break
		}
		e.simTickOnce(st)
		st.accSim -= st.simPeriod
		catchup++
	}

	for catchup := 0; st.accNet >= st.netPeriod; {
		if catchup == maxCatchup {
			e.log.Warn().
				Int64("surplus_ns", st.accNet-st.netPeriod).
				Msg("network behind, dropping accumulated time")
			e.ctx.Metrics.BacklogOverruns.WithLabelValues(metrics.ClockNet).Inc()
			st.accNet = st.netPeriod
			break
		}
		tick := e.ctx.netTick.Add(1)
		e.hooks.NetworkUpdate(tick)
		e.ctx.Metrics.NetTicks.Inc()
		st.accNet -= st.netPeriod
		catchup++
	}

	// Sleep to the nearer of the two next tick boundaries; skip when one
	// is already due.
	wait := st.simPeriod - st.accSim
	if w := st.netPeriod - st.accNet; w < wait {
		wait = w
	}
	if wait > 0 {
		e.clk.SleepUntil(now + wait)
	}
}

// simTickOnce advances one simulation tick: publish the new tick id,
// drain the handoff queue into the ring, take the inputs due this tick,
// acknowledge them as applied, then run the simulation hook.
func (e *Engine) simTickOnce(st *loopState) {
	tick := e.ctx.simTick.Add(1)

	e.ctx.Queue.DrainInto(&st.scratch)
	for _, q := range st.scratch {
		if q.TargetTick < tick {
			e.ctx.Metrics.InputsLate.Inc()
		}
		e.ctx.Ring.Schedule(q.TargetTick, q.Input)
	}

	inputs := e.ctx.Ring.Take(tick)
	for i := range inputs {
		e.ctx.Acks.RecordApplied(inputs[i].ClientID, inputs[i].Seq)
	}

	e.hooks.SimulationUpdate(tick, st.simDt, inputs)
	e.ctx.Metrics.SimTicks.Inc()
}
