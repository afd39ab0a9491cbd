package server

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/andersfylling/ticknet/internal/clock"
	"github.com/andersfylling/ticknet/internal/input"
	"github.com/andersfylling/ticknet/internal/protocol"
)

// manualClock is hand-advanced; SleepUntil jumps straight to the
// deadline so loop iterations are deterministic.
type manualClock struct {
	now int64
}

func (c *manualClock) NowNanos() int64 {
	return c.now
}

func (c *manualClock) SleepUntil(deadline int64) {
	if deadline > c.now {
		c.now = deadline
	}
}

func (c *manualClock) Advance(d time.Duration) {
	c.now += int64(d)
}

type simCall struct {
	tick   uint64
	dt     float64
	inputs []protocol.ClientInput
}

type recordingHooks struct {
	loaded   int
	unloaded int
	simCalls []simCall
	netTicks []uint64
}

func (h *recordingHooks) Load(*Context) error   { h.loaded++; return nil }
func (h *recordingHooks) Unload(*Context) error { h.unloaded++; return nil }

func (h *recordingHooks) SimulationUpdate(tick uint64, dt float64, inputs []protocol.ClientInput) {
	// The input slice shares the ring slot's backing storage; copy it.
	h.simCalls = append(h.simCalls, simCall{tick: tick, dt: dt, inputs: append([]protocol.ClientInput(nil), inputs...)})
}

func (h *recordingHooks) NetworkUpdate(tick uint64) {
	h.netTicks = append(h.netTicks, tick)
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *manualClock, *recordingHooks) {
	t.Helper()

	clk := &manualClock{}
	hooks := &recordingHooks{}
	e, err := NewEngine(cfg, hooks, clk, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return e, clk, hooks
}

func TestEngineTickCadence(t *testing.T) {
	e, clk, hooks := newTestEngine(t, DefaultConfig())
	st := e.newLoopState()

	for clk.now < int64(time.Second) {
		e.iterate(st)
	}

	if n := len(hooks.simCalls); n < 59 || n > 61 {
		t.Fatalf("sim ticks over 1s = %d, want ~60", n)
	}
	if n := len(hooks.netTicks); n < 19 || n > 21 {
		t.Fatalf("net ticks over 1s = %d, want ~20", n)
	}
}

func TestEngineTickIDsStrictlyMonotone(t *testing.T) {
	e, clk, hooks := newTestEngine(t, DefaultConfig())
	st := e.newLoopState()

	for clk.now < int64(500*time.Millisecond) {
		e.iterate(st)
	}

	for i, call := range hooks.simCalls {
		if call.tick != uint64(i+1) {
			t.Fatalf("sim tick %d at index %d", call.tick, i)
		}
	}
	for i, tick := range hooks.netTicks {
		if tick != uint64(i+1) {
			t.Fatalf("net tick %d at index %d", tick, i)
		}
	}
}

func TestEngineFixedTimestep(t *testing.T) {
	e, clk, hooks := newTestEngine(t, DefaultConfig())
	st := e.newLoopState()

	for clk.now < int64(100*time.Millisecond) {
		e.iterate(st)
	}

	want := 1.0 / 60.0
	for _, call := range hooks.simCalls {
		if call.dt != want {
			t.Fatalf("dt = %v, want %v", call.dt, want)
		}
	}
}

func TestEngineBacklogCap(t *testing.T) {
	e, clk, hooks := newTestEngine(t, DefaultConfig())
	st := e.newLoopState()

	// A 2s stall collapses to the 250ms frame clamp, which still exceeds
	// the catch-up bound for the sim clock.
	clk.Advance(2 * time.Second)
	e.iterate(st)

	if n := len(hooks.simCalls); n != maxCatchup {
		t.Fatalf("catch-up sim ticks = %d, want %d", n, maxCatchup)
	}
	if st.accSim != st.simPeriod {
		t.Fatalf("accSim = %d, want capped to one period %d", st.accSim, st.simPeriod)
	}
	if got := testutil.ToFloat64(e.ctx.Metrics.BacklogOverruns.WithLabelValues("sim")); got != 1 {
		t.Fatalf("sim backlog overruns = %v, want 1", got)
	}
}

func TestEngineAppliesInputAtTargetTick(t *testing.T) {
	e, clk, hooks := newTestEngine(t, DefaultConfig())
	st := e.newLoopState()
	ctx := e.Context()

	in := protocol.ClientInput{ClientID: 0, ClientTick: 7, Seq: 1, Buttons: 1, AxisX: 0.25, AxisY: -0.10}
	ctx.Queue.Push(input.Queued{TargetTick: ctx.SimTick() + 1, Input: in})

	clk.Advance(17 * time.Millisecond)
	e.iterate(st)

	if len(hooks.simCalls) != 1 {
		t.Fatalf("sim calls = %d", len(hooks.simCalls))
	}
	call := hooks.simCalls[0]
	if call.tick != 1 {
		t.Fatalf("applied at tick %d, want 1", call.tick)
	}
	if len(call.inputs) != 1 || call.inputs[0] != in {
		t.Fatalf("inputs = %+v", call.inputs)
	}
	if got := ctx.Acks.Applied(0); got != 1 {
		t.Fatalf("applied ack = %d, want 1", got)
	}
}

func TestEngineEmptyTickStillFires(t *testing.T) {
	e, clk, hooks := newTestEngine(t, DefaultConfig())
	st := e.newLoopState()

	clk.Advance(17 * time.Millisecond)
	e.iterate(st)

	if len(hooks.simCalls) != 1 {
		t.Fatalf("sim calls = %d, want exactly 1", len(hooks.simCalls))
	}
	if len(hooks.simCalls[0].inputs) != 0 {
		t.Fatalf("inputs = %+v, want none", hooks.simCalls[0].inputs)
	}
}

func TestEngineDropsLateInput(t *testing.T) {
	e, clk, hooks := newTestEngine(t, DefaultConfig())
	st := e.newLoopState()
	ctx := e.Context()

	// Run a few ticks first so tick 1 is in the past.
	clk.Advance(50 * time.Millisecond)
	e.iterate(st)
	already := len(hooks.simCalls)
	if already < 2 {
		t.Fatalf("expected a few ticks to have run, got %d", already)
	}

	ctx.Queue.Push(input.Queued{TargetTick: 1, Input: protocol.ClientInput{ClientID: 2, Seq: 5}})

	clk.Advance(17 * time.Millisecond)
	e.iterate(st)

	for _, call := range hooks.simCalls[already:] {
		if len(call.inputs) != 0 {
			t.Fatalf("late input was applied: %+v", call.inputs)
		}
	}
	if got := ctx.Acks.Applied(2); got != 0 {
		t.Fatalf("applied ack advanced for late input: %d", got)
	}
	if got := testutil.ToFloat64(ctx.Metrics.InputsLate); got != 1 {
		t.Fatalf("late counter = %v, want 1", got)
	}
}

func TestEngineBurstDrainedInOrder(t *testing.T) {
	e, clk, hooks := newTestEngine(t, DefaultConfig())
	st := e.newLoopState()
	ctx := e.Context()

	const n = 1000
	for seq := uint32(1); seq <= n; seq++ {
		ctx.Queue.Push(input.Queued{
			TargetTick: 1,
			Input:      protocol.ClientInput{ClientID: 0, Seq: seq},
		})
	}

	clk.Advance(17 * time.Millisecond)
	e.iterate(st)

	got := hooks.simCalls[0].inputs
	if len(got) != n {
		t.Fatalf("applied %d inputs, want %d", len(got), n)
	}
	for i := range got {
		if got[i].Seq != uint32(i+1) {
			t.Fatalf("order lost at %d: seq %d", i, got[i].Seq)
		}
	}
	if ack := ctx.Acks.Applied(0); ack != n {
		t.Fatalf("applied ack = %d, want %d", ack, n)
	}
}

func TestEngineRunStop(t *testing.T) {
	hooks := &recordingHooks{}
	cfg := DefaultConfig()
	cfg.SimHz = 200
	e, err := NewEngine(cfg, hooks, clock.NewMonotonic(), nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- e.Run() }()

	time.Sleep(50 * time.Millisecond)
	e.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}

	if hooks.loaded != 1 || hooks.unloaded != 1 {
		t.Fatalf("load/unload = %d/%d, want 1/1", hooks.loaded, hooks.unloaded)
	}
	if len(hooks.simCalls) == 0 {
		t.Fatal("no sim ticks ran")
	}
}
