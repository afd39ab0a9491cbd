// Package game holds the demo simulation the server runs on top of the
// engine: a deterministic world of players steered by their latest input.
package game

import (
	"math"

	"github.com/andersfylling/ticknet/internal/protocol"
)

// Button bits understood by the demo simulation.
const (
	ButtonBrake uint32 = 1 << 0
)

// Tuning constants, in world units per second.
const (
	accel       = 40.0
	maxSpeed    = 12.0
	brakeFactor = 10.0
)

// Vec2 is a 2D vector
type Vec2 struct {
	X, Y float64
}

// Player is one simulated entity, indexed by peer id.
type Player struct {
	ID      uint32
	Active  bool
	Pos     Vec2
	Vel     Vec2
	Buttons uint32
	Intent  Vec2 // clamped axes from the latest applied input
}

// World advances deterministically: same inputs at the same ticks yield
// the same state.
type World struct {
	Tick    uint64
	players []Player
}

// NewWorld creates a world with room for maxPlayers entities.
func NewWorld(maxPlayers int) *World {
	w := &World{players: make([]Player, maxPlayers)}
	for i := range w.players {
		w.players[i].ID = uint32(i)
	}
	return w
}

// Apply records an input as the player's current intent. The first input
// from a peer activates its entity. Out-of-range ids are ignored.
func (w *World) Apply(in protocol.ClientInput) {
	if int(in.ClientID) >= len(w.players) {
		return
	}
	p := &w.players[in.ClientID]
	p.Active = true
	p.Buttons = in.Buttons
	p.Intent = Vec2{X: float64(in.AxisX), Y: float64(in.AxisY)}
}

// Step advances the world by one fixed timestep.
func (w *World) Step(dt float64) {
	w.Tick++

	for i := range w.players {
		p := &w.players[i]
		if !p.Active {
			continue
		}

		if p.Buttons&ButtonBrake != 0 {
			decay := 1 - brakeFactor*dt
			if decay < 0 {
				decay = 0
			}
			p.Vel.X *= decay
			p.Vel.Y *= decay
		} else {
			p.Vel.X += p.Intent.X * accel * dt
			p.Vel.Y += p.Intent.Y * accel * dt
		}

		if speed := math.Hypot(p.Vel.X, p.Vel.Y); speed > maxSpeed {
			scale := maxSpeed / speed
			p.Vel.X *= scale
			p.Vel.Y *= scale
		}

		p.Pos.X += p.Vel.X * dt
		p.Pos.Y += p.Vel.Y * dt
	}
}

// Player returns a copy of the entity for the given peer id.
func (w *World) Player(id uint32) (Player, bool) {
	if int(id) >= len(w.players) {
		return Player{}, false
	}
	return w.players[id], true
}

// ActiveCount reports how many entities have received input.
func (w *World) ActiveCount() int {
	n := 0
	for i := range w.players {
		if w.players[i].Active {
			n++
		}
	}
	return n
}
