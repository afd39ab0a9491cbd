package server

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/andersfylling/ticknet/internal/input"
)

// Fallback rates applied when a config carries invalid values.
const (
	fallbackSimHz = 60
	fallbackNetHz = 20
)

// jitterHeadroom is the arrival-jitter margin, in ticks, the ring must
// keep beyond the input delay.
const jitterHeadroom = 32

// Config holds server configuration.
type Config struct {
	Port            int
	MaxPeers        int
	SimHz           int // simulation ticks per second
	NetHz           int // snapshot emissions per second (independent of SimHz)
	InputDelayTicks int // sim ticks between receiving an input and applying it
	RingCapacity    int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:            7777,
		MaxPeers:        input.DefaultMaxPeers,
		SimHz:           fallbackSimHz,
		NetHz:           fallbackNetHz,
		InputDelayTicks: 1,
		RingCapacity:    input.DefaultRingCapacity,
	}
}

// normalized replaces invalid fields with their fallbacks, logging each
// replacement.
func (c Config) normalized(log zerolog.Logger) Config {
	if c.SimHz <= 0 {
		log.Warn().Int("sim_hz", c.SimHz).Int("fallback", fallbackSimHz).Msg("invalid simulation rate")
		c.SimHz = fallbackSimHz
	}
	if c.NetHz <= 0 {
		log.Warn().Int("net_hz", c.NetHz).Int("fallback", fallbackNetHz).Msg("invalid network rate")
		c.NetHz = fallbackNetHz
	}
	if c.MaxPeers <= 0 {
		c.MaxPeers = input.DefaultMaxPeers
	}
	if c.RingCapacity <= 0 {
		c.RingCapacity = input.DefaultRingCapacity
	}
	if c.InputDelayTicks < 0 {
		c.InputDelayTicks = 1
	}
	// Port 0 stays as-is: the OS picks an ephemeral port.
	if c.Port < 0 {
		c.Port = 7777
	}
	return c
}

// validate rejects combinations the scheduling design cannot honor: the
// ring silently drops anything scheduled past its capacity, so the input
// delay must leave jitter head-room below it.
func (c Config) validate() error {
	if c.InputDelayTicks+jitterHeadroom >= c.RingCapacity {
		return fmt.Errorf("input delay %d too close to ring capacity %d (need %d ticks head-room)",
			c.InputDelayTicks, c.RingCapacity, jitterHeadroom)
	}
	return nil
}
