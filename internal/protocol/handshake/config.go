package handshake

import (
	"fmt"

	"github.com/danmuck/ucan/internal/protocol"
)

// Config holds the handshake timing thresholds, in ticks.
type Config struct {
	PingInterval Tick
	Timeout      Tick
	Lost         Tick
}

func DefaultConfig() Config {
	return Config{
		PingInterval: 500,
		Timeout:      700,
		Lost:         2000,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.PingInterval == 0 {
		c.PingInterval = d.PingInterval
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.Lost == 0 {
		c.Lost = d.Lost
	}
	return c
}

func (c Config) Validate() error {
	if c.PingInterval == 0 || c.Timeout == 0 || c.Lost == 0 {
		return fmt.Errorf("%w: handshake thresholds must be positive", protocol.ErrInvalidConfiguration)
	}
	if c.Lost <= c.Timeout {
		return fmt.Errorf("%w: lost threshold %d must exceed timeout %d", protocol.ErrInvalidConfiguration, c.Lost, c.Timeout)
	}
	return nil
}

// Classify maps ticks since the last response onto a liveness status.
func (c Config) Classify(elapsed Tick) Status {
	switch {
	case elapsed <= c.Timeout:
		return StatusActive
	case elapsed <= c.Lost:
		return StatusTimeout
	default:
		return StatusLost
	}
}
