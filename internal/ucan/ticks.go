package ucan

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/danmuck/ucan/internal/protocol/handshake"
)

// TickSource yields the current handshake tick.
type TickSource interface {
	Now() handshake.Tick
}

// ClockTicks is a wrapping 32-bit millisecond counter over a clock.Clock.
type ClockTicks struct {
	clk    clock.Clock
	epoch  time.Time
	offset handshake.Tick
}

// NewClockTicks starts counting at offset from the clock's current time.
// A non-zero offset lets tests and soak runs start close to the wrap point.
func NewClockTicks(clk clock.Clock, offset handshake.Tick) *ClockTicks {
	if clk == nil {
		clk = clock.New()
	}
	return &ClockTicks{clk: clk, epoch: clk.Now(), offset: offset}
}

func (c *ClockTicks) Now() handshake.Tick {
	ms := c.clk.Since(c.epoch).Milliseconds()
	return c.offset + handshake.Tick(uint32(ms))
}

// TickFunc adapts a function to TickSource.
type TickFunc func() handshake.Tick

func (f TickFunc) Now() handshake.Tick { return f() }
