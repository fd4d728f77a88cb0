package handshake

import "math"

// Tick is a monotonically increasing counter that wraps at MaxTick.
type Tick uint32

const MaxTick Tick = math.MaxUint32

// Elapsed returns the ticks from `from` to `to`, across at most one wrap.
// Elapsed(x, x) is 0.
func Elapsed(from, to Tick) Tick {
	if from <= to {
		return to - from
	}
	return (MaxTick - from) + to + 1
}
