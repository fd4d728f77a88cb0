package bus

import (
	"context"
	"errors"

	"github.com/danmuck/ucan/internal/protocol/frame"
)

var (
	ErrClosed      = errors.New("bus: closed")
	ErrQueueFull   = errors.New("bus: transmit queue full")
	ErrUnsupported = errors.New("bus: adapter not supported on this platform")
)

// Adapter sends and receives single frames.
type Adapter interface {
	Send(f frame.Frame) error
	// Receive blocks until a frame arrives, ctx ends or the adapter closes.
	Receive(ctx context.Context) (frame.Frame, error)
	Close() error
}

// Filterer is implemented by adapters that can drop frames in hardware or in the
// kernel. ids is the full set of identifiers the node wants to receive.
type Filterer interface {
	SetFilter(ids []uint32) error
}
