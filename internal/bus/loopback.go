package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/danmuck/ucan/internal/protocol/frame"
)

const defaultQueueDepth = 64

// Loopback is an in-process bus. Every frame sent by one endpoint is delivered
// to all other open endpoints, like a real CAN segment without arbitration.
type Loopback struct {
	mu        sync.RWMutex
	endpoints map[*Endpoint]struct{}
	depth     int
}

func NewLoopback() *Loopback {
	return NewLoopbackWithDepth(defaultQueueDepth)
}

// NewLoopbackWithDepth sets the per-endpoint receive queue depth.
func NewLoopbackWithDepth(depth int) *Loopback {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	return &Loopback{endpoints: make(map[*Endpoint]struct{}), depth: depth}
}

// Open attaches a new endpoint to the bus.
func (l *Loopback) Open() *Endpoint {
	ep := &Endpoint{
		bus:    l,
		rx:     make(chan frame.Frame, l.depth),
		closed: make(chan struct{}),
	}
	l.mu.Lock()
	l.endpoints[ep] = struct{}{}
	l.mu.Unlock()
	return ep
}

func (l *Loopback) deliver(from *Endpoint, f frame.Frame) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for ep := range l.endpoints {
		if ep == from || !ep.accepts(f.ID) {
			continue
		}
		select {
		case ep.rx <- f:
		default:
			return fmt.Errorf("%w: 0x%03X", ErrQueueFull, f.ID)
		}
	}
	return nil
}

func (l *Loopback) detach(ep *Endpoint) {
	l.mu.Lock()
	delete(l.endpoints, ep)
	l.mu.Unlock()
}

// Endpoint is one node's attachment to a Loopback bus.
type Endpoint struct {
	bus       *Loopback
	rx        chan frame.Frame
	closeOnce sync.Once
	closed    chan struct{}

	filterMu sync.RWMutex
	filter   map[uint32]struct{}
}

var (
	_ Adapter  = (*Endpoint)(nil)
	_ Filterer = (*Endpoint)(nil)
)

func (e *Endpoint) Send(f frame.Frame) error {
	select {
	case <-e.closed:
		return ErrClosed
	default:
	}
	if err := f.Validate(); err != nil {
		return err
	}
	return e.bus.deliver(e, f)
}

func (e *Endpoint) Receive(ctx context.Context) (frame.Frame, error) {
	select {
	case f := <-e.rx:
		return f, nil
	case <-e.closed:
		return frame.Frame{}, ErrClosed
	case <-ctx.Done():
		return frame.Frame{}, ctx.Err()
	}
}

// SetFilter restricts delivery to ids. A nil or empty list accepts everything.
func (e *Endpoint) SetFilter(ids []uint32) error {
	e.filterMu.Lock()
	defer e.filterMu.Unlock()
	if len(ids) == 0 {
		e.filter = nil
		return nil
	}
	e.filter = make(map[uint32]struct{}, len(ids))
	for _, id := range ids {
		e.filter[id] = struct{}{}
	}
	return nil
}

func (e *Endpoint) accepts(id uint32) bool {
	e.filterMu.RLock()
	defer e.filterMu.RUnlock()
	if e.filter == nil {
		return true
	}
	_, ok := e.filter[id]
	return ok
}

func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.closed)
		e.bus.detach(e)
	})
	return nil
}
