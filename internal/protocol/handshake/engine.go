package handshake

import (
	"errors"
	"fmt"

	"github.com/danmuck/ucan/internal/protocol"
	"github.com/danmuck/ucan/internal/protocol/frame"
	"go.uber.org/multierr"
)

var (
	ErrClientWaiting = errors.New("handshake: client has not responded")
	ErrClientTimeout = errors.New("handshake: client timed out")
	ErrClientLost    = errors.New("handshake: client lost")
)

// Sender is the transmit half of a frame adapter.
type Sender interface {
	Send(f frame.Frame) error
}

// PingResult tells whether EmitPing put a frame on the bus.
type PingResult int

const (
	PingSent PingResult = iota
	PingThrottled
	// PingSkipped: the node is not a master and never pings.
	PingSkipped
)

func (p PingResult) String() string {
	switch p {
	case PingThrottled:
		return "throttled"
	case PingSkipped:
		return "skipped"
	default:
		return "sent"
	}
}

// Event is what an accepted handshake frame caused.
type Event int

const (
	EventNone Event = iota
	// EventPong: a client answered its master's ping.
	EventPong
	// EventResponse: a master recorded a client response.
	EventResponse
)

func (e Event) String() string {
	switch e {
	case EventPong:
		return "pong"
	case EventResponse:
		return "response"
	default:
		return "none"
	}
}

// ClientError is one non-active client inside an Evaluate aggregate.
type ClientError struct {
	ID     uint32
	Status Status
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("client 0x%03X: %s", e.ID, e.Status)
}

func (e *ClientError) Unwrap() error {
	switch e.Status {
	case StatusTimeout:
		return ErrClientTimeout
	case StatusLost:
		return ErrClientLost
	default:
		return ErrClientWaiting
	}
}

// Engine runs the handshake for one registry. EmitPing and Evaluate belong to the
// periodic loop; HandleFrame belongs to the receive path. They may run concurrently.
type Engine struct {
	reg *Registry
	cfg Config
	tx  Sender
}

func NewEngine(reg *Registry, cfg Config, tx Sender) (*Engine, error) {
	if reg == nil || tx == nil {
		return nil, fmt.Errorf("%w: handshake engine needs a registry and a sender", protocol.ErrInvalidConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{reg: reg, cfg: cfg, tx: tx}, nil
}

func (e *Engine) Registry() *Registry { return e.reg }
func (e *Engine) Config() Config      { return e.cfg }

// EmitPing sends the master request frame unless one went out less than
// PingInterval ticks ago, in which case it returns PingThrottled and no error.
func (e *Engine) EmitPing(now Tick) (PingResult, error) {
	if e.reg.role != RoleMaster {
		return PingSkipped, fmt.Errorf("%w: ping requires the master role", protocol.ErrInvalidConfiguration)
	}
	if last, ok := e.reg.LastSent(); ok && Elapsed(last, now) < e.cfg.PingInterval {
		return PingThrottled, nil
	}
	if err := e.tx.Send(frame.Request(e.reg.selfID)); err != nil {
		return PingSent, fmt.Errorf("%w: ping: %w", protocol.ErrTransmitFailure, err)
	}
	e.reg.recordSent(now)
	return PingSent, nil
}

// HandleFrame processes a frame that matched no application binding.
func (e *Engine) HandleFrame(now Tick, f frame.Frame) (Event, error) {
	switch e.reg.role {
	case RoleMaster:
		return e.ingestResponse(now, f)
	case RoleClient:
		return e.replyPing(now, f)
	default:
		return EventNone, fmt.Errorf("%w: 0x%03X", protocol.ErrUnknownID, f.ID)
	}
}

func (e *Engine) replyPing(now Tick, f frame.Frame) (Event, error) {
	if f.ID != e.reg.masterID {
		return EventNone, fmt.Errorf("%w: 0x%03X", protocol.ErrUnknownSender, f.ID)
	}
	if !f.HasMarker(frame.MarkerRequest) {
		return EventNone, fmt.Errorf("%w: request from 0x%03X carries % X", protocol.ErrUnexpectedHandshakeData, f.ID, f.Payload())
	}
	if err := e.tx.Send(frame.Response(e.reg.selfID)); err != nil {
		return EventNone, fmt.Errorf("%w: pong: %w", protocol.ErrTransmitFailure, err)
	}
	e.reg.recordSent(now)
	return EventPong, nil
}

func (e *Engine) ingestResponse(now Tick, f frame.Frame) (Event, error) {
	c, ok := e.reg.Lookup(f.ID)
	if !ok {
		return EventNone, fmt.Errorf("%w: 0x%03X", protocol.ErrUnknownID, f.ID)
	}
	if !f.HasMarker(frame.MarkerResponse) {
		return EventNone, fmt.Errorf("%w: response from 0x%03X carries % X", protocol.ErrUnexpectedHandshakeData, f.ID, f.Payload())
	}
	c.recordResponse(now)
	return EventResponse, nil
}

// Evaluate reclassifies every client at tick now and stores the result. The
// returned error aggregates one *ClientError per client that is not active; the
// individual statuses stay readable from the registry either way. Evaluate is a
// no-op for non-master nodes.
func (e *Engine) Evaluate(now Tick) error {
	if e.reg.role != RoleMaster {
		return nil
	}
	var err error
	for _, c := range e.reg.clients {
		s := e.classify(c, now)
		c.status.Store(int32(s))
		if s != StatusActive {
			err = multierr.Append(err, &ClientError{ID: c.id, Status: s})
		}
	}
	return err
}

func (e *Engine) classify(c *Client, now Tick) Status {
	last, ok := c.LastResponse()
	if !ok {
		return StatusWaiting
	}
	// the receive path may stamp a response a few ticks past `now`; anything
	// further ahead is an old stamp seen across a wrap and ages normally
	if ahead := Elapsed(now, last); ahead != 0 && ahead <= e.cfg.Timeout {
		return StatusActive
	}
	return e.cfg.Classify(Elapsed(last, now))
}
