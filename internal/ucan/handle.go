package ucan

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/danmuck/ucan/internal/bus"
	"github.com/danmuck/ucan/internal/protocol"
	"github.com/danmuck/ucan/internal/protocol/binding"
	"github.com/danmuck/ucan/internal/protocol/dispatch"
	"github.com/danmuck/ucan/internal/protocol/frame"
	"github.com/danmuck/ucan/internal/protocol/handshake"
	"go.uber.org/multierr"
)

// State is the handle lifecycle phase.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateStarted
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateStarted:
		return "started"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config is the application frame declaration handed to Start.
type Config struct {
	Tx        []binding.FrameSpec
	Rx        []binding.FrameSpec
	Handshake handshake.Config
}

// Outcome is what Receive did with a frame.
type Outcome int

const (
	OutcomeDropped Outcome = iota
	OutcomeDispatched
	OutcomePong
	OutcomeResponse
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDispatched:
		return "dispatched"
	case OutcomePong:
		return "pong"
	case OutcomeResponse:
		return "response"
	default:
		return "dropped"
	}
}

type lifecycle struct {
	state  State
	reason error
}

// Handle is one node's protocol instance on one bus.
type Handle struct {
	tx    dispatch.Sender
	ticks TickSource
	life  atomic.Pointer[lifecycle]

	// written once by Init/Start before the lifecycle store that publishes them
	reg     *handshake.Registry
	engine  *handshake.Engine
	txTable *dispatch.Table
	rxTable *dispatch.Table
}

// New returns an uninitialized handle sending through tx. A nil ticks uses the
// wall clock.
func New(tx dispatch.Sender, ticks TickSource) *Handle {
	if ticks == nil {
		ticks = NewClockTicks(nil, 0)
	}
	h := &Handle{tx: tx, ticks: ticks}
	h.life.Store(&lifecycle{state: StateUninitialized})
	return h
}

// State reports the lifecycle phase and, when faulted, the reason.
func (h *Handle) State() (State, error) {
	l := h.life.Load()
	return l.state, l.reason
}

func (h *Handle) Now() handshake.Tick {
	return h.ticks.Now()
}

// Init validates the node identity and moves the handle to ready.
func (h *Handle) Init(node handshake.NodeInfo) error {
	l := h.life.Load()
	switch l.state {
	case StateUninitialized:
	case StateFaulted:
		return faultedErr(l.reason)
	default:
		return fmt.Errorf("%w: init called in state %s", protocol.ErrInvalidConfiguration, l.state)
	}
	if h.tx == nil {
		return h.fault(fmt.Errorf("%w: no frame sender", protocol.ErrInvalidConfiguration))
	}
	reg, err := handshake.NewRegistry(node)
	if err != nil {
		return h.fault(err)
	}
	h.reg = reg
	h.life.Store(&lifecycle{state: StateReady})
	return nil
}

// Start finalizes both tables, checks id uniqueness across tables and handshake
// traffic, installs the adapter receive filter when supported, then moves the
// handle to started. Any failure faults the handle and nothing is published.
func (h *Handle) Start(cfg Config) error {
	l := h.life.Load()
	switch l.state {
	case StateReady:
	case StateFaulted:
		return faultedErr(l.reason)
	case StateUninitialized:
		return fmt.Errorf("%w: start before init", protocol.ErrNotReady)
	default:
		return fmt.Errorf("%w: start called in state %s", protocol.ErrInvalidConfiguration, l.state)
	}

	engine, err := handshake.NewEngine(h.reg, cfg.Handshake.WithDefaults(), h.tx)
	if err != nil {
		return h.fault(err)
	}
	txTable, err := dispatch.Finalize(cfg.Tx)
	if err != nil {
		return h.fault(fmt.Errorf("tx: %w", err))
	}
	rxTable, err := dispatch.Finalize(cfg.Rx)
	if err != nil {
		return h.fault(fmt.Errorf("rx: %w", err))
	}
	if err := dispatch.CheckUnique(txTable, rxTable); err != nil {
		return h.fault(err)
	}
	ids := append(txTable.IDs(), rxTable.IDs()...)
	ids = append(ids, h.reg.HandshakeIDs()...)
	if err := dispatch.CheckDisjoint(ids); err != nil {
		return h.fault(fmt.Errorf("frame id collides with handshake id: %w", err))
	}

	if f, ok := h.tx.(bus.Filterer); ok {
		accept := append(rxTable.IDs(), h.inboundHandshakeIDs()...)
		if err := f.SetFilter(accept); err != nil {
			return h.fault(fmt.Errorf("%w: receive filter: %w", protocol.ErrInvalidConfiguration, err))
		}
	}

	h.engine = engine
	h.txTable = txTable
	h.rxTable = rxTable
	h.life.Store(&lifecycle{state: StateStarted})
	return nil
}

// inboundHandshakeIDs lists ids this node must hear for the handshake.
func (h *Handle) inboundHandshakeIDs() []uint32 {
	switch h.reg.Role() {
	case handshake.RoleMaster:
		out := make([]uint32, 0)
		for _, c := range h.reg.Clients() {
			out = append(out, c.ID)
		}
		return out
	case handshake.RoleClient:
		return []uint32{h.reg.MasterID()}
	default:
		return nil
	}
}

func (h *Handle) fault(reason error) error {
	h.life.Store(&lifecycle{state: StateFaulted, reason: reason})
	return faultedErr(reason)
}

func faultedErr(reason error) error {
	return fmt.Errorf("%w: %w", protocol.ErrFaulted, reason)
}

func (h *Handle) started() error {
	l := h.life.Load()
	switch l.state {
	case StateStarted:
		return nil
	case StateFaulted:
		return faultedErr(l.reason)
	default:
		return fmt.Errorf("%w: state %s", protocol.ErrNotReady, l.state)
	}
}

// SendAll transmits every tx frame once from the current bound values.
func (h *Handle) SendAll() (int, error) {
	if err := h.started(); err != nil {
		return 0, err
	}
	return h.txTable.SendAll(h.tx)
}

// Receive handles one inbound frame. Frames with a bound rx id are dispatched;
// any other id goes to the handshake engine. Errors here never fault the handle.
func (h *Handle) Receive(f frame.Frame) (Outcome, error) {
	if err := h.started(); err != nil {
		return OutcomeDropped, err
	}
	err := h.rxTable.Dispatch(f.ID, f.Payload())
	if err == nil {
		return OutcomeDispatched, nil
	}
	if !errors.Is(err, protocol.ErrUnknownID) {
		return OutcomeDropped, err
	}
	ev, err := h.engine.HandleFrame(h.ticks.Now(), f)
	if err != nil {
		return OutcomeDropped, err
	}
	switch ev {
	case handshake.EventPong:
		return OutcomePong, nil
	case handshake.EventResponse:
		return OutcomeResponse, nil
	default:
		return OutcomeDropped, nil
	}
}

// Ping emits the master request frame, throttled to the ping interval.
func (h *Handle) Ping() (handshake.PingResult, error) {
	if err := h.started(); err != nil {
		return handshake.PingSkipped, err
	}
	if h.reg.Role() != handshake.RoleMaster {
		return handshake.PingSkipped, nil
	}
	return h.engine.EmitPing(h.ticks.Now())
}

// Evaluate reclassifies every client. See handshake.Engine.Evaluate.
func (h *Handle) Evaluate() error {
	if err := h.started(); err != nil {
		return err
	}
	return h.engine.Evaluate(h.ticks.Now())
}

// Handshake runs one periodic handshake step: ping, then evaluate. Both run even
// if the ping fails; their errors are combined.
func (h *Handle) Handshake() (handshake.PingResult, error) {
	res, err := h.Ping()
	if errors.Is(err, protocol.ErrNotReady) || errors.Is(err, protocol.ErrFaulted) {
		return res, err
	}
	return res, multierr.Append(err, h.engine.Evaluate(h.ticks.Now()))
}

// Registry exposes client liveness. Nil before Init.
func (h *Handle) Registry() *handshake.Registry {
	if h.life.Load().state == StateUninitialized {
		return nil
	}
	return h.reg
}

// Tables returns the finalized tx and rx tables, or nils before Start.
func (h *Handle) Tables() (tx, rx *dispatch.Table) {
	if h.started() != nil {
		return nil, nil
	}
	return h.txTable, h.rxTable
}
