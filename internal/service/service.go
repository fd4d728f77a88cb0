package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/danmuck/ucan/internal/bus"
	"github.com/danmuck/ucan/internal/config"
	"github.com/danmuck/ucan/internal/observability"
	"github.com/danmuck/ucan/internal/protocol"
	"github.com/danmuck/ucan/internal/protocol/binding"
	"github.com/danmuck/ucan/internal/protocol/handshake"
	"github.com/danmuck/ucan/internal/ucan"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidCyclePeriod = errors.New("service: invalid cycle period")
	ErrOpenerRequired     = errors.New("service: adapter opener required")
	ErrReopenExhausted    = errors.New("service: adapter reopen attempts exhausted")
)

// Opener opens the bus adapter. It is called once at bootstrap and again after
// every receive failure.
type Opener func() (bus.Adapter, error)

// Config configures the node runtime.
type Config struct {
	// CyclePeriod paces SendAll and the handshake step.
	CyclePeriod time.Duration
	Backoff     bus.BackoffConfig
	// MaxReopenAttempts bounds consecutive reopen failures; 0 retries forever.
	MaxReopenAttempts int
	Clock             clock.Clock
}

func DefaultConfig() Config {
	return Config{
		CyclePeriod: 100 * time.Millisecond,
		Backoff:     bus.DefaultBackoffConfig(),
		Clock:       clock.New(),
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.CyclePeriod == 0 {
		c.CyclePeriod = d.CyclePeriod
	}
	if c.Backoff == (bus.BackoffConfig{}) {
		c.Backoff = d.Backoff
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
	return c
}

// Service runs one configured node against a bus adapter until shutdown.
type Service struct {
	cfg    Config
	node   config.Node
	open   Opener
	link   *link
	handle *ucan.Handle
	label  string
	logger zerolog.Logger

	// owned by the cycle loop
	lastStatus map[uint32]handshake.Status
}

func New(cfg Config, node config.Node, open Opener) *Service {
	cfg = cfg.WithDefaults()
	l := &link{}
	label := observability.NodeLabel(node.Info.SelfID)
	return &Service{
		cfg:        cfg,
		node:       node,
		open:       open,
		link:       l,
		handle:     ucan.New(l, ucan.NewClockTicks(cfg.Clock, 0)),
		label:      label,
		logger:     log.Logger.With().Str("component", "service").Str("node", label).Logger(),
		lastStatus: make(map[uint32]handshake.Status),
	}
}

func (s *Service) Handle() *ucan.Handle {
	return s.handle
}

func (s *Service) Vars() *binding.Vars {
	return s.node.Vars
}

func (s *Service) Name() string {
	return s.node.Name
}

// Bootstrap opens the adapter and takes the handle through Init and Start.
func (s *Service) Bootstrap() error {
	if s.cfg.CyclePeriod <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidCyclePeriod, s.cfg.CyclePeriod)
	}
	if s.open == nil {
		return ErrOpenerRequired
	}
	a, err := s.open()
	if err != nil {
		return fmt.Errorf("service: open adapter: %w", err)
	}
	if err := s.link.swap(a); err != nil {
		_ = a.Close()
		return fmt.Errorf("service: install adapter: %w", err)
	}
	if err := s.handle.Init(s.node.Info); err != nil {
		return err
	}
	if err := s.handle.Start(ucan.Config{Tx: s.node.Tx, Rx: s.node.Rx, Handshake: s.node.Handshake}); err != nil {
		return err
	}

	tx, rx := s.handle.Tables()
	s.logger.Info().
		Str("name", s.node.Name).
		Stringer("role", s.node.Info.Role).
		Int("tx_frames", tx.Len()).
		Int("rx_frames", rx.Len()).
		Int("clients", len(s.node.Info.Clients)).
		Msg("ucan.Service.bootstrap started")
	return nil
}

// Serve runs the receive loop and the cycle loop until ctx ends. The adapter is
// closed on return.
func (s *Service) Serve(ctx context.Context) error {
	if st, _ := s.handle.State(); st != ucan.StateStarted {
		return fmt.Errorf("%w: service not bootstrapped", protocol.ErrNotReady)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.link.close()

	recvErr := make(chan error, 1)
	go func() {
		recvErr <- s.receiveLoop(ctx)
	}()

	ticker := s.cfg.Clock.Ticker(s.cfg.CyclePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("ucan.Service.serve shutdown")
			return nil
		case err := <-recvErr:
			if err != nil {
				s.logger.Error().Err(err).Msg("ucan.Service.serve receive loop stopped")
			}
			return err
		case <-ticker.C:
			s.Cycle()
		}
	}
}

// Cycle transmits every tx frame and runs one handshake step.
func (s *Service) Cycle() {
	start := s.cfg.Clock.Now()
	n, err := s.handle.SendAll()
	observability.RecordFramesSent(s.label, n)
	if err != nil {
		observability.RecordTransmitFailure(s.label)
		s.logger.Warn().Err(err).Int("sent", n).Msg("ucan.Service.cycle send failed")
	}

	res, err := s.handle.Handshake()
	if s.node.Info.Role == handshake.RoleMaster {
		observability.RecordPing(s.label, res.String())
	}
	if errors.Is(err, protocol.ErrTransmitFailure) {
		observability.RecordTransmitFailure(s.label)
		s.logger.Warn().Err(err).Msg("ucan.Service.cycle ping failed")
	}
	s.reportClients()
	observability.RecordCycle(s.label, s.cfg.Clock.Since(start))
}

// reportClients publishes client gauges and logs status transitions only.
func (s *Service) reportClients() {
	reg := s.handle.Registry()
	if reg == nil {
		return
	}
	for _, c := range reg.Clients() {
		client := observability.NodeLabel(c.ID)
		observability.SetClientStatus(s.label, client, int(c.Status))
		prev, seen := s.lastStatus[c.ID]
		if seen && prev == c.Status {
			continue
		}
		s.lastStatus[c.ID] = c.Status

		event := s.logger.Info()
		if c.Status == handshake.StatusTimeout || c.Status == handshake.StatusLost {
			event = s.logger.Warn()
		}
		event.Str("client", client).
			Stringer("from", prev).
			Stringer("to", c.Status).
			Msg("ucan.Service.client status changed")
	}
}

func (s *Service) receiveLoop(ctx context.Context) error {
	backoff := bus.NewBackoff(s.cfg.Backoff, nil)
	for {
		a := s.link.current()
		if a == nil {
			return bus.ErrClosed
		}
		f, err := a.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn().Err(err).Msg("ucan.Service.receive adapter failed")
			if err := s.reopen(ctx, backoff); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			continue
		}
		backoff.Reset()

		out, err := s.handle.Receive(f)
		observability.RecordFrameReceived(s.label, out.String())
		if err != nil {
			s.logger.Debug().Err(err).Stringer("frame", f).Msg("ucan.Service.receive frame dropped")
		}
	}
}

func (s *Service) reopen(ctx context.Context, backoff *bus.Backoff) error {
	for {
		delay := backoff.Next()
		if limit := s.cfg.MaxReopenAttempts; limit > 0 && backoff.Attempts() > limit {
			return fmt.Errorf("%w: %d", ErrReopenExhausted, limit)
		}
		timer := s.cfg.Clock.Timer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		a, err := s.open()
		if err == nil {
			err = s.link.swap(a)
			if err != nil {
				_ = a.Close()
			}
		}
		observability.RecordBusReopen(s.label, err == nil)
		if err != nil {
			s.logger.Warn().Err(err).Int("attempt", backoff.Attempts()).Dur("delay", delay).
				Msg("ucan.Service.reopen failed")
			continue
		}
		s.logger.Info().Int("attempt", backoff.Attempts()).Msg("ucan.Service.reopen ok")
		return nil
	}
}
