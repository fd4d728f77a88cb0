//go:build !linux

package bus

import (
	"context"
	"fmt"

	"github.com/danmuck/ucan/internal/protocol/frame"
)

// SocketCAN is only available on Linux.
type SocketCAN struct{}

func OpenSocketCAN(ifname string) (*SocketCAN, error) {
	return nil, fmt.Errorf("socketcan %s: %w", ifname, ErrUnsupported)
}

func (s *SocketCAN) Name() string           { return "" }
func (s *SocketCAN) Send(frame.Frame) error { return ErrUnsupported }

func (s *SocketCAN) Receive(context.Context) (frame.Frame, error) {
	return frame.Frame{}, ErrUnsupported
}

func (s *SocketCAN) SetFilter([]uint32) error { return ErrUnsupported }
func (s *SocketCAN) Close() error             { return nil }
