//go:build linux

package bus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/danmuck/ucan/internal/protocol/frame"
	"golang.org/x/sys/unix"
)

// SocketCAN is a raw CAN_RAW socket bound to one interface.
type SocketCAN struct {
	name string
	file *os.File
}

var (
	_ Adapter  = (*SocketCAN)(nil)
	_ Filterer = (*SocketCAN)(nil)
)

// OpenSocketCAN binds a raw CAN socket to ifname (for example "can0" or "vcan0").
// Bit timing and link state belong to the kernel driver and must already be set.
func OpenSocketCAN(ifname string) (*SocketCAN, error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("socketcan %s: %w", ifname, err)
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socketcan %s: socket: %w", ifname, err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: iface.Index}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("socketcan %s: bind: %w", ifname, err)
	}
	// non-blocking so the runtime poller can honor deadlines and Close
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("socketcan %s: nonblock: %w", ifname, err)
	}
	return &SocketCAN{name: ifname, file: os.NewFile(uintptr(fd), ifname)}, nil
}

func (s *SocketCAN) Name() string {
	return s.name
}

func (s *SocketCAN) Send(f frame.Frame) error {
	if err := frame.WriteFrame(s.file, f); err != nil {
		if errors.Is(err, os.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("socketcan %s: write: %w", s.name, err)
	}
	return nil
}

func (s *SocketCAN) Receive(ctx context.Context) (frame.Frame, error) {
	if err := s.file.SetReadDeadline(time.Time{}); err != nil {
		return frame.Frame{}, s.readErr(err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = s.file.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	for {
		f, err := frame.ReadFrame(s.file)
		if err == nil {
			return f, nil
		}
		if ctx.Err() != nil {
			return frame.Frame{}, ctx.Err()
		}
		// extended/remote/error frames share the segment; skip them
		if errors.Is(err, frame.ErrUnsupportedFrame) {
			continue
		}
		return frame.Frame{}, s.readErr(err)
	}
}

func (s *SocketCAN) readErr(err error) error {
	if errors.Is(err, os.ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("socketcan %s: read: %w", s.name, err)
}

// SetFilter installs a CAN_RAW_FILTER with one exact-match entry per id.
func (s *SocketCAN) SetFilter(ids []uint32) error {
	filters := make([]unix.CanFilter, 0, len(ids))
	for _, id := range ids {
		filters = append(filters, unix.CanFilter{
			Id:   id & unix.CAN_SFF_MASK,
			Mask: unix.CAN_SFF_MASK | unix.CAN_EFF_FLAG | unix.CAN_RTR_FLAG,
		})
	}
	raw, err := s.file.SyscallConn()
	if err != nil {
		return fmt.Errorf("socketcan %s: filter: %w", s.name, err)
	}
	var serr error
	if err := raw.Control(func(fd uintptr) {
		serr = unix.SetsockoptCanRawFilter(int(fd), unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, filters)
	}); err != nil {
		return fmt.Errorf("socketcan %s: filter: %w", s.name, err)
	}
	if serr != nil {
		return fmt.Errorf("socketcan %s: filter: %w", s.name, serr)
	}
	return nil
}

func (s *SocketCAN) Close() error {
	return s.file.Close()
}
