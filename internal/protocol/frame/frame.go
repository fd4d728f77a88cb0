package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxStdID is the largest standard (11-bit) identifier.
	MaxStdID uint32 = 0x7FF
	// MaxLen is the classic CAN payload limit.
	MaxLen = 8
	// WireLen is the size of one encoded frame (Linux struct can_frame).
	WireLen = 16

	// Handshake payload markers.
	MarkerRequest  byte = 0xA5
	MarkerResponse byte = 0x5A

	canEffFlag uint32 = 0x80000000
	canRtrFlag uint32 = 0x40000000
	canErrFlag uint32 = 0x20000000
	canStdMask uint32 = 0x7FF
)

var (
	ErrInvalidID        = errors.New("frame: invalid standard identifier")
	ErrInvalidLen       = errors.New("frame: invalid data length")
	ErrShortFrame       = errors.New("frame: short wire frame")
	ErrUnsupportedFrame = errors.New("frame: extended, remote or error frames are not supported")
)

// Frame is one classic CAN data frame with a standard identifier.
type Frame struct {
	ID   uint32
	Len  uint8
	Data [MaxLen]byte
}

// New builds a frame from id and payload. Payloads longer than MaxLen are rejected.
func New(id uint32, payload []byte) (Frame, error) {
	if len(payload) > MaxLen {
		return Frame{}, fmt.Errorf("%w: %d", ErrInvalidLen, len(payload))
	}
	f := Frame{ID: id, Len: uint8(len(payload))}
	copy(f.Data[:], payload)
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Validate reports whether the frame fits the standard data frame contract.
func (f Frame) Validate() error {
	if f.ID > MaxStdID {
		return fmt.Errorf("%w: 0x%X", ErrInvalidID, f.ID)
	}
	if f.Len > MaxLen {
		return fmt.Errorf("%w: %d", ErrInvalidLen, f.Len)
	}
	return nil
}

// Payload returns the valid bytes of the frame.
func (f Frame) Payload() []byte {
	n := min(int(f.Len), MaxLen)
	return f.Data[:n]
}

func (f Frame) String() string {
	return fmt.Sprintf("0x%03X#% X", f.ID, f.Payload())
}

// Request is the master ping frame sent under the master's own id.
func Request(selfID uint32) Frame {
	return Frame{ID: selfID, Len: 1, Data: [MaxLen]byte{MarkerRequest}}
}

// Response is the client pong frame sent under the client's own id.
func Response(selfID uint32) Frame {
	return Frame{ID: selfID, Len: 1, Data: [MaxLen]byte{MarkerResponse}}
}

// HasMarker reports whether f is a one-byte handshake frame carrying marker.
func (f Frame) HasMarker(marker byte) bool {
	return f.Len == 1 && f.Data[0] == marker
}

func ReadFrame(r io.Reader) (Frame, error) {
	var buf [WireLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortFrame
		}
		return Frame{}, err
	}
	return Decode(buf[:])
}

func WriteFrame(w io.Writer, f Frame) error {
	buf, err := Encode(f)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return err
	}
	return nil
}

// Encode writes the Linux SocketCAN can_frame layout:
//
//	0..3  can_id, little-endian
//	4     can_dlc
//	5..7  padding
//	8..15 data
func Encode(f Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, WireLen)
	binary.LittleEndian.PutUint32(buf[0:4], f.ID&canStdMask)
	buf[4] = f.Len
	copy(buf[8:16], f.Data[:])
	return buf, nil
}

func Decode(b []byte) (Frame, error) {
	if len(b) < WireLen {
		return Frame{}, fmt.Errorf("%w: need %d bytes, got %d", ErrShortFrame, WireLen, len(b))
	}
	id := binary.LittleEndian.Uint32(b[0:4])
	if id&(canEffFlag|canRtrFlag|canErrFlag) != 0 {
		return Frame{}, ErrUnsupportedFrame
	}
	f := Frame{ID: id & canStdMask, Len: b[4]}
	copy(f.Data[:], b[8:16])
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}
