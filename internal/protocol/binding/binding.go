// Package binding describes application values bound to CAN frame payloads.
//
// A Binding is a tagged reference {U8, U16, U32} to a Scalar owned by the
// application. A FrameSpec lists the bindings that make up one frame, in payload
// order. Each binding decomposes into byte Slots, low byte first: the wire byte
// order is little-endian regardless of the host.
package binding

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/danmuck/ucan/internal/protocol"
)

// Kind is the declared width tag of a binding.
type Kind uint8

const (
	KindU8 Kind = iota + 1
	KindU16
	KindU32
)

// Width returns the byte width of k, or 0 for an unknown kind.
func (k Kind) Width() int {
	switch k {
	case KindU8:
		return 1
	case KindU16:
		return 2
	case KindU32:
		return 4
	default:
		return 0
	}
}

func (k Kind) Valid() bool {
	return k.Width() != 0
}

func (k Kind) String() string {
	switch k {
	case KindU8:
		return "u8"
	case KindU16:
		return "u16"
	case KindU32:
		return "u32"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind accepts u8/u16/u32 (also uint8/uint16/uint32).
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "u8", "uint8":
		return KindU8, nil
	case "u16", "uint16":
		return KindU16, nil
	case "u32", "uint32":
		return KindU32, nil
	default:
		return 0, fmt.Errorf("%w: unknown value type %q", protocol.ErrInvalidConfiguration, raw)
	}
}

// Scalar is a readable/writable unsigned value of a fixed byte width.
// Load and Store must each be a single atomic word access: the receive path
// stores while the foreground loads.
type Scalar interface {
	Width() int
	Load() uint32
	Store(v uint32)
}

// Uint8 is an application-owned 8-bit value safe for cross-goroutine access.
type Uint8 struct{ v atomic.Uint32 }

func (u *Uint8) Width() int     { return 1 }
func (u *Uint8) Load() uint32   { return u.v.Load() }
func (u *Uint8) Store(v uint32) { u.v.Store(v & 0xFF) }
func (u *Uint8) Get() uint8     { return uint8(u.v.Load()) }
func (u *Uint8) Set(v uint8)    { u.v.Store(uint32(v)) }

// Uint16 is an application-owned 16-bit value safe for cross-goroutine access.
type Uint16 struct{ v atomic.Uint32 }

func (u *Uint16) Width() int     { return 2 }
func (u *Uint16) Load() uint32   { return u.v.Load() }
func (u *Uint16) Store(v uint32) { u.v.Store(v & 0xFFFF) }
func (u *Uint16) Get() uint16    { return uint16(u.v.Load()) }
func (u *Uint16) Set(v uint16)   { u.v.Store(uint32(v)) }

// Uint32 is an application-owned 32-bit value safe for cross-goroutine access.
type Uint32 struct{ v atomic.Uint32 }

func (u *Uint32) Width() int     { return 4 }
func (u *Uint32) Load() uint32   { return u.v.Load() }
func (u *Uint32) Store(v uint32) { u.v.Store(v) }
func (u *Uint32) Get() uint32    { return u.v.Load() }
func (u *Uint32) Set(v uint32)   { u.v.Store(v) }

// Binding is one typed value reference inside a frame.
type Binding struct {
	Kind Kind
	Ref  Scalar
}

func U8(v *Uint8) Binding   { return Binding{Kind: KindU8, Ref: v} }
func U16(v *Uint16) Binding { return Binding{Kind: KindU16, Ref: v} }
func U32(v *Uint32) Binding { return Binding{Kind: KindU32, Ref: v} }

// Bind builds a binding from an explicit kind; Validate catches width mismatches.
func Bind(kind Kind, ref Scalar) Binding {
	return Binding{Kind: kind, Ref: ref}
}

func (b Binding) Validate() error {
	if !b.Kind.Valid() {
		return fmt.Errorf("%w: %s", protocol.ErrInvalidConfiguration, b.Kind)
	}
	if b.Ref == nil {
		return fmt.Errorf("%w: %s binding has no storage", protocol.ErrInvalidConfiguration, b.Kind)
	}
	if w := b.Ref.Width(); w != b.Kind.Width() {
		return fmt.Errorf("%w: %s binding over %d-byte storage", protocol.ErrInvalidConfiguration, b.Kind, w)
	}
	return nil
}

// Slot is one payload byte: bits [Shift, Shift+8) of Ref.
type Slot struct {
	Ref   Scalar
	Shift uint8
}

// Slots decomposes b into its payload bytes, least significant first.
func (b Binding) Slots() []Slot {
	w := b.Kind.Width()
	out := make([]Slot, w)
	for i := range w {
		out[i] = Slot{Ref: b.Ref, Shift: uint8(8 * i)}
	}
	return out
}

// FrameSpec declares one frame: its id and its bindings in payload order.
type FrameSpec struct {
	ID    uint32
	Items []Binding
}

// Len is the payload length implied by the bindings.
func (s FrameSpec) Len() int {
	n := 0
	for _, b := range s.Items {
		n += b.Kind.Width()
	}
	return n
}
