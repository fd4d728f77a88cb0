package dispatch

import (
	"fmt"
	"sort"

	"github.com/danmuck/ucan/internal/protocol"
	"github.com/danmuck/ucan/internal/protocol/binding"
	"github.com/danmuck/ucan/internal/protocol/frame"
)

// MaxEntries bounds the number of frames in one table.
const MaxEntries = 128

// Sender is the transmit half of a frame adapter.
type Sender interface {
	Send(f frame.Frame) error
}

// Entry is one finalized frame: id, payload length and one slot per payload byte.
type Entry struct {
	ID    uint32
	Len   uint8
	Slots []binding.Slot
}

// Table is a finalized, id-sorted set of entries.
type Table struct {
	entries []Entry
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Entries returns the entries in ascending id order. Slots are shared, not copied.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// IDs returns the table ids in ascending order.
func (t *Table) IDs() []uint32 {
	if t == nil {
		return nil
	}
	out := make([]uint32, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.ID
	}
	return out
}

// Lookup binary-searches the table by id.
func (t *Table) Lookup(id uint32) (*Entry, bool) {
	if t == nil {
		return nil, false
	}
	i := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].ID >= id
	})
	if i < len(t.entries) && t.entries[i].ID == id {
		return &t.entries[i], true
	}
	return nil, false
}

// Dispatch writes payload into the bound values of the entry for id.
// An id not in the table returns ErrUnknownID and touches nothing.
func (t *Table) Dispatch(id uint32, payload []byte) error {
	e, ok := t.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: 0x%03X", protocol.ErrUnknownID, id)
	}
	e.Write(payload)
	return nil
}

// SendAll transmits every entry once and returns the number of frames sent.
// It stops at the first adapter failure; frames already sent stay sent.
func (t *Table) SendAll(s Sender) (int, error) {
	if t == nil {
		return 0, nil
	}
	for i := range t.entries {
		f := t.entries[i].Read()
		if err := s.Send(f); err != nil {
			return i, fmt.Errorf("%w: 0x%03X: %w", protocol.ErrTransmitFailure, f.ID, err)
		}
	}
	return len(t.entries), nil
}

// Write copies payload[0:Len) into the slots. Missing trailing bytes read as zero.
// Each bound value is stored with a single atomic write.
func (e *Entry) Write(payload []byte) {
	var buf [frame.MaxLen]byte
	copy(buf[:], payload)

	var (
		ref binding.Scalar
		acc uint32
	)
	for i := 0; i < int(e.Len); i++ {
		s := e.Slots[i]
		if s.Shift == 0 {
			if ref != nil {
				ref.Store(acc)
			}
			ref, acc = s.Ref, 0
		}
		acc |= uint32(buf[i]) << s.Shift
	}
	if ref != nil {
		ref.Store(acc)
	}
}

// Read builds the outbound frame from the current bound values, loading each
// value once.
func (e *Entry) Read() frame.Frame {
	f := frame.Frame{ID: e.ID, Len: e.Len}
	var v uint32
	for i := 0; i < int(e.Len); i++ {
		s := e.Slots[i]
		if s.Shift == 0 {
			v = s.Ref.Load()
		}
		f.Data[i] = byte(v >> s.Shift)
	}
	return f
}
