package dispatch

import (
	"fmt"
	"sort"

	"github.com/danmuck/ucan/internal/protocol"
	"github.com/danmuck/ucan/internal/protocol/binding"
	"github.com/danmuck/ucan/internal/protocol/frame"
)

// Finalize validates specs and builds an id-sorted Table.
//
// Every frame must carry 1..8 bytes, use a standard id and valid bindings,
// otherwise ErrInvalidConfiguration. Two frames with the same id fail with
// ErrDuplicateID. Nothing is returned unless the whole list is valid.
func Finalize(specs []binding.FrameSpec) (*Table, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: empty frame list", protocol.ErrInvalidConfiguration)
	}
	if len(specs) > MaxEntries {
		return nil, fmt.Errorf("%w: %d frames exceeds %d", protocol.ErrInvalidConfiguration, len(specs), MaxEntries)
	}

	entries := make([]Entry, 0, len(specs))
	for i, spec := range specs {
		e, err := finalizeEntry(spec)
		if err != nil {
			return nil, fmt.Errorf("frame[%d] 0x%03X: %w", i, spec.ID, err)
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID < entries[j].ID
	})
	for i := 1; i < len(entries); i++ {
		if entries[i].ID == entries[i-1].ID {
			return nil, fmt.Errorf("%w: 0x%03X", protocol.ErrDuplicateID, entries[i].ID)
		}
	}
	return &Table{entries: entries}, nil
}

func finalizeEntry(spec binding.FrameSpec) (Entry, error) {
	if spec.ID > frame.MaxStdID {
		return Entry{}, fmt.Errorf("%w: id outside standard range", protocol.ErrInvalidConfiguration)
	}
	for j, b := range spec.Items {
		if err := b.Validate(); err != nil {
			return Entry{}, fmt.Errorf("item[%d]: %w", j, err)
		}
	}
	n := spec.Len()
	if n < 1 || n > frame.MaxLen {
		return Entry{}, fmt.Errorf("%w: payload length %d outside 1..%d", protocol.ErrInvalidConfiguration, n, frame.MaxLen)
	}

	slots := make([]binding.Slot, 0, n)
	for _, b := range spec.Items {
		slots = append(slots, b.Slots()...)
	}
	return Entry{ID: spec.ID, Len: uint8(n), Slots: slots}, nil
}
