package dispatch

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/danmuck/ucan/internal/protocol"
	"github.com/danmuck/ucan/internal/protocol/binding"
	"github.com/danmuck/ucan/internal/protocol/frame"
	"github.com/danmuck/ucan/internal/testutil/testlog"
)

type recordingSender struct {
	sent   []frame.Frame
	failAt int
}

func (r *recordingSender) Send(f frame.Frame) error {
	if r.failAt > 0 && len(r.sent)+1 == r.failAt {
		return errors.New("mailbox full")
	}
	r.sent = append(r.sent, f)
	return nil
}

func randomItems(rng *rand.Rand, width int) []binding.Binding {
	items := make([]binding.Binding, 0)
	for width > 0 {
		switch {
		case width >= 4 && rng.Intn(3) == 0:
			items = append(items, binding.U32(new(binding.Uint32)))
			width -= 4
		case width >= 2 && rng.Intn(2) == 0:
			items = append(items, binding.U16(new(binding.Uint16)))
			width -= 2
		default:
			items = append(items, binding.U8(new(binding.Uint8)))
			width--
		}
	}
	return items
}

func TestFinalizeSortsStrictlyAscending(t *testing.T) {
	testlog.Start(t)
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		ids := rng.Perm(int(frame.MaxStdID) + 1)[:1+rng.Intn(MaxEntries)]
		specs := make([]binding.FrameSpec, len(ids))
		for i, id := range ids {
			specs[i] = binding.FrameSpec{ID: uint32(id), Items: randomItems(rng, 1+rng.Intn(8))}
		}
		table, err := Finalize(specs)
		if err != nil {
			t.Fatalf("round=%d finalize: %v", round, err)
		}
		if table.Len() != len(specs) {
			t.Fatalf("round=%d len got=%d want=%d", round, table.Len(), len(specs))
		}
		got := table.IDs()
		for i := 1; i < len(got); i++ {
			if got[i] <= got[i-1] {
				t.Fatalf("round=%d not strictly ascending at %d: %v", round, i, got)
			}
		}
		for _, e := range table.Entries() {
			if int(e.Len) != len(e.Slots) || e.Len < 1 || e.Len > 8 {
				t.Fatalf("round=%d entry 0x%03X len=%d slots=%d", round, e.ID, e.Len, len(e.Slots))
			}
		}
	}
}

func TestFinalizeRejectsLengthOutsideRange(t *testing.T) {
	testlog.Start(t)
	var a binding.Uint32
	var b binding.Uint32
	var c binding.Uint8
	cases := map[string][]binding.Binding{
		"empty": nil,
		"nine":  {binding.U32(&a), binding.U32(&b), binding.U8(&c)},
	}
	for name, items := range cases {
		_, err := Finalize([]binding.FrameSpec{{ID: 0x100, Items: items}})
		if !errors.Is(err, protocol.ErrInvalidConfiguration) {
			t.Fatalf("%s: expected ErrInvalidConfiguration, got %v", name, err)
		}
	}
	if _, err := Finalize([]binding.FrameSpec{{ID: 0x100, Items: []binding.Binding{binding.U32(&a), binding.U32(&b)}}}); err != nil {
		t.Fatalf("eight bytes must be accepted: %v", err)
	}
}

func TestFinalizeRejectsBadLists(t *testing.T) {
	testlog.Start(t)
	var v binding.Uint8
	if _, err := Finalize(nil); !errors.Is(err, protocol.ErrInvalidConfiguration) {
		t.Fatalf("expected empty list rejection, got %v", err)
	}
	tooMany := make([]binding.FrameSpec, MaxEntries+1)
	for i := range tooMany {
		tooMany[i] = binding.FrameSpec{ID: uint32(i), Items: []binding.Binding{binding.U8(&v)}}
	}
	if _, err := Finalize(tooMany); !errors.Is(err, protocol.ErrInvalidConfiguration) {
		t.Fatalf("expected oversized list rejection, got %v", err)
	}
	if _, err := Finalize([]binding.FrameSpec{{ID: 0x800, Items: []binding.Binding{binding.U8(&v)}}}); !errors.Is(err, protocol.ErrInvalidConfiguration) {
		t.Fatalf("expected extended id rejection, got %v", err)
	}
	dup := []binding.FrameSpec{
		{ID: 0x200, Items: []binding.Binding{binding.U8(&v)}},
		{ID: 0x200, Items: []binding.Binding{binding.U8(&v)}},
	}
	if _, err := Finalize(dup); !errors.Is(err, protocol.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestDispatchRoundTrip(t *testing.T) {
	testlog.Start(t)
	var v binding.Uint16
	table, err := Finalize([]binding.FrameSpec{{ID: 0x100, Items: []binding.Binding{binding.U16(&v)}}})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := table.Dispatch(0x100, []byte{0x34, 0x12}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if v.Get() != 0x1234 {
		t.Fatalf("value got=0x%X want=0x1234", v.Get())
	}

	var s recordingSender
	n, err := table.SendAll(&s)
	if err != nil || n != 1 {
		t.Fatalf("send all n=%d err=%v", n, err)
	}
	if got := s.sent[0]; got.ID != 0x100 || got.Len != 2 || got.Data[0] != 0x34 || got.Data[1] != 0x12 {
		t.Fatalf("unexpected frame: %v", got)
	}
}

func TestDispatchMixedLayout(t *testing.T) {
	testlog.Start(t)
	var a binding.Uint8
	var b binding.Uint16
	var c binding.Uint32
	table, err := Finalize([]binding.FrameSpec{{
		ID:    0x360,
		Items: []binding.Binding{binding.U8(&a), binding.U16(&b), binding.U32(&c)},
	}})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	payload := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}
	if err := table.Dispatch(0x360, payload); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if a.Get() != 0x01 || b.Get() != 0x0302 || c.Get() != 0x07060504 {
		t.Fatalf("unexpected values a=0x%X b=0x%X c=0x%X", a.Get(), b.Get(), c.Get())
	}
	e, _ := table.Lookup(0x360)
	if got := e.Read().Payload(); string(got) != string(payload) {
		t.Fatalf("read back got=% X want=% X", got, payload)
	}
}

func TestDispatchSameValueTwiceInOneFrame(t *testing.T) {
	testlog.Start(t)
	var a binding.Uint8
	table, err := Finalize([]binding.FrameSpec{{ID: 0x10, Items: []binding.Binding{binding.U8(&a), binding.U8(&a)}}})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := table.Dispatch(0x10, []byte{0x0F, 0xF0}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if a.Get() != 0xF0 {
		t.Fatalf("last write should win, got=0x%X", a.Get())
	}
}

func TestDispatchShortPayloadZeroFills(t *testing.T) {
	testlog.Start(t)
	var v binding.Uint32
	v.Set(0xFFFFFFFF)
	table, _ := Finalize([]binding.FrameSpec{{ID: 0x20, Items: []binding.Binding{binding.U32(&v)}}})
	if err := table.Dispatch(0x20, []byte{0xAA}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if v.Get() != 0xAA {
		t.Fatalf("got=0x%X want=0xAA", v.Get())
	}
}

func TestDispatchUnknownIDMutatesNothing(t *testing.T) {
	testlog.Start(t)
	var v binding.Uint16
	v.Set(0xBEEF)
	table, _ := Finalize([]binding.FrameSpec{{ID: 0x100, Items: []binding.Binding{binding.U16(&v)}}})
	if err := table.Dispatch(0x101, []byte{0x00, 0x00}); !errors.Is(err, protocol.ErrUnknownID) {
		t.Fatalf("expected ErrUnknownID, got %v", err)
	}
	var empty *Table
	if err := empty.Dispatch(0x100, []byte{0x00, 0x00}); !errors.Is(err, protocol.ErrUnknownID) {
		t.Fatalf("expected ErrUnknownID from nil table, got %v", err)
	}
	if v.Get() != 0xBEEF {
		t.Fatalf("storage mutated: 0x%X", v.Get())
	}
}

func TestSendAllFailsFastWithoutRollback(t *testing.T) {
	testlog.Start(t)
	var v binding.Uint8
	specs := []binding.FrameSpec{
		{ID: 0x300, Items: []binding.Binding{binding.U8(&v)}},
		{ID: 0x100, Items: []binding.Binding{binding.U8(&v)}},
		{ID: 0x200, Items: []binding.Binding{binding.U8(&v)}},
	}
	table, _ := Finalize(specs)
	s := &recordingSender{failAt: 2}
	n, err := table.SendAll(s)
	if !errors.Is(err, protocol.ErrTransmitFailure) {
		t.Fatalf("expected ErrTransmitFailure, got %v", err)
	}
	if n != 1 || len(s.sent) != 1 || s.sent[0].ID != 0x100 {
		t.Fatalf("unexpected partial send n=%d sent=%v", n, s.sent)
	}
}

func TestCheckUnique(t *testing.T) {
	testlog.Start(t)
	var v binding.Uint8
	mk := func(ids ...uint32) *Table {
		specs := make([]binding.FrameSpec, len(ids))
		for i, id := range ids {
			specs[i] = binding.FrameSpec{ID: id, Items: []binding.Binding{binding.U8(&v)}}
		}
		table, err := Finalize(specs)
		if err != nil {
			t.Fatalf("finalize %v: %v", ids, err)
		}
		return table
	}
	if err := CheckUnique(mk(0x240, 0x245, 0x250), mk(0x350, 0x360)); err != nil {
		t.Fatalf("disjoint tables rejected: %v", err)
	}
	err := CheckUnique(mk(0x240, 0x350), mk(0x350, 0x360))
	if !errors.Is(err, protocol.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}

	rng := rand.New(rand.NewSource(11))
	for round := 0; round < 100; round++ {
		perm := rng.Perm(64)
		ids := make([]uint32, 0, 16)
		for _, p := range perm[:16] {
			ids = append(ids, uint32(p))
		}
		if err := CheckDisjoint(ids); err != nil {
			t.Fatalf("round=%d distinct ids rejected: %v", round, err)
		}
		ids = append(ids, ids[rng.Intn(len(ids))])
		if err := CheckDisjoint(ids); !errors.Is(err, protocol.ErrDuplicateID) {
			t.Fatalf("round=%d repeated id accepted", round)
		}
	}
}
