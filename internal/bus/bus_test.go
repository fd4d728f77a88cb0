package bus

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/ucan/internal/protocol/frame"
	"github.com/danmuck/ucan/internal/testutil/testlog"
)

func TestLoopbackDeliversToOtherEndpoints(t *testing.T) {
	testlog.Start(t)
	lb := NewLoopback()
	a, b, c := lb.Open(), lb.Open(), lb.Open()
	defer a.Close()
	defer b.Close()
	defer c.Close()

	f, _ := frame.New(0x245, []byte{1, 2, 3})
	if err := a.Send(f); err != nil {
		t.Fatalf("send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, ep := range []*Endpoint{b, c} {
		got, err := ep.Receive(ctx)
		if err != nil || got != f {
			t.Fatalf("receive got=%v err=%v", got, err)
		}
	}
	select {
	case got := <-a.rx:
		t.Fatalf("sender received its own frame: %v", got)
	default:
	}
}

func TestLoopbackFilter(t *testing.T) {
	testlog.Start(t)
	lb := NewLoopback()
	a, b := lb.Open(), lb.Open()
	if err := b.SetFilter([]uint32{0x100}); err != nil {
		t.Fatalf("filter: %v", err)
	}
	_ = a.Send(frame.Request(0x200))
	_ = a.Send(frame.Request(0x100))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := b.Receive(ctx)
	if err != nil || got.ID != 0x100 {
		t.Fatalf("expected only 0x100, got=%v err=%v", got, err)
	}
}

func TestLoopbackQueueFull(t *testing.T) {
	testlog.Start(t)
	lb := NewLoopbackWithDepth(1)
	a, _ := lb.Open(), lb.Open()
	if err := a.Send(frame.Request(0x1)); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := a.Send(frame.Request(0x1)); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestEndpointCloseAndCancel(t *testing.T) {
	testlog.Start(t)
	lb := NewLoopback()
	a := lb.Open()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Receive(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	_ = a.Close()
	_ = a.Close()
	if _, err := a.Receive(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := a.Send(frame.Request(0x1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on send, got %v", err)
	}
}

func TestEndpointRejectsInvalidFrame(t *testing.T) {
	testlog.Start(t)
	a := NewLoopback().Open()
	if err := a.Send(frame.Frame{ID: 0x900, Len: 1}); !errors.Is(err, frame.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestBackoffDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
	}
	b := NewBackoff(cfg, nil)
	want := []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Fatalf("attempt%d got=%v want=%v", i+1, got, w)
		}
	}
	if b.Attempts() != len(want) {
		t.Fatalf("attempts got=%d", b.Attempts())
	}
	b.Reset()
	if got := b.Next(); got != 250*time.Millisecond {
		t.Fatalf("after reset got=%v", got)
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultBackoffConfig()
	rng := rand.New(rand.NewSource(1))
	for attempt := 2; attempt < 10; attempt++ {
		base := BackoffConfig{InitialDelay: cfg.InitialDelay, Multiplier: cfg.Multiplier, MaxDelay: cfg.MaxDelay}.Delay(attempt, nil)
		got := cfg.Delay(attempt, rng)
		if got < base/2 || got >= base*3/2 {
			t.Fatalf("attempt=%d jittered=%v outside [%v, %v)", attempt, got, base/2, base*3/2)
		}
	}
	if (BackoffConfig{}).Delay(3, rng) != 0 {
		t.Fatalf("zero config must not wait")
	}
}
