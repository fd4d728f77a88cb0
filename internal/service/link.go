package service

import (
	"sync"

	"github.com/danmuck/ucan/internal/bus"
	"github.com/danmuck/ucan/internal/protocol/frame"
)

// link is the handle's fixed sender. It forwards to whichever adapter is
// currently open and replays the receive filter onto reopened adapters.
type link struct {
	mu      sync.RWMutex
	adapter bus.Adapter
	filter  []uint32
}

var (
	_ bus.Filterer = (*link)(nil)
)

func (l *link) current() bus.Adapter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.adapter
}

func (l *link) Send(f frame.Frame) error {
	a := l.current()
	if a == nil {
		return bus.ErrClosed
	}
	return a.Send(f)
}

func (l *link) SetFilter(ids []uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.filter = append([]uint32(nil), ids...)
	if f, ok := l.adapter.(bus.Filterer); ok {
		return f.SetFilter(l.filter)
	}
	return nil
}

// swap installs a, applying the stored filter first, and closes the old adapter.
func (l *link) swap(a bus.Adapter) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if f, ok := a.(bus.Filterer); ok && l.filter != nil {
		if err := f.SetFilter(l.filter); err != nil {
			return err
		}
	}
	old := l.adapter
	l.adapter = a
	if old != nil && old != a {
		_ = old.Close()
	}
	return nil
}

func (l *link) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.adapter == nil {
		return nil
	}
	err := l.adapter.Close()
	l.adapter = nil
	return err
}
