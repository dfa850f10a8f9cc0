package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ochairo/carbonrepo/internal/domain/entities"
)

// eventMsg carries one engine event into the program
type eventMsg entities.Event

// Bridge forwards engine events to a running program in order. Sink never
// blocks, so the engine can emit while holding its own locks.
type Bridge struct {
	mu     sync.Mutex
	queue  []entities.Event
	wake   chan struct{}
	closed bool
}

// NewBridge creates a bridge; pass Sink to the engine and call Forward once
// the program exists
func NewBridge() *Bridge {
	return &Bridge{wake: make(chan struct{}, 1)}
}

// Sink queues ev for delivery
func (b *Bridge) Sink(ev entities.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.queue = append(b.queue, ev)
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Forward delivers queued events to send until Close is called
func (b *Bridge) Forward(send func(tea.Msg)) {
	for range b.wake {
		for {
			b.mu.Lock()
			if len(b.queue) == 0 {
				closed := b.closed
				b.mu.Unlock()
				if closed {
					return
				}
				break
			}
			ev := b.queue[0]
			b.queue = b.queue[1:]
			b.mu.Unlock()
			send(eventMsg(ev))
		}
	}
}

// Close stops Forward after the queue drains
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.wake)
}
