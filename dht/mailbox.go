package dht

import (
	"context"
	"sync"
)

// mailbox is an unbounded multi-producer, single-consumer FIFO queue.
// Post never blocks, so actors can message each other in both directions
// without risking a send deadlock.
type mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	signal chan struct{}
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{signal: make(chan struct{}, 1)}
}

func (m *mailbox[T]) Post(v T) {
	m.mu.Lock()
	m.items = append(m.items, v)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// Receive blocks until an item is available or ctx is done.
func (m *mailbox[T]) Receive(ctx context.Context) (T, bool) {
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			v := m.items[0]
			var zero T
			m.items[0] = zero
			m.items = m.items[1:]
			if len(m.items) == 0 {
				m.items = nil
			}
			m.mu.Unlock()
			return v, true
		}
		m.mu.Unlock()

		select {
		case <-m.signal:
		case <-ctx.Done():
			var zero T
			return zero, false
		}
	}
}

func (m *mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
