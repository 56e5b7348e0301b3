package orchestrator

import "sync"

// mailbox is an unbounded FIFO queue. Send never blocks; the consumer waits
// on Ready and then drains everything queued.
type mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	ready  chan struct{}
	closed bool
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{ready: make(chan struct{}, 1)}
}

// Send enqueues v. It returns false once the mailbox is closed.
func (m *mailbox[T]) Send(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, v)
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return true
}

// Ready is signalled whenever items may be waiting.
func (m *mailbox[T]) Ready() <-chan struct{} {
	return m.ready
}

// Drain removes and returns every queued item in arrival order.
func (m *mailbox[T]) Drain() []T {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.items
	m.items = nil
	return items
}

// Close rejects further sends and returns whatever was still queued.
func (m *mailbox[T]) Close() []T {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	items := m.items
	m.items = nil
	return items
}

// Len returns the number of queued items.
func (m *mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
