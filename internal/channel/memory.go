package channel

import (
	"context"
	"sync"
)

type memorySubscriber struct {
	id uint64
	fn func([]byte)
}

// MemoryTransport is an in-process fan-out hub. Every payload published on a
// topic is handed to all of the topic's subscribers, including ones that live
// in the publishing component.
type MemoryTransport struct {
	mu     sync.RWMutex
	subs   map[string][]memorySubscriber
	nextID uint64
	closed bool

	deliverMu sync.Mutex // keeps delivery order across concurrent publishers
}

// NewMemoryTransport creates an empty hub
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{subs: make(map[string][]memorySubscriber)}
}

func (m *MemoryTransport) Subscribe(topic string, fn func(payload []byte)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	m.nextID++
	id := m.nextID
	m.subs[topic] = append(m.subs[topic], memorySubscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { m.unsubscribe(topic, id) })
	}, nil
}

func (m *MemoryTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	subs := make([]memorySubscriber, len(m.subs[topic]))
	copy(subs, m.subs[topic])
	m.mu.RUnlock()

	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	for _, sub := range subs {
		data := make([]byte, len(payload))
		copy(data, payload)
		sub.fn(data)
	}
	return nil
}

// Subscribers returns the number of active subscribers of a topic
func (m *MemoryTransport) Subscribers(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[topic])
}

func (m *MemoryTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	clear(m.subs)
	return nil
}

func (m *MemoryTransport) unsubscribe(topic string, id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.subs[topic]
	for i, sub := range subs {
		if sub.id == id {
			m.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(m.subs[topic]) == 0 {
		delete(m.subs, topic)
	}
}
