package intake

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryConsumer is an in-process Consumer for local runs and tests.
type MemoryConsumer struct {
	mu      sync.Mutex
	queue   []*Message
	batch   []*Message
	signal  chan struct{}
	timeout time.Duration
	source  string
}

// NewMemoryConsumer creates an empty queue. Messages published without a
// source get defaultSource.
func NewMemoryConsumer(timeout time.Duration, defaultSource string) *MemoryConsumer {
	return &MemoryConsumer{
		signal:  make(chan struct{}, 1),
		timeout: timeout,
		source:  defaultSource,
	}
}

// Publish appends a message and returns its id.
func (m *MemoryConsumer) Publish(source string, body []byte) string {
	if source == "" {
		source = m.source
	}
	msg := &Message{ID: uuid.NewString(), Source: source, Body: body}

	m.mu.Lock()
	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return msg.ID
}

func (m *MemoryConsumer) Receive(ctx context.Context) (*Message, error) {
	if msg := m.pop(); msg != nil {
		return msg, nil
	}

	t := time.NewTimer(m.timeout)
	defer t.Stop()
	select {
	case <-m.signal:
		return m.pop(), nil
	case <-t.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *MemoryConsumer) pop() *Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil
	}
	msg := m.queue[0]
	m.queue = m.queue[1:]
	m.batch = append(m.batch, msg)
	return msg
}

func (m *MemoryConsumer) Commit(context.Context) error {
	m.mu.Lock()
	m.batch = nil
	m.mu.Unlock()
	return nil
}

// Rollback puts the batch back at the head of the queue in its original order.
func (m *MemoryConsumer) Rollback(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.batch) == 0 {
		return nil
	}
	m.queue = append(m.batch, m.queue...)
	m.batch = nil
	return nil
}

// Len returns the number of messages not yet committed.
func (m *MemoryConsumer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue) + len(m.batch)
}

func (m *MemoryConsumer) Close() error { return nil }
