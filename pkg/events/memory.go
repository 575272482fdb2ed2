package events

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var ErrBusClosed = errors.New("bus is closed")

// MemoryBus is an in-process Bus. Every topic is a buffered queue shared by
// all subscribers of the topic, each message is delivered to one of them.
//
// Messages are lost when the process exits. They are recreated by the next
// scan.
type MemoryBus struct {
	mu     sync.Mutex
	topics map[string]chan []byte
	size   int
	done   chan struct{}
	closed bool
}

// NewMemoryBus returns a bus buffering up to size messages per topic before
// Publish blocks.
func NewMemoryBus(size int) *MemoryBus {
	if size <= 0 {
		size = 1024
	}

	return &MemoryBus{
		topics: make(map[string]chan []byte),
		size:   size,
		done:   make(chan struct{}),
	}
}

func (b *MemoryBus) topic(name string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[name]
	if !ok {
		t = make(chan []byte, b.size)
		b.topics[name] = t
	}
	return t
}

// Publish queues a message. It blocks while the topic buffer is full.
func (b *MemoryBus) Publish(ctx context.Context, topic string, body []byte) error {
	select {
	case <-b.done:
		return ErrBusClosed
	default:
	}

	select {
	case b.topic(topic) <- body:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe handles messages of the topic until ctx is done or the bus is
// closed. Handler errors are logged.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages := b.topic(topic)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return ErrBusClosed
		case body := <-messages:
			if err := handler(ctx, body); err != nil {
				log.Error().Err(err).Str("topic", topic).Msg("Failed to handle message")
			}
		}
	}
}

// Close stops all subscribers. Queued messages are discarded.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.done)
	}
	return nil
}
