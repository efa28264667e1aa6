package mq

import "sync"

// InMemoryQueue delivers messages synchronously to subscribers and keeps
// every published message per topic.
type InMemoryQueue struct {
	mu       sync.RWMutex
	handlers map[string][]func([]byte) error
	messages map[string][][]byte
}

var _ MessageQueue = (*InMemoryQueue)(nil)

// NewInMemoryQueue returns an empty queue.
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func([]byte) error),
		messages: make(map[string][][]byte),
	}
}

// Publish stores the message and calls each subscriber in order, stopping at
// the first error.
func (q *InMemoryQueue) Publish(topic string, message []byte) error {
	q.mu.Lock()
	q.messages[topic] = append(q.messages[topic], append([]byte(nil), message...))
	handlers := append([]func([]byte) error(nil), q.handlers[topic]...)
	q.mu.Unlock()

	for _, handler := range handlers {
		if err := handler(message); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers a handler for topic.
func (q *InMemoryQueue) Subscribe(topic string, handler func([]byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Close implements MessageQueue.
func (q *InMemoryQueue) Close() error { return nil }

// Messages returns the messages published on topic.
func (q *InMemoryQueue) Messages(topic string) [][]byte {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([][]byte(nil), q.messages[topic]...)
}
