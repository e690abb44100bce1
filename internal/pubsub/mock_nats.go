package pubsub

import (
	"sync"

	"github.com/Billy-Davies-2/gamefilter/internal/logger"
)

// MockNATSPubSub is an in-memory Upstream. Like the JetStream stream it keeps
// the newest event per topic so late subscribers can replay it.
type MockNATSPubSub struct {
	subscribers []chan Event
	mu          sync.RWMutex
	retained    map[string]Event
	published   int
}

// NewMockNATSPubSub creates an in-memory upstream for local development
func NewMockNATSPubSub() *MockNATSPubSub {
	logger.Info("Using mock NATS pub/sub for local development")
	return &MockNATSPubSub{
		subscribers: make([]chan Event, 0),
		retained:    make(map[string]Event),
	}
}

// Publish retains the event and delivers it to every subscriber
func (p *MockNATSPubSub) Publish(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.published++
	if prev, ok := p.retained[event.Topic]; !ok || event.Version >= prev.Version {
		p.retained[event.Topic] = event
	}
	for _, sub := range p.subscribers {
		select {
		case sub <- event:
		default:
			logger.Warn("Mock NATS: Skipping slow subscriber", "topic", event.Topic)
		}
	}
}

// Subscribe creates a subscription channel for events
func (p *MockNATSPubSub) Subscribe() chan Event {
	ch := make(chan Event, 100)

	p.mu.Lock()
	p.subscribers = append(p.subscribers, ch)
	p.mu.Unlock()

	return ch
}

// Unsubscribe removes a subscription channel
func (p *MockNATSPubSub) Unsubscribe(ch chan Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, sub := range p.subscribers {
		if sub == ch {
			p.subscribers = append(p.subscribers[:i], p.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// Last returns the newest retained event for topic
func (p *MockNATSPubSub) Last(topic string) (Event, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ev, ok := p.retained[topic]
	return ev, ok
}

// PublishedCount returns how many events were published
func (p *MockNATSPubSub) PublishedCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.published
}

// Close closes all subscriptions
func (p *MockNATSPubSub) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, sub := range p.subscribers {
		close(sub)
	}
	p.subscribers = nil
}
