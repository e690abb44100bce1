package mocks

import (
	"github.com/Billy-Davies-2/gamefilter/internal/logger"
	"github.com/Billy-Davies-2/gamefilter/internal/pubsub"
)

// MockNATSPubSub is a local fan-out bridged over an in-memory broker, for
// running without any NATS server
type MockNATSPubSub struct {
	*pubsub.PubSub
	broker *pubsub.MockNATSPubSub
}

// NewMockNATSPubSub creates a mock NATS pub/sub using the in-memory implementation
func NewMockNATSPubSub() *MockNATSPubSub {
	logger.Info("Using MOCK NATS/JetStream (in-memory pub/sub) for local development")

	broker := pubsub.NewMockNATSPubSub()
	return &MockNATSPubSub{
		PubSub: pubsub.NewWithUpstream(broker),
		broker: broker,
	}
}

// Last returns the newest snapshot the broker retained for topic
func (m *MockNATSPubSub) Last(topic string) (pubsub.Event, bool) {
	return m.broker.Last(topic)
}

// Close shuts the broker and the local fan-out
func (m *MockNATSPubSub) Close() {
	m.broker.Close()
	m.PubSub.Close()
}
