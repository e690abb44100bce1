package pubsub

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Billy-Davies-2/gamefilter/internal/logger"
)

// NATSOptions names the subjects and stream used on a broker
type NATSOptions struct {
	// SubjectPrefix is prepended to every topic: <prefix>.<topic>
	SubjectPrefix string
	StreamName    string
	Storage       nats.StorageType
	MaxAge        time.Duration
}

// DefaultNATSOptions returns the production stream settings
func DefaultNATSOptions() NATSOptions {
	return NATSOptions{
		SubjectPrefix: "gamefilter",
		StreamName:    "GAMEFILTER_SNAPSHOTS",
		Storage:       nats.FileStorage,
		MaxAge:        24 * time.Hour,
	}
}

// NATSPubSub implements Upstream using NATS JetStream. Every instance runs an
// ephemeral consumer so each one sees every snapshot.
type NATSPubSub struct {
	nc          *nats.Conn
	js          nats.JetStreamContext
	sub         *nats.Subscription
	prefix      string
	subscribers []chan Event
	mu          sync.RWMutex
}

// NewNATSPubSub creates a new NATS JetStream pub/sub
func NewNATSPubSub(natsURL string, opts NATSOptions) (*NATSPubSub, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	p, err := newNATSPubSub(nc, opts)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return p, nil
}

func newNATSPubSub(nc *nats.Conn, opts NATSOptions) (*NATSPubSub, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	wildcard := opts.SubjectPrefix + ".>"
	_, err = js.StreamInfo(opts.StreamName)
	if errors.Is(err, nats.ErrStreamNotFound) {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     opts.StreamName,
			Subjects: []string{wildcard},
			Storage:  opts.Storage,
			MaxAge:   opts.MaxAge,
			// only the newest snapshot per topic is worth replaying
			MaxMsgsPerSubject: 1,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create stream %s: %w", opts.StreamName, err)
	}

	p := &NATSPubSub{
		nc:          nc,
		js:          js,
		prefix:      opts.SubjectPrefix,
		subscribers: make([]chan Event, 0),
	}

	p.sub, err = js.Subscribe(wildcard, p.handle, nats.DeliverNew(), nats.ManualAck())
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", wildcard, err)
	}
	logger.Debug("Subscribed to JetStream", "subject", wildcard, "stream", opts.StreamName)
	return p, nil
}

func (p *NATSPubSub) subject(topic string) string {
	return p.prefix + "." + topic
}

func (p *NATSPubSub) handle(msg *nats.Msg) {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logger.Error("Failed to unmarshal event from JetStream", "error", err, "subject", msg.Subject)
		// a malformed message will never parse; do not redeliver it
		msg.Term()
		return
	}

	p.mu.RLock()
	for _, sub := range p.subscribers {
		select {
		case sub <- event:
		default:
			logger.Warn("NATS: Skipping slow subscriber", "topic", event.Topic)
		}
	}
	p.mu.RUnlock()

	msg.Ack()
}

// Publish publishes an event to NATS JetStream. Local subscribers receive it
// when it comes back through the consumer.
func (p *NATSPubSub) Publish(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal event", "error", err, "topic", event.Topic)
		return
	}
	if _, err := p.js.Publish(p.subject(event.Topic), data); err != nil {
		logger.Error("Failed to publish to NATS", "error", err, "topic", event.Topic)
		return
	}
	logger.Debug("Published event to NATS", "topic", event.Topic, "version", event.Version)
}

// Subscribe creates a subscription channel for events
func (p *NATSPubSub) Subscribe() chan Event {
	ch := make(chan Event, 100)

	p.mu.Lock()
	p.subscribers = append(p.subscribers, ch)
	p.mu.Unlock()

	return ch
}

// Unsubscribe removes a subscription channel
func (p *NATSPubSub) Unsubscribe(ch chan Event) {
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

// SubscriberCount returns the number of local subscription channels
func (p *NATSPubSub) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers)
}

// Connected reports whether the broker connection is up
func (p *NATSPubSub) Connected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

// Close closes the NATS connection
func (p *NATSPubSub) Close() {
	if p.sub != nil {
		p.sub.Unsubscribe()
	}

	p.mu.Lock()
	for _, sub := range p.subscribers {
		close(sub)
	}
	p.subscribers = nil
	p.mu.Unlock()

	if p.nc != nil {
		p.nc.Close()
	}
}
