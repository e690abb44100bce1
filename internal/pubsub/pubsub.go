package pubsub

import (
	"encoding/json"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/Billy-Davies-2/gamefilter/internal/logger"
)

const (
	subscriberBuffer = 16
	// latestTopics bounds how many topics keep a last-seen version
	latestTopics = 4096
)

// Event is one message on a topic. Snapshot events carry the store version
// of the record they describe so subscribers can drop stale ones.
type Event struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Version int64           `json:"version,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DraftTopic is the topic carrying snapshots of one draft session
func DraftTopic(id string) string { return "draft." + id }

// RoomTopic is the topic carrying snapshots of one room
func RoomTopic(code string) string { return "room." + code }

// Upstream is an interface for upstream publishers (e.g., NATS)
type Upstream interface {
	Publish(Event)
	Subscribe() chan Event
	Unsubscribe(chan Event)
}

type subscriber struct {
	ch    chan Event
	topic string
}

// PubSub fans events out to in-process subscribers, optionally through an
// upstream broker shared by every instance.
type PubSub struct {
	mu          sync.RWMutex
	subscribers []subscriber
	upstream    Upstream // Optional upstream publisher (e.g., NATS)
	// latest version delivered per recently active topic
	latest *lru.Cache
	closed bool
}

// New creates a new PubSub instance
func New() *PubSub {
	latest, _ := lru.New(latestTopics)
	return &PubSub{
		subscribers: []subscriber{},
		latest:      latest,
	}
}

// NewWithUpstream creates a PubSub that bridges to an upstream publisher (e.g., NATS)
// When Publish is called, events are sent to the upstream, which broadcasts to all instances.
// Events from the upstream are forwarded to local subscribers.
func NewWithUpstream(upstream Upstream) *PubSub {
	ps := New()
	ps.upstream = upstream

	ch := upstream.Subscribe()
	go func() {
		logger.Debug("PubSub: Subscribed to upstream, waiting for events")
		for event := range ch {
			ps.publishLocal(event)
		}
		logger.Debug("PubSub: Upstream channel closed")
	}()

	return ps
}

// Subscribe returns a channel receiving events for topic. An empty topic
// receives everything.
func (ps *PubSub) Subscribe(topic string) chan Event {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if ps.closed {
		close(ch)
		return ch
	}
	ps.subscribers = append(ps.subscribers, subscriber{ch: ch, topic: topic})
	logger.Debug("PubSub: New subscriber added", "topic", topic, "totalSubscribers", len(ps.subscribers))
	return ch
}

// Unsubscribe removes a subscriber and closes its channel
func (ps *PubSub) Unsubscribe(ch chan Event) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	for i, sub := range ps.subscribers {
		if sub.ch == ch {
			close(ch)
			ps.subscribers = append(ps.subscribers[:i], ps.subscribers[i+1:]...)
			break
		}
	}
}

// Publish sends an event to all subscribers
// If an upstream is configured, the event is published to the upstream,
// which will broadcast it back to all instances (including this one)
func (ps *PubSub) Publish(event Event) {
	if ps.upstream != nil {
		ps.upstream.Publish(event)
		return
	}
	ps.publishLocal(event)
}

// publishLocal delivers to matching local subscribers. Versioned events older
// than or equal to the last one seen on their topic are dropped. A subscriber
// whose buffer is full is closed and removed rather than silently missing an
// event; its reader reloads the current snapshot when it subscribes again.
func (ps *PubSub) publishLocal(event Event) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.closed {
		return
	}
	if event.Version > 0 {
		if last, ok := ps.latest.Get(event.Topic); ok && event.Version <= last.(int64) {
			logger.Debug("PubSub: Dropping stale event", "topic", event.Topic, "version", event.Version)
			return
		}
		ps.latest.Add(event.Topic, event.Version)
	}

	kept := ps.subscribers[:0]
	for _, sub := range ps.subscribers {
		if sub.topic != "" && sub.topic != event.Topic {
			kept = append(kept, sub)
			continue
		}
		select {
		case sub.ch <- event:
			kept = append(kept, sub)
		default:
			logger.Warn("PubSub: Closing slow subscriber", "topic", event.Topic, "type", event.Type)
			close(sub.ch)
		}
	}
	ps.subscribers = kept
}

// SubscriberCount returns the number of local subscribers
func (ps *PubSub) SubscriberCount() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subscribers)
}

// Close closes every subscriber channel. Later publishes are ignored.
func (ps *PubSub) Close() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.closed {
		return
	}
	ps.closed = true
	for _, sub := range ps.subscribers {
		close(sub.ch)
	}
	ps.subscribers = nil
}
