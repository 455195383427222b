package broker

import (
	"context"
	"sync"

	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/uns"
)

// MemTransport is an in-process broker implementing Transport. It stores
// retained messages and routes publications to wildcard subscriptions the
// way a real MQTT broker does. Used by tests and by dry-run mode.
type MemTransport struct {
	mu        sync.Mutex
	connected bool
	messages  []uns.Message
	retained  map[string]uns.Message
	subs      map[string][]MessageHandler
}

// NewMemTransport creates an empty in-memory broker.
func NewMemTransport() *MemTransport {
	return &MemTransport{
		retained: make(map[string]uns.Message),
		subs:     make(map[string][]MessageHandler),
	}
}

// Connect marks the transport connected.
func (m *MemTransport) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

// Publish records the message, updates the retained store, and delivers
// to matching subscribers.
func (m *MemTransport) Publish(msg uns.Message) error {
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	if msg.Retain {
		if len(msg.Payload) == 0 {
			delete(m.retained, msg.Topic)
		} else {
			m.retained[msg.Topic] = msg
		}
	}
	var handlers []MessageHandler
	for filter, hs := range m.subs {
		if MatchFilter(filter, msg.Topic) {
			handlers = append(handlers, hs...)
		}
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(msg.Topic, msg.Payload, false)
	}
	return nil
}

// Subscribe registers the handler and immediately delivers matching
// retained messages, as a broker would.
func (m *MemTransport) Subscribe(filter string, qos byte, handler MessageHandler) error {
	m.mu.Lock()
	m.subs[filter] = append(m.subs[filter], handler)
	var deliveries []uns.Message
	for topic, msg := range m.retained {
		if MatchFilter(filter, topic) {
			deliveries = append(deliveries, msg)
		}
	}
	m.mu.Unlock()

	for _, msg := range deliveries {
		handler(msg.Topic, msg.Payload, true)
	}
	return nil
}

// Unsubscribe removes all handlers for the filter.
func (m *MemTransport) Unsubscribe(filter string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, filter)
	return nil
}

// Close marks the transport disconnected.
func (m *MemTransport) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

// Messages returns a copy of everything published so far.
func (m *MemTransport) Messages() []uns.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uns.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// MessagesTo returns the messages published to one topic.
func (m *MemTransport) MessagesTo(topic string) []uns.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []uns.Message
	for _, msg := range m.messages {
		if msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

// Retained returns the current retained message for a topic and whether
// one exists.
func (m *MemTransport) Retained(topic string) (uns.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.retained[topic]
	return msg, ok
}

// RetainedTopics returns every topic with a retained message.
func (m *MemTransport) RetainedTopics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.retained))
	for topic := range m.retained {
		out = append(out, topic)
	}
	return out
}

// Reset clears recorded messages (not the retained store).
func (m *MemTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}
