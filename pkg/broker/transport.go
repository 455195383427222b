// Package broker provides the level-gated publishing client that sits
// between the simulation and the MQTT transport.
//
// The Client enforces the complexity-level gate on every publish, queues
// accepted messages for a background sender, rate-limits the outgoing
// stream, and implements the bulk clear-retained operation. The wire
// client itself is abstracted behind Transport so tests run against an
// in-memory broker.
package broker

import (
	"context"
	"strings"

	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/uns"
)

// MessageHandler receives subscribed messages. retained is true for
// messages delivered from the broker's retained store.
type MessageHandler func(topic string, payload []byte, retained bool)

// Transport is a minimal wire-level pub/sub client.
type Transport interface {
	// Connect establishes the connection, honoring ctx for timeout.
	Connect(ctx context.Context) error

	// Publish sends one message. Implementations are fire-and-forget:
	// delivery failure is returned but the caller treats it as loggable
	// telemetry loss, not a fatal condition.
	Publish(msg uns.Message) error

	// Subscribe registers a handler for an MQTT topic filter ('+'/'#'
	// wildcards). The broker delivers matching retained messages
	// immediately on subscription.
	Subscribe(filter string, qos byte, handler MessageHandler) error

	// Unsubscribe removes a subscription.
	Unsubscribe(filter string) error

	// Close tears the connection down.
	Close()
}

// MatchFilter reports whether an MQTT topic filter matches a topic.
// '+' matches exactly one level, '#' matches the remainder.
func MatchFilter(filter, topic string) bool {
	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")

	for i, f := range fl {
		if f == "#" {
			return true
		}
		if i >= len(tl) {
			return false
		}
		if f != "+" && f != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}
