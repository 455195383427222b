package uns

import (
	"encoding/json"
	"fmt"
)

// Message is a single publication destined for the transport.
type Message struct {
	Topic   string
	Payload []byte
	Retain  bool
	QoS     byte
}

// NewMessage builds a message with the retain flag derived from the topic's
// namespace policy. Retained topics use QoS 1 so late subscribers get a
// delivered last-known value; streaming topics use QoS 0.
func NewMessage(topic string, payload []byte) Message {
	m := Message{Topic: topic, Payload: payload}
	if Retained(topic) {
		m.Retain = true
		m.QoS = 1
	}
	return m
}

// NewValueMessage serializes v (JSON for maps/structs, plain text for
// scalars) and builds a message for topic.
func NewValueMessage(topic string, v any) (Message, error) {
	payload, err := encodeValue(v)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s: %w", topic, err)
	}
	return NewMessage(topic, payload), nil
}

func encodeValue(v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	case bool:
		if x {
			return []byte("1"), nil
		}
		return []byte("0"), nil
	case int, int32, int64:
		return []byte(fmt.Sprintf("%d", x)), nil
	case float32, float64:
		return []byte(fmt.Sprintf("%g", x)), nil
	default:
		return json.Marshal(v)
	}
}
