package broker

import "encoding/json"

// Message is the client-supplied unit carried by an Event. The payload is
// opaque to the broker.
type Message struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Event is the unit of fan-out and replay: one published message stamped
// with its topic and publish time.
type Event struct {
	Topic   string  `json:"topic"`
	Message Message `json:"message"`
	TS      string  `json:"ts"`
}

// topicRecord holds the per-topic subscription set and replay history. All
// access goes through the registry critical section.
type topicRecord struct {
	name    string
	subs    map[string]*Subscriber
	history *ring
	msgs    uint64 // publishes since creation
}

func newTopicRecord(name string, ringSize int) *topicRecord {
	return &topicRecord{
		name:    name,
		subs:    make(map[string]*Subscriber),
		history: newRing(ringSize),
	}
}
