package broker

import (
	"encoding/json"
	"time"
)

// Error codes surfaced to clients in error frames.
const (
	CodeBadRequest    = "BAD_REQUEST"
	CodeTopicNotFound = "TOPIC_NOT_FOUND"
	CodeSlowConsumer  = "SLOW_CONSUMER"
	CodeInternalError = "INTERNAL_ERROR"
)

// Info frame messages.
const (
	InfoConnected    = "connected"
	InfoTopicDeleted = "topic_deleted"
)

// WebSocket close codes used by the broker.
const (
	CloseGoingAway    = 1001 // server shutting down
	ClosePolicyReason = 1008 // slow consumer
)

type eventFrame struct {
	Type    string  `json:"type"`
	Topic   string  `json:"topic"`
	Message Message `json:"message"`
	TS      string  `json:"ts"`
}

type infoFrame struct {
	Type     string `json:"type"`
	Msg      string `json:"msg"`
	ClientID string `json:"client_id,omitempty"`
	Topic    string `json:"topic,omitempty"`
	TS       string `json:"ts"`
}

type ackFrame struct {
	Type      string  `json:"type"`
	RequestID *string `json:"request_id"`
	Topic     string  `json:"topic"`
	Status    string  `json:"status"`
	TS        string  `json:"ts"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorFrame struct {
	Type      string      `json:"type"`
	RequestID *string     `json:"request_id"`
	Error     errorDetail `json:"error"`
	TS        string      `json:"ts"`
}

type pongFrame struct {
	Type      string  `json:"type"`
	RequestID *string `json:"request_id"`
	TS        string  `json:"ts"`
}

// Timestamp returns the current time in the wire format used by all
// server-emitted frames (ISO-8601 UTC).
func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// All frame types marshal without error; json.RawMessage payloads
		// were validated at ingress.
		panic("broker: frame marshal: " + err.Error())
	}
	return data
}

// EventFrame encodes ev as a wire frame.
func EventFrame(ev Event) []byte {
	return mustMarshal(eventFrame{Type: "event", Topic: ev.Topic, Message: ev.Message, TS: ev.TS})
}

// InfoFrame encodes an informational frame. clientID and topic are omitted
// when empty.
func InfoFrame(msg, clientID, topic string) []byte {
	return mustMarshal(infoFrame{Type: "info", Msg: msg, ClientID: clientID, Topic: topic, TS: Timestamp()})
}

// AckFrame encodes a successful acknowledgement for a client request.
// requestID may be nil when the client did not supply one.
func AckFrame(requestID *string, topic string) []byte {
	return mustMarshal(ackFrame{Type: "ack", RequestID: requestID, Topic: topic, Status: "ok", TS: Timestamp()})
}

// ErrorFrame encodes an error frame. requestID may be nil, in which case the
// field is serialized as null.
func ErrorFrame(requestID *string, code, message string) []byte {
	return mustMarshal(errorFrame{Type: "error", RequestID: requestID, Error: errorDetail{Code: code, Message: message}, TS: Timestamp()})
}

// PongFrame encodes the reply to a client-level ping frame.
func PongFrame(requestID *string) []byte {
	return mustMarshal(pongFrame{Type: "pong", RequestID: requestID, TS: Timestamp()})
}
