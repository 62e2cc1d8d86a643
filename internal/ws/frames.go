package ws

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/relaykit/relay/internal/broker"
)

// inboundFrame is the JSON envelope clients send. Unknown extra fields are
// ignored by encoding/json.
type inboundFrame struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	ClientID  string          `json:"client_id"`
	LastN     *int            `json:"last_n"`
	RequestID string          `json:"request_id"`
	Message   json.RawMessage `json:"message"`

	message broker.Message // decoded publish message, set by parseFrame
	lastN   int            // resolved last_n, set by parseFrame
}

// requestID returns the client-supplied request ID, or nil when absent.
func (f *inboundFrame) requestID() *string {
	if f.RequestID == "" {
		return nil
	}
	id := f.RequestID
	return &id
}

// frameError carries a validation failure back to the client.
type frameError struct {
	requestID *string
	code      string
	message   string
}

// Strict RFC-4122 textual form: hex-dash 8-4-4-4-12 with version 1-5 and
// variant 8/9/a/b. Deliberately narrower than uuid.Parse, which also accepts
// braced, URN, and dashless encodings.
var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[1-5][0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// parseFrame decodes and validates one inbound frame. Validation order:
// JSON shape, known type, per-type required fields, publish message.id
// format. No registry state is touched on any failure path.
func parseFrame(data []byte) (*inboundFrame, *frameError) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &frameError{code: broker.CodeBadRequest, message: "Invalid JSON format"}
	}

	reqID := f.requestID()
	badRequest := func(msg string) (*inboundFrame, *frameError) {
		return nil, &frameError{requestID: reqID, code: broker.CodeBadRequest, message: msg}
	}

	switch f.Type {
	case "subscribe":
		if strings.TrimSpace(f.Topic) == "" {
			return badRequest("topic is required")
		}
		if strings.TrimSpace(f.ClientID) == "" {
			return badRequest("client_id is required")
		}
		if f.LastN != nil {
			if *f.LastN < 0 {
				return badRequest("last_n must be >= 0")
			}
			f.lastN = *f.LastN
		}

	case "unsubscribe":
		if strings.TrimSpace(f.Topic) == "" {
			return badRequest("topic is required")
		}
		if strings.TrimSpace(f.ClientID) == "" {
			return badRequest("client_id is required")
		}

	case "publish":
		if strings.TrimSpace(f.Topic) == "" {
			return badRequest("topic is required")
		}
		raw := strings.TrimSpace(string(f.Message))
		if raw == "" || raw == "null" {
			return badRequest("message is required")
		}
		if !strings.HasPrefix(raw, "{") {
			return badRequest("message must be an object")
		}
		if err := json.Unmarshal(f.Message, &f.message); err != nil {
			return badRequest("message must be an object")
		}
		if f.message.ID != "" && !uuidPattern.MatchString(f.message.ID) {
			return badRequest("message.id must be a valid UUID")
		}

	case "ping":
		// No required fields.

	case "":
		return badRequest("type is required")

	default:
		return badRequest("unknown frame type: " + f.Type)
	}

	return &f, nil
}
