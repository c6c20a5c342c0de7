// Package protocol defines the messages pushed to live observers. Messages
// flow server -> client only, over WebSocket or Server-Sent Events.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/hochfrequenz/linkbot/internal/domain"
)

// Envelope wraps all messages with a type discriminator.
// When marshaling, Data can be any payload.
// When unmarshaling, use EnvelopeRaw for type-based dispatch.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// EnvelopeRaw is used for receiving messages where the data
// needs to be unmarshaled based on the message type.
type EnvelopeRaw struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message type constants
const (
	TypeInitLogs    = "INIT_LOGS"
	TypeNewLog      = "NEW_LOG"
	TypeLogsCleared = "LOGS_CLEARED"
)

// InitLogs is sent once when an observer attaches
func InitLogs(events []domain.LogEvent) Envelope {
	if events == nil {
		events = []domain.LogEvent{}
	}
	return Envelope{Type: TypeInitLogs, Data: events}
}

// NewLog carries one live event
func NewLog(event domain.LogEvent) Envelope {
	return Envelope{Type: TypeNewLog, Data: event}
}

// LogsCleared tells observers to drop their view
func LogsCleared() Envelope {
	return Envelope{Type: TypeLogsCleared}
}

// Marshal encodes an envelope
func Marshal(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Message is a decoded envelope. Exactly one of Events/Event is set for
// INIT_LOGS/NEW_LOG; LOGS_CLEARED carries neither.
type Message struct {
	Type   string
	Events []domain.LogEvent
	Event  *domain.LogEvent
}

// Decode parses a message received from the live surface
func Decode(data []byte) (*Message, error) {
	var env EnvelopeRaw
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	msg := &Message{Type: env.Type}
	switch env.Type {
	case TypeInitLogs:
		if err := json.Unmarshal(env.Data, &msg.Events); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", env.Type, err)
		}
	case TypeNewLog:
		var e domain.LogEvent
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", env.Type, err)
		}
		msg.Event = &e
	case TypeLogsCleared:
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
	return msg, nil
}
