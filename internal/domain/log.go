package domain

import (
	"fmt"
	"strings"
	"time"
)

// Level classifies a LogEvent
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Upper returns the level as written in session log files
func (l Level) Upper() string {
	return strings.ToUpper(string(l))
}

// LogEvent is one immutable diagnostic record.
// TechnicalMessage is always set; UserMessage is the simplified text shown to
// non-technical observers; IsAdvanced hides the event from the simplified view.
type LogEvent struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	Level            Level     `json:"level"`
	TechnicalMessage string    `json:"technicalMessage"`
	UserMessage      string    `json:"userMessage,omitempty"`
	IsAdvanced       bool      `json:"isAdvanced"`
}

// Line renders the event the way it is appended to a session log file
func (e LogEvent) Line() string {
	return fmt.Sprintf("[%s] [%s] %s\n", e.Timestamp.UTC().Format(time.RFC3339Nano), e.Level.Upper(), e.TechnicalMessage)
}

// Entry is the partial event every producer hands to the bus
type Entry struct {
	Level       Level
	Message     string
	UserMessage string
	Advanced    bool
}

// Info builds an info-level entry
func Info(message, userMessage string) Entry {
	return Entry{Level: LevelInfo, Message: message, UserMessage: userMessage}
}

// Success builds a success-level entry
func Success(message, userMessage string) Entry {
	return Entry{Level: LevelSuccess, Message: message, UserMessage: userMessage}
}

// Warning builds a warning-level entry
func Warning(message, userMessage string) Entry {
	return Entry{Level: LevelWarning, Message: message, UserMessage: userMessage}
}

// Error builds an error-level entry
func Error(message, userMessage string) Entry {
	return Entry{Level: LevelError, Message: message, UserMessage: userMessage}
}

// AsAdvanced marks the entry as hidden from the simplified view
func (e Entry) AsAdvanced() Entry {
	e.Advanced = true
	return e
}
