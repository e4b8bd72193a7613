package models

import "time"

// MessageType is the discriminator of a publish-channel frame.
type MessageType string

const (
	MessageConnection MessageType = "connection"
	MessageThought    MessageType = "thought"
	MessageStats      MessageType = "stats"
	MessagePurge      MessageType = "purge"
)

// Message is the envelope of every server-to-viewer frame.
type Message struct {
	Type      MessageType `json:"type"`
	Data      any         `json:"data"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// NewMessage wraps data in a timestamped envelope.
func NewMessage(t MessageType, data any) Message {
	return Message{
		Type:      t,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}
