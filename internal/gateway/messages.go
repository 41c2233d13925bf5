package gateway

import "github.com/mnemosyne/server/domain/entities"

// MessageType defines the type of a gateway message
type MessageType string

// Inbound message types
const (
	MessageTypeTranscribe MessageType = "transcribe"
	MessageTypePing       MessageType = "ping"
)

// Outbound message types
const (
	MessageTypeStatus  MessageType = "status"
	MessageTypeSegment MessageType = "segment"
	MessageTypeError   MessageType = "error"
	MessageTypePong    MessageType = "pong"
)

// InboundMessage is a request pushed by an observer.
type InboundMessage struct {
	Type      MessageType `json:"type"`
	AudioPath string      `json:"audio_path,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
}

// OutboundMessage is one event broadcast to observers. Exactly one of
// Message and Segment is set depending on Type.
type OutboundMessage struct {
	Type      MessageType       `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	Message   string            `json:"message,omitempty"`
	Segment   *entities.Segment `json:"segment,omitempty"`
}
