package models

import "time"

// Frame types carried on the wire.
const (
	FrameTypeMessage = "message"
	FrameTypeError   = "error"
)

// InboundFrame is what a connected client sends.
type InboundFrame struct {
	DisplayName string `json:"displayName"`
	Content     string `json:"content"`
}

// BroadcastFrame fans out to every member of a room.
type BroadcastFrame struct {
	Type string        `json:"type"`
	Data BroadcastData `json:"data"`
}

type BroadcastData struct {
	MessageID   string `json:"messageId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Content     string `json:"content"`
	Timestamp   string `json:"timestamp"`
}

// NewBroadcastFrame builds the outbound frame for a persisted message.
func NewBroadcastFrame(msg *Message) BroadcastFrame {
	return BroadcastFrame{
		Type: FrameTypeMessage,
		Data: BroadcastData{
			MessageID:   msg.ID,
			UserID:      msg.UserID,
			DisplayName: msg.DisplayName,
			Content:     msg.Content,
			Timestamp:   msg.CreatedAt.UTC().Format(time.RFC3339),
		},
	}
}

// ErrorFrame is sent to exactly one connection, never broadcast.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorFrame wraps a generic reason for the affected connection.
func NewErrorFrame(message string) ErrorFrame {
	return ErrorFrame{Type: FrameTypeError, Message: message}
}

// RejectionNotice is written once before closing an unadmitted socket.
type RejectionNotice struct {
	Error string `json:"error"`
}
