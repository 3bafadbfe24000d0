package ws

import "time"

// MessageType discriminates WebSocket messages.
type MessageType string

const (
	MessageChatCompleted MessageType = "chat.completed"
	MessageDiagramSaved  MessageType = "diagram.saved"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

// ChatCompletedData is the payload for chat.completed messages.
type ChatCompletedData struct {
	Model     string `json:"model,omitempty"`
	Success   bool   `json:"success"`
	ToolCalls int    `json:"tool_calls"`
}

// DiagramSavedData is the payload for diagram.saved messages.
type DiagramSavedData struct {
	DiagramID string `json:"diagram_id"`
	Title     string `json:"title"`
	Action    string `json:"action"`
}
