package chat

// SSE event types sent to the browser. Each event is a JSON object with
// a "type" discriminator.
const (
	eventText     = "text"
	eventToolCall = "tool-call"
	eventFinish   = "finish"
	eventError    = "error"
)

// TextEvent carries one incremental text fragment.
type TextEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ToolCallEvent carries one fully reassembled tool invocation.
type ToolCallEvent struct {
	Type       string         `json:"type"`
	ToolCallID string         `json:"toolCallId"`
	ToolName   string         `json:"toolName"`
	Args       map[string]any `json:"args"`
}

// FinishEvent closes the logical response. Content falls back to a
// canned sentence when the model produced no text.
type FinishEvent struct {
	Type               string `json:"type"`
	Content            string `json:"content"`
	ToolCallsCompleted bool   `json:"toolCallsCompleted"`
}

// ErrorEvent reports a mid-stream failure in-band.
type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// TopicCompleted is published on the event bus after every admitted chat
// request, successful or not.
const TopicCompleted = "chat.completed"

// CompletedEvent is the bus payload for TopicCompleted.
type CompletedEvent struct {
	PrincipalID   string `json:"principal_id"`
	PrincipalKind string `json:"principal_kind"`
	Model         string `json:"model"`
	Success       bool   `json:"success"`
	Messages      int    `json:"messages"`
	ToolCalls     int    `json:"tool_calls"`
}
