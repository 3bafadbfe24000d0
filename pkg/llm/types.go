package llm

// Message represents a single message in a chat conversation.
type Message struct {
	Role    string `json:"role"`    // One of RoleSystem, RoleUser, RoleAssistant.
	Content string `json:"content"`
}

// Role constants for the Message.Role field.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Tool describes a function the model may invoke during a conversation.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  ToolParameters `json:"parameters"`
}

// ToolParameters is the JSON-Schema fragment describing a tool's arguments.
type ToolParameters struct {
	Type       string              `json:"type"` // Always "object".
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes a single tool parameter.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// FinishReason reports why the model stopped producing output.
type FinishReason string

const (
	// FinishNone means the delta carries no finish signal.
	FinishNone FinishReason = ""
	// FinishStop means the model completed a plain text turn.
	FinishStop FinishReason = "stop"
	// FinishToolCalls means the model requested one or more tool invocations.
	FinishToolCalls FinishReason = "tool_calls"
)

// ToolCallFragment is one partially-delivered piece of a tool call.
// Providers split a single invocation across many deltas: the first
// fragment for an index carries the ID and name, later ones carry
// successive chunks of the JSON arguments string. Fragments for
// different indices may interleave.
type ToolCallFragment struct {
	Index          int    `json:"index"`
	ID             string `json:"id,omitempty"`
	Name           string `json:"name,omitempty"`
	ArgumentsChunk string `json:"arguments,omitempty"`
}

// Delta is one incremental unit of streamed model output. Any combination
// of fields may be set; a terminal delta carries a non-empty FinishReason.
type Delta struct {
	Content      string
	ToolCalls    []ToolCallFragment
	FinishReason FinishReason
}

// Usage tracks token consumption for a single LLM call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
