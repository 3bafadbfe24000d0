package chat

import "github.com/flowforge-ai/flowforge/pkg/llm"

// systemPrompt steers the model toward tool use for diagram work and
// plain text for everything else.
const systemPrompt = `You are FlowForge AI, an expert at creating diagrams using Mermaid syntax.

AVAILABLE TOOLS:
- generate_diagram: Create or update diagrams using Mermaid syntax
- get_canvas_state: Get detailed analysis of current canvas elements (use this to understand what's currently drawn)

CORE RULES:
- If the user asks to create, generate, draw, make, design, or modify a diagram, use the generate_diagram tool
- If you need to understand the current canvas state, use the get_canvas_state tool first
- If the user asks to analyze, describe, or explain the canvas, use the get_canvas_state tool and provide natural, conversational analysis
- For general questions or chat, respond normally with text
- Always generate valid Mermaid syntax when using the diagram tool
- Keep diagrams clear, well-structured, and easy to understand

RESPONSE GUIDELINES:
- When generating diagrams, do not show or mention Mermaid code in your response
- Focus on explaining what the diagram represents and its purpose
- The diagram is added to the canvas automatically; do not tell users how to add it
- Provide natural, conversational explanations about the process or workflow you created
- Ask users if they want any modifications or improvements

DIAGRAM GENERATION MODES:
- replace: clear existing AI elements and create a new diagram (when starting fresh)
- extend: add to or modify the existing diagram (when building on current content)`

// Fallback finish contents when the model produced no text.
const (
	fallbackToolContent = "Tool calls completed successfully."
	fallbackTextContent = "Conversation completed."
)

// Tools returns the tool declarations sent with every conversation.
func Tools() []llm.Tool {
	return []llm.Tool{
		{
			Name:        "generate_diagram",
			Description: "Generate or update a diagram using Mermaid syntax",
			Parameters: llm.ToolParameters{
				Type: "object",
				Properties: map[string]llm.Property{
					"diagram_code": {
						Type:        "string",
						Description: "Valid Mermaid diagram code",
					},
					"mode": {
						Type:        "string",
						Enum:        []string{"replace", "extend"},
						Description: "Whether to replace the existing diagram completely or extend/modify it based on existing content",
					},
					"description": {
						Type:        "string",
						Description: "Brief description of the diagram",
					},
				},
				Required: []string{"diagram_code", "mode", "description"},
			},
		},
		{
			Name:        "get_canvas_state",
			Description: "Get detailed analysis of current canvas elements, including user modifications and all elements on the canvas. Use this to understand what is currently drawn before making modifications.",
			Parameters: llm.ToolParameters{
				Type:       "object",
				Properties: map[string]llm.Property{},
			},
		},
	}
}
