// Package llm provides the public SDK types for LLM provider integrations.
// All streaming chat backends implement StreamProvider; adapter
// implementations live in internal/llm/{provider}/.
package llm

import "context"

// ConverseRequest describes one streaming chat-completion call.
type ConverseRequest struct {
	// Model overrides the provider's default model when non-empty.
	Model string

	// System is the behavior prompt. The adapter prepends it as exactly
	// one system message; it must not also appear in Messages.
	System string

	// Messages is the caller-supplied conversation history, oldest first.
	Messages []Message

	// Tools are the functions the model may call this turn.
	Tools []Tool

	// Temperature is the sampling temperature. Provider default if zero.
	Temperature float64

	// MaxTokens caps the generated output. Provider default if zero.
	MaxTokens int
}

// Stream is a lazy, single-pass sequence of provider deltas. It is not
// restartable: once Recv returns io.EOF or an error the stream is spent.
type Stream interface {
	// Recv blocks until the next delta arrives. It returns io.EOF when
	// the provider has finished, or another error on transport failure.
	Recv() (*Delta, error)

	// Close aborts the stream and releases the underlying connection.
	// Safe to call more than once; callers should defer it right after
	// a successful Converse.
	Close() error
}

// StreamProvider is the core interface implemented by all streaming
// chat-completion backends.
type StreamProvider interface {
	// Converse starts a streaming completion. It must fail with
	// ErrNotConfigured, before any network I/O, when the provider
	// credential is absent.
	Converse(ctx context.Context, req ConverseRequest) (Stream, error)
}

// HealthReporter is optionally implemented by providers that can report
// connection health and model availability. Detected via type assertion.
type HealthReporter interface {
	// Heartbeat checks whether the backing service is reachable.
	Heartbeat(ctx context.Context) error

	// ListModels returns the names of models available from this provider.
	ListModels(ctx context.Context) ([]string, error)
}
