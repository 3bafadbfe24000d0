// Package llmtest provides a scripted in-memory StreamProvider for tests,
// plus shared contract tests any real provider adapter should pass.
package llmtest

import (
	"context"
	"io"
	"sync"

	"github.com/flowforge-ai/flowforge/pkg/llm"
)

// Compile-time interface guard.
var _ llm.StreamProvider = (*Provider)(nil)

// Provider is a scripted llm.StreamProvider. Each Converse call returns a
// stream that replays Deltas in order, then ends with StreamErr (or io.EOF
// when StreamErr is nil). Zero value is usable and streams nothing.
type Provider struct {
	mu sync.Mutex

	// Deltas are replayed in order by every stream.
	Deltas []llm.Delta

	// StreamErr, when non-nil, is returned by Recv after the last delta
	// instead of io.EOF. Simulates a mid-stream transport failure.
	StreamErr error

	// ConverseErr, when non-nil, is returned by Converse before any
	// stream is created.
	ConverseErr error

	// LastRequest records the most recent Converse request.
	LastRequest llm.ConverseRequest

	// Calls counts Converse invocations, including failed ones.
	Calls int
}

// NewProvider creates a provider that replays the given deltas.
func NewProvider(deltas ...llm.Delta) *Provider {
	return &Provider{Deltas: deltas}
}

// Converse records the request and returns a replay stream.
func (p *Provider) Converse(ctx context.Context, req llm.ConverseRequest) (llm.Stream, error) {
	p.mu.Lock()
	p.Calls++
	p.LastRequest = req
	p.mu.Unlock()

	if p.ConverseErr != nil {
		return nil, p.ConverseErr
	}
	if len(req.Messages) == 0 {
		return nil, llm.NewProviderError(llm.ErrCodeInvalidRequest, "messages must not be empty", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, llm.NewProviderError(llm.ErrCodeTimeout, "request cancelled", err)
	}

	deltas := make([]llm.Delta, len(p.Deltas))
	copy(deltas, p.Deltas)
	return &Stream{deltas: deltas, finalErr: p.StreamErr, ctx: ctx}, nil
}

// Stream replays scripted deltas. Not safe for concurrent use, matching
// the single-consumer contract of llm.Stream.
type Stream struct {
	ctx      context.Context
	deltas   []llm.Delta
	finalErr error
	pos      int
	closed   bool
}

// Recv returns the next scripted delta, then io.EOF (or the scripted
// terminal error). A closed or spent stream keeps returning its terminal
// condition.
func (s *Stream) Recv() (*llm.Delta, error) {
	if s.closed {
		return nil, io.EOF
	}
	if err := s.ctx.Err(); err != nil {
		return nil, llm.NewProviderError(llm.ErrCodeTimeout, "stream cancelled", err)
	}
	if s.pos >= len(s.deltas) {
		if s.finalErr != nil {
			return nil, s.finalErr
		}
		return nil, io.EOF
	}
	d := s.deltas[s.pos]
	s.pos++
	return &d, nil
}

// Close marks the stream spent. Idempotent.
func (s *Stream) Close() error {
	s.closed = true
	return nil
}

// Text builds a content-only delta.
func Text(content string) llm.Delta {
	return llm.Delta{Content: content}
}

// ToolFragment builds a delta carrying a single tool-call fragment.
func ToolFragment(index int, id, name, argsChunk string) llm.Delta {
	return llm.Delta{ToolCalls: []llm.ToolCallFragment{{
		Index:          index,
		ID:             id,
		Name:           name,
		ArgumentsChunk: argsChunk,
	}}}
}

// Finish builds a terminal delta with the given finish reason.
func Finish(reason llm.FinishReason) llm.Delta {
	return llm.Delta{FinishReason: reason}
}
