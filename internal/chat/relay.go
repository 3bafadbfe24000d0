package chat

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/flowforge-ai/flowforge/pkg/llm"
)

// emitFunc delivers one event to the client. A non-nil error means the
// client is gone and relaying must stop.
type emitFunc func(v any) error

// relayResult summarizes one relayed stream for the usage ledger.
type relayResult struct {
	Text      string
	ToolCalls int
	// Err is the upstream or client-write failure, if any. Upstream
	// failures have already been reported in-band when possible.
	Err error
}

// toolCall accumulates one fragmented invocation. Providers deliver the
// ID and name on the first fragment for an index and the JSON arguments
// string spread across later fragments.
type toolCall struct {
	id   string
	name string
	args strings.Builder
}

// relay consumes a provider stream and emits normalized events: text
// fragments immediately, tool calls reassembled per fragment index in
// first-seen order and released on the finish signal.
type relay struct {
	logger   *zap.Logger
	text     strings.Builder
	order    []int
	calls    map[int]*toolCall
	emitted  int
	finished bool
}

func newRelay(logger *zap.Logger) *relay {
	return &relay{
		logger: logger,
		calls:  make(map[int]*toolCall),
	}
}

// run drains the stream until io.EOF. It emits at most one finish event;
// a mid-stream error produces an error event instead. The [DONE]
// sentinel is the caller's job so it is written exactly once on every
// path.
func (r *relay) run(stream llm.Stream, emit emitFunc) relayResult {
	for {
		delta, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			r.logger.Warn("provider stream failed", zap.Error(err))
			_ = emit(ErrorEvent{Type: eventError, Error: err.Error()})
			return r.result(err)
		}

		if delta.Content != "" {
			r.text.WriteString(delta.Content)
			if err := emit(TextEvent{Type: eventText, Content: delta.Content}); err != nil {
				return r.result(err)
			}
		}

		for _, frag := range delta.ToolCalls {
			r.absorb(frag)
		}

		if delta.FinishReason != llm.FinishNone && !r.finished {
			if err := r.finish(delta.FinishReason, emit); err != nil {
				return r.result(err)
			}
		}
	}
	return r.result(nil)
}

// absorb folds one fragment into its buffer. Argument chunks are always
// concatenated, never replaced.
func (r *relay) absorb(frag llm.ToolCallFragment) {
	call, ok := r.calls[frag.Index]
	if !ok {
		call = &toolCall{}
		r.calls[frag.Index] = call
		r.order = append(r.order, frag.Index)
	}
	if frag.ID != "" {
		call.id = frag.ID
	}
	if frag.Name != "" {
		call.name = frag.Name
	}
	call.args.WriteString(frag.ArgumentsChunk)
}

// finish releases buffered tool calls and emits the single finish event.
func (r *relay) finish(reason llm.FinishReason, emit emitFunc) error {
	r.finished = true

	if reason != llm.FinishToolCalls {
		return emit(FinishEvent{
			Type:    eventFinish,
			Content: r.content(fallbackTextContent),
		})
	}

	for _, idx := range r.order {
		call := r.calls[idx]

		args := map[string]any{}
		if raw := call.args.String(); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				// One malformed invocation never takes down the rest.
				r.logger.Warn("dropping tool call with unparseable arguments",
					zap.String("tool", call.name),
					zap.Int("index", idx),
					zap.Error(err),
				)
				continue
			}
		}

		id := call.id
		if id == "" {
			id = fmt.Sprintf("call_%d", idx)
		}
		if err := emit(ToolCallEvent{
			Type:       eventToolCall,
			ToolCallID: id,
			ToolName:   call.name,
			Args:       args,
		}); err != nil {
			return err
		}
		r.emitted++
	}

	return emit(FinishEvent{
		Type:               eventFinish,
		Content:            r.content(fallbackToolContent),
		ToolCallsCompleted: true,
	})
}

// content returns the accumulated text or the fallback.
func (r *relay) content(fallback string) string {
	if r.text.Len() > 0 {
		return r.text.String()
	}
	return fallback
}

func (r *relay) result(err error) relayResult {
	return relayResult{
		Text:      r.text.String(),
		ToolCalls: r.emitted,
		Err:       err,
	}
}
