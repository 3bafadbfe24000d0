package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/flowforge-ai/flowforge/pkg/llm"
	"github.com/flowforge-ai/flowforge/pkg/llm/llmtest"
	"go.uber.org/zap"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	return New(cfg, "test-key", zap.NewNop())
}

// sseHandler writes the given data payloads in OpenAI SSE framing.
func sseHandler(payloads ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, p := range payloads {
			io.WriteString(w, "data: "+p+"\n\n")
		}
		io.WriteString(w, "data: [DONE]\n\n")
	}
}

func drain(t *testing.T, s llm.Stream) []llm.Delta {
	t.Helper()
	var out []llm.Delta
	for {
		d, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		out = append(out, *d)
	}
}

func TestConverse_ParsesTextDeltas(t *testing.T) {
	p := newTestProvider(t, sseHandler(
		`{"choices":[{"delta":{"content":"Hello"}}]}`,
		`{"choices":[{"delta":{"content":" world"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	))

	stream, err := p.Converse(context.Background(), llm.ConverseRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Converse() error = %v", err)
	}
	defer stream.Close()

	deltas := drain(t, stream)
	if len(deltas) != 3 {
		t.Fatalf("got %d deltas, want 3", len(deltas))
	}
	if deltas[0].Content != "Hello" || deltas[1].Content != " world" {
		t.Errorf("content deltas = %q, %q", deltas[0].Content, deltas[1].Content)
	}
	if deltas[2].FinishReason != llm.FinishStop {
		t.Errorf("finish reason = %q, want %q", deltas[2].FinishReason, llm.FinishStop)
	}
}

func TestConverse_ParsesToolCallFragments(t *testing.T) {
	p := newTestProvider(t, sseHandler(
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"generate_diagram","arguments":""}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"diagram"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"_code\":\"graph TD\"}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	))

	stream, err := p.Converse(context.Background(), llm.ConverseRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "draw"}},
	})
	if err != nil {
		t.Fatalf("Converse() error = %v", err)
	}
	defer stream.Close()

	deltas := drain(t, stream)
	if len(deltas) != 4 {
		t.Fatalf("got %d deltas, want 4", len(deltas))
	}

	first := deltas[0].ToolCalls
	if len(first) != 1 || first[0].ID != "call_1" || first[0].Name != "generate_diagram" {
		t.Errorf("first fragment = %+v", first)
	}
	if deltas[1].ToolCalls[0].ArgumentsChunk != `{"diagram` {
		t.Errorf("second chunk = %q", deltas[1].ToolCalls[0].ArgumentsChunk)
	}
	if deltas[3].FinishReason != llm.FinishToolCalls {
		t.Errorf("finish reason = %q, want %q", deltas[3].FinishReason, llm.FinishToolCalls)
	}
}

func TestConverse_SkipsUnparseableChunks(t *testing.T) {
	p := newTestProvider(t, sseHandler(
		`not json`,
		`{"choices":[{"delta":{"content":"ok"}}]}`,
	))

	stream, err := p.Converse(context.Background(), llm.ConverseRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Converse() error = %v", err)
	}
	defer stream.Close()

	deltas := drain(t, stream)
	if len(deltas) != 1 || deltas[0].Content != "ok" {
		t.Fatalf("deltas = %+v, want single ok delta", deltas)
	}
}

func TestConverse_MissingAPIKey(t *testing.T) {
	p := New(DefaultConfig(), "", zap.NewNop())
	_, err := p.Converse(context.Background(), llm.ConverseRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if !errors.Is(err, llm.ErrNotConfigured) {
		t.Fatalf("Converse() error = %v, want ErrNotConfigured", err)
	}
}

func TestConverse_MapsHTTPErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		check   func(error) bool
		checkID string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, llm.IsAuthenticationError, "authentication"},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, llm.IsRateLimitError, "rate limit"},
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom"}}`, llm.IsServerError, "server"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			_, err := p.Converse(context.Background(), llm.ConverseRequest{
				Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
			})
			if err == nil {
				t.Fatal("Converse() expected error")
			}
			if !tt.check(err) {
				t.Errorf("error %v not classified as %s error", err, tt.checkID)
			}
		})
	}
}

func TestConverse_PrependsSystemMessage(t *testing.T) {
	var gotBody []byte
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		sseHandler(`{"choices":[{"delta":{},"finish_reason":"stop"}]}`)(w, r)
	})

	stream, err := p.Converse(context.Background(), llm.ConverseRequest{
		System:   "You draw diagrams.",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Converse() error = %v", err)
	}
	stream.Close()

	body := string(gotBody)
	sysIdx := strings.Index(body, `"role":"system"`)
	userIdx := strings.Index(body, `"role":"user"`)
	if sysIdx < 0 || userIdx < 0 || sysIdx > userIdx {
		t.Errorf("system message not prepended, body = %s", body)
	}
	if !strings.Contains(body, `"stream":true`) {
		t.Errorf("stream flag not set, body = %s", body)
	}
}

func TestContract(t *testing.T) {
	llmtest.TestStreamProviderContract(t, func() llm.StreamProvider {
		return newTestProvider(t, sseHandler(
			`{"choices":[{"delta":{"content":"hi"}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		))
	})
}
