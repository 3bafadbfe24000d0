package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/flowforge-ai/flowforge/internal/auth"
	"github.com/flowforge-ai/flowforge/internal/event"
	"github.com/flowforge-ai/flowforge/internal/quota"
	"github.com/flowforge-ai/flowforge/internal/store"
	"github.com/flowforge-ai/flowforge/internal/usage"
	"github.com/flowforge-ai/flowforge/pkg/llm"
	"github.com/flowforge-ai/flowforge/pkg/llm/llmtest"
)

type chatEnv struct {
	provider *llmtest.Provider
	usage    *usage.Store
	mux      *http.ServeMux
}

func newChatEnv(t *testing.T, provider *llmtest.Provider) *chatEnv {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	us, err := usage.NewStore(context.Background(), st)
	if err != nil {
		t.Fatalf("usage store: %v", err)
	}

	logger := zap.NewNop()
	gate := quota.NewGate(us, quota.DefaultConfig(), logger)
	bus := event.NewBus(logger)

	mux := http.NewServeMux()
	NewHandler(provider, gate, us, bus, DefaultConfig(), logger).RegisterRoutes(mux)
	return &chatEnv{provider: provider, usage: us, mux: mux}
}

func postChat(env *chatEnv, body string) (*httptest.ResponseRecorder, *http.Request) {
	r := httptest.NewRequest("POST", "/api/v1/chat/diagram", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.mux.ServeHTTP(w, r)
	return w, r
}

// sseFrames splits a recorded SSE body into its data payloads.
func sseFrames(t *testing.T, body string) []string {
	t.Helper()
	var frames []string
	for _, chunk := range strings.Split(body, "\n\n") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		if !strings.HasPrefix(chunk, "data: ") {
			t.Fatalf("frame without data prefix: %q", chunk)
		}
		frames = append(frames, strings.TrimPrefix(chunk, "data: "))
	}
	return frames
}

func frameType(t *testing.T, frame string) string {
	t.Helper()
	var v struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(frame), &v); err != nil {
		t.Fatalf("unparseable frame %q: %v", frame, err)
	}
	return v.Type
}

const validBody = `{"messages":[{"role":"user","content":"draw a login flow"}]}`

func TestDiagramChat_TextStreamEndToEnd(t *testing.T) {
	env := newChatEnv(t, llmtest.NewProvider(
		llmtest.Text("Hello"),
		llmtest.Finish(llm.FinishStop),
	))

	w, r := postChat(env, validBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", cc)
	}

	frames := sseFrames(t, w.Body.String())
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want text + finish + DONE: %v", len(frames), frames)
	}
	if frameType(t, frames[0]) != "text" {
		t.Errorf("frames[0] type = %q, want text", frameType(t, frames[0]))
	}
	if frameType(t, frames[1]) != "finish" {
		t.Errorf("frames[1] type = %q, want finish", frameType(t, frames[1]))
	}
	if frames[2] != "[DONE]" {
		t.Errorf("last frame = %q, want [DONE]", frames[2])
	}

	// Exactly one ledger row, written for the guest fingerprint.
	fp := quota.Fingerprint(r)
	count, err := env.usage.CountForGuestSince(context.Background(), fp, time.Time{})
	if err != nil {
		t.Fatalf("count guest usage: %v", err)
	}
	if count != 1 {
		t.Errorf("ledger rows = %d, want exactly 1", count)
	}
}

func TestDiagramChat_ToolCallStream(t *testing.T) {
	env := newChatEnv(t, llmtest.NewProvider(
		llmtest.ToolFragment(0, "call_1", "generate_diagram", `{"diagram_code":"graph TD","mode":"replace","description":"login"}`),
		llmtest.Finish(llm.FinishToolCalls),
	))

	w, _ := postChat(env, validBody)
	frames := sseFrames(t, w.Body.String())
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want tool-call + finish + DONE: %v", len(frames), frames)
	}

	var tc ToolCallEvent
	if err := json.Unmarshal([]byte(frames[0]), &tc); err != nil {
		t.Fatalf("unmarshal tool-call frame: %v", err)
	}
	if tc.Type != "tool-call" || tc.ToolCallID != "call_1" || tc.ToolName != "generate_diagram" {
		t.Errorf("tool-call frame = %+v", tc)
	}
	if tc.Args["mode"] != "replace" {
		t.Errorf("args = %#v, want parsed arguments", tc.Args)
	}

	var fin FinishEvent
	if err := json.Unmarshal([]byte(frames[1]), &fin); err != nil {
		t.Fatalf("unmarshal finish frame: %v", err)
	}
	if !fin.ToolCallsCompleted {
		t.Error("toolCallsCompleted = false, want true")
	}

	// Declared tools went out with the conversation.
	if got := len(env.provider.LastRequest.Tools); got != 2 {
		t.Errorf("declared %d tools, want 2", got)
	}
	if env.provider.LastRequest.System == "" {
		t.Error("no system prompt sent")
	}
}

func TestDiagramChat_MalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "not json at all"},
		{"missing messages", `{}`},
		{"empty messages", `{"messages":[]}`},
		{"messages not array", `{"messages":"hi"}`},
		{"bad role", `{"messages":[{"role":"tool","content":"x"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newChatEnv(t, llmtest.NewProvider())

			w, r := postChat(env, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
			}
			if env.provider.Calls != 0 {
				t.Errorf("provider called %d times for rejected body", env.provider.Calls)
			}

			fp := quota.Fingerprint(r)
			count, err := env.usage.CountForGuestSince(context.Background(), fp, time.Time{})
			if err != nil {
				t.Fatalf("count guest usage: %v", err)
			}
			if count != 0 {
				t.Errorf("ledger rows = %d, want 0 for rejected body", count)
			}
		})
	}
}

func TestDiagramChat_GuestQuotaExceeded(t *testing.T) {
	env := newChatEnv(t, llmtest.NewProvider(llmtest.Finish(llm.FinishStop)))

	// Burn the single guest allowance for this fingerprint.
	first, _ := postChat(env, validBody)
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", first.Code)
	}

	w, r := postChat(env, validBody)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429: %s", w.Code, w.Body.String())
	}

	var problem struct {
		Limit     int        `json:"limit"`
		Remaining int        `json:"remaining"`
		LastUsed  *time.Time `json:"lastUsed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &problem); err != nil {
		t.Fatalf("unmarshal 429 body: %v", err)
	}
	if problem.Limit != 1 || problem.Remaining != 0 {
		t.Errorf("quota body = %+v, want limit 1 remaining 0", problem)
	}
	if problem.LastUsed == nil {
		t.Error("lastUsed missing from guest rejection")
	}

	if env.provider.Calls != 1 {
		t.Errorf("provider calls = %d, want 1 (rejection must not reach provider)", env.provider.Calls)
	}
	fp := quota.Fingerprint(r)
	count, _ := env.usage.CountForGuestSince(context.Background(), fp, time.Time{})
	if count != 1 {
		t.Errorf("ledger rows = %d, want 1 (rejection must not write)", count)
	}
}

func TestDiagramChat_ProviderNotConfigured(t *testing.T) {
	p := llmtest.NewProvider()
	p.ConverseErr = llm.ErrNotConfigured
	env := newChatEnv(t, p)

	w, r := postChat(env, validBody)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503: %s", w.Code, w.Body.String())
	}

	fp := quota.Fingerprint(r)
	count, _ := env.usage.CountForGuestSince(context.Background(), fp, time.Time{})
	if count != 0 {
		t.Errorf("ledger rows = %d, want 0 when provider is unconfigured", count)
	}
}

func TestDiagramChat_MidStreamErrorRecordsFailure(t *testing.T) {
	p := llmtest.NewProvider(llmtest.Text("partial"))
	p.StreamErr = errors.New("connection reset")
	env := newChatEnv(t, p)

	// Authenticated caller so the ledger row is queryable via stats.
	r := httptest.NewRequest("POST", "/api/v1/chat/diagram", strings.NewReader(validBody))
	r = r.WithContext(auth.ContextWithClaims(r.Context(), &auth.Claims{UserID: "user-1"}))
	w := httptest.NewRecorder()
	env.mux.ServeHTTP(w, r)

	frames := sseFrames(t, w.Body.String())
	if frames[len(frames)-1] != "[DONE]" {
		t.Errorf("last frame = %q, want [DONE] even after an error", frames[len(frames)-1])
	}
	if frameType(t, frames[len(frames)-2]) != "error" {
		t.Errorf("penultimate frame type = %q, want error", frameType(t, frames[len(frames)-2]))
	}

	stats, err := env.usage.StatsForUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalUsage != 1 || stats.SuccessfulUsage != 0 {
		t.Errorf("stats = %+v, want one unsuccessful row", stats)
	}
}

func TestDiagramChat_RegisteredDailyLimit(t *testing.T) {
	env := newChatEnv(t, llmtest.NewProvider(llmtest.Finish(llm.FinishStop)))

	do := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest("POST", "/api/v1/chat/diagram", strings.NewReader(validBody))
		r = r.WithContext(auth.ContextWithClaims(r.Context(), &auth.Claims{UserID: "user-1"}))
		w := httptest.NewRecorder()
		env.mux.ServeHTTP(w, r)
		return w
	}

	for i := 0; i < 5; i++ {
		if w := do(); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, w.Code)
		}
	}
	if w := do(); w.Code != http.StatusTooManyRequests {
		t.Fatalf("sixth request status = %d, want 429", w.Code)
	}
}
