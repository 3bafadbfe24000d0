package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/flowforge-ai/flowforge/pkg/llm"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.openai.com"

// Compile-time interface guards.
var (
	_ llm.StreamProvider = (*Provider)(nil)
	_ llm.HealthReporter = (*Provider)(nil)
)

// Provider implements llm.StreamProvider against the OpenAI chat
// completions API with stream mode enabled.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	cfg        Config
	logger     *zap.Logger
}

// New creates an OpenAI provider. An empty API key is allowed here;
// Converse reports llm.ErrNotConfigured so the service can start without
// a credential and answer 503 on chat routes.
func New(cfg Config, apiKey string, logger *zap.Logger) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
	}
}

// Converse starts a streaming chat completion.
func (p *Provider) Converse(ctx context.Context, req llm.ConverseRequest) (llm.Stream, error) {
	if p.apiKey == "" {
		return nil, llm.ErrNotConfigured
	}
	if len(req.Messages) == 0 {
		return nil, llm.NewProviderError(llm.ErrCodeInvalidRequest, "messages must not be empty", nil)
	}

	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.cfg.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.cfg.MaxTokens
	}

	apiMessages := make([]chatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		apiMessages = append(apiMessages, chatMessage{Role: llm.RoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		apiMessages = append(apiMessages, chatMessage{Role: m.Role, Content: m.Content})
	}

	var apiTools []chatTool
	for _, t := range req.Tools {
		apiTools = append(apiTools, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    apiMessages,
		Tools:       apiTools,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	respBody, err := p.doPost(ctx, "/v1/chat/completions", body)
	if err != nil {
		return nil, mapError(err)
	}

	p.logger.Debug("openai stream opened", zap.String("model", model), zap.Int("tools", len(apiTools)))

	scanner := bufio.NewScanner(respBody)
	// Tool argument chunks can push single SSE lines well past the
	// default 64KB scanner limit.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &stream{body: respBody, scanner: scanner, logger: p.logger}, nil
}

// stream parses the OpenAI SSE wire format into llm.Delta values.
// Single-consumer, not safe for concurrent Recv calls.
type stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	logger  *zap.Logger
	done    bool
}

// Recv reads SSE lines until the next data payload and converts it.
// Returns io.EOF after the [DONE] sentinel or when the body ends.
func (s *stream) Recv() (*llm.Delta, error) {
	if s.done {
		return nil, io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			s.done = true
			return nil, io.EOF
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			s.logger.Debug("skipping unparseable stream chunk", zap.Error(err))
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		delta := &llm.Delta{Content: choice.Delta.Content}
		for _, tc := range choice.Delta.ToolCalls {
			delta.ToolCalls = append(delta.ToolCalls, llm.ToolCallFragment{
				Index:          tc.Index,
				ID:             tc.ID,
				Name:           tc.Function.Name,
				ArgumentsChunk: tc.Function.Arguments,
			})
		}
		switch choice.FinishReason {
		case "stop":
			delta.FinishReason = llm.FinishStop
		case "tool_calls":
			delta.FinishReason = llm.FinishToolCalls
		}
		return delta, nil
	}

	s.done = true
	if err := s.scanner.Err(); err != nil {
		return nil, mapError(err)
	}
	return nil, io.EOF
}

// Close aborts the stream. Idempotent; a second call is a no-op.
func (s *stream) Close() error {
	if s.done && s.body == nil {
		return nil
	}
	s.done = true
	body := s.body
	s.body = nil
	if body == nil {
		return nil
	}
	return body.Close()
}

// Heartbeat checks whether the OpenAI API is reachable.
func (p *Provider) Heartbeat(ctx context.Context) error {
	if p.apiKey == "" {
		return llm.ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/models", http.NoBody)
	if err != nil {
		return mapError(err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return mapError(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return mapError(&openaiStatusError{StatusCode: resp.StatusCode, Message: "heartbeat failed"})
	}
	return nil
}

// ListModels returns the available model IDs.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	if p.apiKey == "" {
		return nil, llm.ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/models", http.NoBody)
	if err != nil {
		return nil, mapError(err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, mapError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, mapError(parseStatusError(resp))
	}

	var result listResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}

	names := make([]string, len(result.Data))
	for i := range result.Data {
		names[i] = result.Data[i].ID
	}
	return names, nil
}

// doPost sends an authenticated POST request and returns the response body.
func (p *Provider) doPost(ctx context.Context, path string, body []byte) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, parseStatusError(resp)
	}

	return resp.Body, nil
}

// parseStatusError reads an error response body.
func parseStatusError(resp *http.Response) *openaiStatusError {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}

	// Read a limited amount to avoid unbounded reads.
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	if err := json.Unmarshal(raw, &errResp); err != nil {
		return &openaiStatusError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	msg := errResp.Error.Message
	if msg == "" {
		msg = resp.Status
	}
	return &openaiStatusError{
		StatusCode: resp.StatusCode,
		Type:       errResp.Error.Type,
		Message:    msg,
	}
}

// --- OpenAI REST API types (internal) ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  llm.ToolParameters `json:"parameters"`
}

type streamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type listResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}
