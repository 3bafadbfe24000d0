package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/flowforge-ai/flowforge/internal/event"
	"github.com/flowforge-ai/flowforge/internal/quota"
	"github.com/flowforge-ai/flowforge/internal/server"
	"github.com/flowforge-ai/flowforge/internal/usage"
	"github.com/flowforge-ai/flowforge/pkg/llm"
)

// Prometheus chat metrics.
var (
	chatStreamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_streams_total",
			Help: "Total number of relayed chat streams.",
		},
		[]string{"principal", "outcome"},
	)
	chatStreamDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_stream_duration_seconds",
			Help:    "Wall time of relayed chat streams in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)
)

func init() {
	prometheus.MustRegister(chatStreamsTotal)
	prometheus.MustRegister(chatStreamDuration)
}

const usageTypeDiagramChat = "diagram_chat"

// Handler serves the streaming diagram chat endpoint.
type Handler struct {
	provider llm.StreamProvider
	gate     *quota.Gate
	usage    *usage.Store
	bus      *event.Bus
	cfg      Config
	logger   *zap.Logger
}

// Compile-time check that Handler implements the server interface.
var _ interface {
	RegisterRoutes(mux *http.ServeMux)
} = (*Handler)(nil)

// NewHandler creates a chat Handler.
func NewHandler(provider llm.StreamProvider, gate *quota.Gate, us *usage.Store, bus *event.Bus, cfg Config, logger *zap.Logger) *Handler {
	return &Handler{
		provider: provider,
		gate:     gate,
		usage:    us,
		bus:      bus,
		cfg:      cfg,
		logger:   logger,
	}
}

// RegisterRoutes registers chat routes on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/chat/diagram", h.handleDiagramChat)
}

// ChatRequest is the request body for the diagram chat endpoint.
type ChatRequest struct {
	Messages []llm.Message `json:"messages"`
	Model    string        `json:"model,omitempty"`
}

// handleDiagramChat relays one chat conversation as a server-sent event
// stream. Guests are admitted under the guest quota; invalid bearer
// tokens demote to guest rather than rejecting.
//
//	@Summary		Diagram chat
//	@Description	Streams an AI diagram conversation as server-sent events.
//	@Tags			chat
//	@Accept			json
//	@Produce		text/event-stream
//	@Param			request	body	ChatRequest	true	"Conversation history"
//	@Success		200	{string}	string	"SSE stream"
//	@Failure		400	{object}	server.Problem
//	@Failure		429	{object}	server.QuotaProblem
//	@Failure		503	{object}	server.Problem
//	@Router			/chat/diagram [post]
func (h *Handler) handleDiagramChat(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeRequest(r)
	if err != nil {
		server.BadRequest(w, err.Error(), r.URL.Path)
		return
	}

	principal := h.gate.Resolve(r)
	decision, err := h.gate.Admit(r.Context(), principal)
	if err != nil {
		h.logger.Error("quota admission failed", zap.Error(err))
		server.InternalError(w, "failed to check usage quota", r.URL.Path)
		return
	}
	if !decision.Allowed {
		detail := fmt.Sprintf("AI usage limit reached: %d of %d requests remaining", decision.Remaining, decision.Limit)
		if principal.Kind == quota.KindGuest {
			detail = "guest users can only use AI once per month, sign up for more requests"
		}
		server.QuotaExceeded(w, detail, r.URL.Path, decision.Limit, decision.Remaining, decision.LastUsed)
		return
	}

	stream, err := h.provider.Converse(r.Context(), llm.ConverseRequest{
		Model:    req.Model,
		System:   systemPrompt,
		Messages: req.Messages,
		Tools:    Tools(),
	})
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			server.ServiceUnavailable(w, "AI provider is not configured", r.URL.Path)
			return
		}
		h.logger.Error("provider converse failed", zap.Error(err))
		server.InternalError(w, "failed to start AI conversation", r.URL.Path)
		return
	}
	defer stream.Close()

	sw, err := newSSEWriter(w)
	if err != nil {
		h.logger.Error("sse writer unavailable", zap.Error(err))
		server.InternalError(w, "streaming is not supported", r.URL.Path)
		return
	}

	start := time.Now()
	res := newRelay(h.logger).run(stream, sw.WriteEvent)
	if err := sw.WriteDone(); err != nil && res.Err == nil {
		res.Err = err
	}
	chatStreamDuration.Observe(time.Since(start).Seconds())

	// The ledger write must survive a cancelled request context; a
	// disconnected client still consumed quota.
	h.record(context.WithoutCancel(r.Context()), principal, req, res)
}

// decodeRequest parses and validates the request body. A rejected body
// never reaches the provider or the ledger.
func (h *Handler) decodeRequest(r *http.Request) (*ChatRequest, error) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.New("request body must be valid JSON")
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("messages must be a non-empty array")
	}
	if len(req.Messages) > h.cfg.MaxMessages {
		return nil, fmt.Errorf("too many messages: limit is %d", h.cfg.MaxMessages)
	}
	for i, m := range req.Messages {
		switch m.Role {
		case llm.RoleUser, llm.RoleAssistant, llm.RoleSystem:
		default:
			return nil, fmt.Errorf("messages[%d] has invalid role %q", i, m.Role)
		}
		if len(m.Content) > h.cfg.MaxMessageBytes {
			return nil, fmt.Errorf("messages[%d] exceeds the %d byte limit", i, h.cfg.MaxMessageBytes)
		}
	}
	return &req, nil
}

// record writes the single ledger row for an admitted request and
// publishes the completion event. Ledger failures are logged, not
// surfaced; the stream has already been delivered.
func (h *Handler) record(ctx context.Context, principal quota.Principal, req *ChatRequest, res relayResult) {
	success := res.Err == nil
	outcome := "success"
	if !success {
		outcome = "error"
	}
	chatStreamsTotal.WithLabelValues(principal.Kind, outcome).Inc()

	rec := usage.Record{
		PrincipalID:   principal.ID(),
		PrincipalKind: principal.Kind,
		UsageType:     usageTypeDiagramChat,
		Model:         req.Model,
		Success:       success,
		Metadata: map[string]any{
			"messageCount": len(req.Messages),
			"toolCalls":    res.ToolCalls,
		},
	}
	if err := h.usage.Record(ctx, rec); err != nil {
		h.logger.Error("usage record failed",
			zap.Error(err),
			zap.String("principal_kind", principal.Kind),
		)
	}

	h.bus.PublishAsync(ctx, event.New(TopicCompleted, "chat", CompletedEvent{
		PrincipalID:   principal.ID(),
		PrincipalKind: principal.Kind,
		Model:         req.Model,
		Success:       success,
		Messages:      len(req.Messages),
		ToolCalls:     res.ToolCalls,
	}))
}
