package ws

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/flowforge-ai/flowforge/internal/auth"
	"github.com/flowforge-ai/flowforge/internal/chat"
	"github.com/flowforge-ai/flowforge/internal/diagram"
	"github.com/flowforge-ai/flowforge/internal/event"
	"github.com/flowforge-ai/flowforge/internal/quota"
)

// Handler provides the WebSocket endpoint for real-time event push.
type Handler struct {
	hub    *Hub
	tokens *auth.TokenService
	bus    *event.Bus
	logger *zap.Logger
}

// Compile-time check that Handler implements the server interface.
var _ interface {
	RegisterRoutes(mux *http.ServeMux)
} = (*Handler)(nil)

// NewHandler creates a WebSocket handler and subscribes to module events.
func NewHandler(tokens *auth.TokenService, bus *event.Bus, logger *zap.Logger) *Handler {
	h := &Handler{
		hub:    NewHub(logger),
		tokens: tokens,
		bus:    bus,
		logger: logger,
	}
	h.subscribeToEvents()
	return h
}

// RegisterRoutes registers WebSocket routes on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/ws/events", h.handleEventStream)
}

// handleEventStream upgrades the connection and pushes the caller's own
// usage and diagram events until they disconnect.
func (h *Handler) handleEventStream(w http.ResponseWriter, r *http.Request) {
	// Validate JWT from query parameter (browser WS API doesn't support headers).
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token parameter", http.StatusUnauthorized)
		return
	}

	claims, err := h.tokens.ValidateAccessToken(token)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	// Accept WebSocket upgrade.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Allow any origin since we validate via JWT token.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:   conn,
		userID: claims.UserID,
		send:   make(chan Message, 256),
		logger: h.logger,
	}

	h.hub.Register(client)

	// Run read and write pumps. When either exits, clean up.
	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	// readPump blocks until client disconnects.
	client.readPump(ctx)

	// Client disconnected -- stop write pump and unregister.
	h.hub.Unregister(client)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}

// subscribeToEvents forwards chat and diagram bus events to the owning
// user's connections. Guest chat events have no user to deliver to and
// are dropped here.
func (h *Handler) subscribeToEvents() {
	if h.bus == nil {
		return
	}

	h.bus.Subscribe(chat.TopicCompleted, func(_ context.Context, ev event.Event) {
		completed, ok := ev.Payload.(chat.CompletedEvent)
		if !ok || completed.PrincipalKind != quota.KindRegistered {
			return
		}
		h.hub.SendToUser(completed.PrincipalID, Message{
			Type:      MessageChatCompleted,
			Timestamp: ev.Timestamp,
			Data: ChatCompletedData{
				Model:     completed.Model,
				Success:   completed.Success,
				ToolCalls: completed.ToolCalls,
			},
		})
	})

	h.bus.Subscribe(diagram.TopicSaved, func(_ context.Context, ev event.Event) {
		saved, ok := ev.Payload.(diagram.SavedEvent)
		if !ok {
			return
		}
		h.hub.SendToUser(saved.OwnerID, Message{
			Type:      MessageDiagramSaved,
			Timestamp: ev.Timestamp,
			Data: DiagramSavedData{
				DiagramID: saved.DiagramID,
				Title:     saved.Title,
				Action:    saved.Action,
			},
		})
	})

	h.logger.Info("subscribed to chat and diagram events for WebSocket push")
}
