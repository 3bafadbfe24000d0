package usage

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/flowforge-ai/flowforge/internal/auth"
	"github.com/flowforge-ai/flowforge/internal/server"
	"go.uber.org/zap"
)

// LimitsFunc reports the current quota state for a registered user.
// Wired from the quota gate at composition time.
type LimitsFunc func(ctx context.Context, userID string) (Limits, error)

// Handler serves the usage stats endpoint.
type Handler struct {
	store  *Store
	limits LimitsFunc
	logger *zap.Logger
}

// Compile-time check that Handler implements the server interface.
var _ interface {
	RegisterRoutes(mux *http.ServeMux)
} = (*Handler)(nil)

// NewHandler creates a usage Handler.
func NewHandler(store *Store, limits LimitsFunc, logger *zap.Logger) *Handler {
	return &Handler{store: store, limits: limits, logger: logger}
}

// RegisterRoutes registers usage routes on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/usage", h.handleGetUsage)
}

// UsageResponse is the response for GET /usage.
type UsageResponse struct {
	Stats  *Stats `json:"stats"`
	Limits Limits `json:"limits"`
}

// handleGetUsage returns the caller's usage history and quota state.
//
//	@Summary		Usage stats
//	@Description	Returns the authenticated user's AI usage history and remaining quota.
//	@Tags			usage
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	UsageResponse
//	@Failure		401	{object}	server.Problem
//	@Failure		500	{object}	server.Problem
//	@Router			/usage [get]
func (h *Handler) handleGetUsage(w http.ResponseWriter, r *http.Request) {
	claims := auth.RequireUser(w, r)
	if claims == nil {
		return
	}

	stats, err := h.store.StatsForUser(r.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("usage stats query failed", zap.Error(err), zap.String("user_id", claims.UserID))
		server.InternalError(w, "failed to load usage stats", r.URL.Path)
		return
	}

	limits, err := h.limits(r.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("usage limits query failed", zap.Error(err), zap.String("user_id", claims.UserID))
		server.InternalError(w, "failed to load usage limits", r.URL.Path)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(UsageResponse{Stats: stats, Limits: limits})
}
