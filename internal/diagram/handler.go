package diagram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/flowforge-ai/flowforge/internal/auth"
	"github.com/flowforge-ai/flowforge/internal/event"
	"github.com/flowforge-ai/flowforge/internal/server"
)

// Handler serves diagram CRUD routes. Every route requires auth.
type Handler struct {
	store  *Store
	bus    *event.Bus
	logger *zap.Logger
}

// Compile-time check that Handler implements the server interface.
var _ interface {
	RegisterRoutes(mux *http.ServeMux)
} = (*Handler)(nil)

// NewHandler creates a diagram Handler.
func NewHandler(store *Store, bus *event.Bus, logger *zap.Logger) *Handler {
	return &Handler{store: store, bus: bus, logger: logger}
}

// RegisterRoutes registers diagram routes on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/diagrams", h.handleCreate)
	mux.HandleFunc("GET /api/v1/diagrams", h.handleList)
	mux.HandleFunc("GET /api/v1/diagrams/{id}", h.handleGet)
	mux.HandleFunc("PUT /api/v1/diagrams/{id}", h.handleUpdate)
	mux.HandleFunc("DELETE /api/v1/diagrams/{id}", h.handleDelete)
}

// CreateRequest is the request body for creating a diagram. An absent
// content pre-creates an untitled diagram with a blank canvas.
type CreateRequest struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Thumbnail string `json:"thumbnail"`
}

// CreateResponse is the response body for a created diagram.
type CreateResponse struct {
	ID         string `json:"id"`
	PreCreated bool   `json:"preCreated,omitempty"`
}

// ListResponse is the response body for the diagram list.
type ListResponse struct {
	Diagrams []Diagram `json:"diagrams"`
}

// handleCreate creates a diagram.
//
//	@Summary		Create diagram
//	@Description	Creates a diagram; an empty content pre-creates a blank canvas.
//	@Tags			diagrams
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body	CreateRequest	true	"Diagram"
//	@Success		201	{object}	CreateResponse
//	@Failure		400	{object}	server.Problem
//	@Failure		401	{object}	server.Problem
//	@Router			/diagrams [post]
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	claims := auth.RequireUser(w, r)
	if claims == nil {
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "request body must be valid JSON", r.URL.Path)
		return
	}

	preCreated := req.Content == ""
	d := &Diagram{
		OwnerID:   claims.UserID,
		Title:     req.Title,
		Content:   req.Content,
		Thumbnail: req.Thumbnail,
	}
	if d.Title == "" {
		d.Title = defaultTitle
	}
	if preCreated {
		d.Content = blankCanvas
	}

	if err := h.store.Create(r.Context(), d); err != nil {
		h.logger.Error("diagram create failed", zap.Error(err))
		server.InternalError(w, "failed to create diagram", r.URL.Path)
		return
	}

	h.publish(r.Context(), d, "created")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(CreateResponse{ID: d.ID, PreCreated: preCreated})
}

// handleList returns the caller's diagrams, most recently updated first.
//
//	@Summary		List diagrams
//	@Tags			diagrams
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	ListResponse
//	@Failure		401	{object}	server.Problem
//	@Router			/diagrams [get]
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	claims := auth.RequireUser(w, r)
	if claims == nil {
		return
	}

	diagrams, err := h.store.List(r.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("diagram list failed", zap.Error(err))
		server.InternalError(w, "failed to list diagrams", r.URL.Path)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ListResponse{Diagrams: diagrams})
}

// handleGet returns one diagram.
//
//	@Summary		Get diagram
//	@Tags			diagrams
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Diagram ID"
//	@Success		200	{object}	Diagram
//	@Failure		401	{object}	server.Problem
//	@Failure		404	{object}	server.Problem
//	@Router			/diagrams/{id} [get]
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	claims := auth.RequireUser(w, r)
	if claims == nil {
		return
	}

	d, err := h.store.Get(r.Context(), claims.UserID, r.PathValue("id"))
	if errors.Is(err, ErrNotFound) {
		server.NotFound(w, "diagram not found", r.URL.Path)
		return
	}
	if err != nil {
		h.logger.Error("diagram get failed", zap.Error(err))
		server.InternalError(w, "failed to load diagram", r.URL.Path)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(d)
}

// handleUpdate rewrites a diagram.
//
//	@Summary		Update diagram
//	@Tags			diagrams
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path	string			true	"Diagram ID"
//	@Param			request	body	CreateRequest	true	"New diagram state"
//	@Success		200	{object}	Diagram
//	@Failure		400	{object}	server.Problem
//	@Failure		401	{object}	server.Problem
//	@Failure		404	{object}	server.Problem
//	@Router			/diagrams/{id} [put]
func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	claims := auth.RequireUser(w, r)
	if claims == nil {
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "request body must be valid JSON", r.URL.Path)
		return
	}
	if req.Content == "" {
		server.BadRequest(w, "content is required", r.URL.Path)
		return
	}

	d, err := h.store.Get(r.Context(), claims.UserID, r.PathValue("id"))
	if errors.Is(err, ErrNotFound) {
		server.NotFound(w, "diagram not found", r.URL.Path)
		return
	}
	if err != nil {
		h.logger.Error("diagram load failed", zap.Error(err))
		server.InternalError(w, "failed to load diagram", r.URL.Path)
		return
	}

	d.Content = req.Content
	if req.Title != "" {
		d.Title = req.Title
	}
	if req.Thumbnail != "" {
		d.Thumbnail = req.Thumbnail
	}

	if err := h.store.Update(r.Context(), d); err != nil {
		if errors.Is(err, ErrNotFound) {
			server.NotFound(w, "diagram not found", r.URL.Path)
			return
		}
		h.logger.Error("diagram update failed", zap.Error(err))
		server.InternalError(w, "failed to update diagram", r.URL.Path)
		return
	}

	h.publish(r.Context(), d, "updated")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(d)
}

// handleDelete removes a diagram.
//
//	@Summary		Delete diagram
//	@Tags			diagrams
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Diagram ID"
//	@Success		204	{string}	string	"deleted"
//	@Failure		401	{object}	server.Problem
//	@Failure		404	{object}	server.Problem
//	@Router			/diagrams/{id} [delete]
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	claims := auth.RequireUser(w, r)
	if claims == nil {
		return
	}

	id := r.PathValue("id")
	d, err := h.store.Get(r.Context(), claims.UserID, id)
	if errors.Is(err, ErrNotFound) {
		server.NotFound(w, "diagram not found", r.URL.Path)
		return
	}
	if err != nil {
		h.logger.Error("diagram load failed", zap.Error(err))
		server.InternalError(w, "failed to load diagram", r.URL.Path)
		return
	}

	if err := h.store.Delete(r.Context(), claims.UserID, id); err != nil && !errors.Is(err, ErrNotFound) {
		h.logger.Error("diagram delete failed", zap.Error(err))
		server.InternalError(w, "failed to delete diagram", r.URL.Path)
		return
	}

	h.publish(r.Context(), d, "deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) publish(ctx context.Context, d *Diagram, action string) {
	h.bus.PublishAsync(ctx, event.New(TopicSaved, "diagram", SavedEvent{
		DiagramID: d.ID,
		OwnerID:   d.OwnerID,
		Title:     d.Title,
		Action:    action,
	}))
}
