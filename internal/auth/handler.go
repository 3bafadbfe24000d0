package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Handler provides HTTP handlers for authentication endpoints.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates an auth Handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers auth-related routes on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/register", h.handleRegister)
	mux.HandleFunc("POST /api/v1/auth/login", h.handleLogin)
	mux.HandleFunc("POST /api/v1/auth/refresh", h.handleRefresh)
	mux.HandleFunc("POST /api/v1/auth/logout", h.handleLogout)
	mux.HandleFunc("GET /api/v1/auth/me", h.handleMe)
}

// Middleware returns the claims-attaching JWT middleware.
func (h *Handler) Middleware() func(http.Handler) http.Handler {
	return Middleware(h.service.Tokens())
}

// RegisterResponse is the response for POST /auth/register.
type RegisterResponse struct {
	User   *User      `json:"user"`
	Tokens *TokenPair `json:"tokens"`
}

// handleRegister creates a new user account.
//
//	@Summary		Register
//	@Description	Create a new account and receive a JWT token pair.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		RegisterRequest	true	"Account details"
//	@Success		201		{object}	RegisterResponse
//	@Failure		400		{object}	server.Problem
//	@Failure		409		{object}	server.Problem
//	@Router			/auth/register [post]
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeAuthError(w, http.StatusBadRequest, "username, email, and password are required")
		return
	}

	user, pair, err := h.service.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			writeAuthError(w, http.StatusConflict, "username or email already exists")
			return
		}
		writeAuthError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{User: user, Tokens: pair})
}

// handleLogin authenticates a user and returns a token pair.
//
//	@Summary		Login
//	@Description	Authenticate with username and password to receive a JWT token pair.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		LoginRequest	true	"Login credentials"
//	@Success		200		{object}	TokenPair
//	@Failure		400		{object}	server.Problem
//	@Failure		401		{object}	server.Problem
//	@Failure		500		{object}	server.Problem
//	@Router			/auth/login [post]
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeAuthError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	pair, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrUserDisabled) {
			writeAuthError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		h.logger.Error("login error", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "authentication failed")
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleRefresh validates a refresh token and returns a new token pair.
//
//	@Summary		Refresh tokens
//	@Description	Exchange a valid refresh token for a new token pair (token rotation).
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	TokenPair
//	@Failure		400		{object}	server.Problem
//	@Failure		401		{object}	server.Problem
//	@Failure		500		{object}	server.Problem
//	@Router			/auth/refresh [post]
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RefreshToken == "" {
		writeAuthError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrUserDisabled) {
			writeAuthError(w, http.StatusUnauthorized, "invalid or expired refresh token")
			return
		}
		h.logger.Error("refresh error", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "token refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleLogout revokes a refresh token.
//
//	@Summary		Logout
//	@Description	Revoke a refresh token to end a session.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body	LogoutRequest	true	"Refresh token to revoke"
//	@Success		204		"No Content"
//	@Failure		400		{object}	server.Problem
//	@Failure		500		{object}	server.Problem
//	@Router			/auth/logout [post]
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RefreshToken == "" {
		writeAuthError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		h.logger.Error("logout error", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "logout failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the authenticated user's account.
//
//	@Summary		Current user
//	@Description	Returns the account of the authenticated caller.
//	@Tags			auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	User
//	@Failure		401	{object}	server.Problem
//	@Failure		500	{object}	server.Problem
//	@Router			/auth/me [get]
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := RequireUser(w, r)
	if claims == nil {
		return
	}

	user, err := h.service.GetUser(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeAuthError(w, http.StatusUnauthorized, "account no longer exists")
			return
		}
		h.logger.Error("get current user error", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "failed to load account")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeAuthError writes an RFC 7807 problem response.
func writeAuthError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://flowforge.dev/problems/auth-error",
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
