package auth

import (
	"context"
	"net/http"
	"strings"
)

// authUserKey is a context key for the authenticated user.
type authUserKey struct{}

// UserFromContext returns the authenticated user's claims from the request
// context. Returns nil if the request is not authenticated.
func UserFromContext(ctx context.Context) *Claims {
	if c, ok := ctx.Value(authUserKey{}).(*Claims); ok {
		return c
	}
	return nil
}

// ContextWithClaims attaches claims to a context. Used by tests and by the
// WebSocket handler, which authenticates via query parameter.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, authUserKey{}, claims)
}

// Middleware attaches JWT claims to the request context when a valid
// Bearer token is present. It never rejects: routes that serve guests
// (the chat relay) see an absent principal, and handlers that require
// authentication call RequireUser themselves. An invalid or expired
// token is treated the same as no token.
func Middleware(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := tokens.ValidateAccessToken(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// RequireUser returns the authenticated claims, or writes a 401 problem
// response and returns nil.
func RequireUser(w http.ResponseWriter, r *http.Request) *Claims {
	claims := UserFromContext(r.Context())
	if claims == nil {
		writeAuthError(w, http.StatusUnauthorized, "authentication required")
		return nil
	}
	return claims
}
