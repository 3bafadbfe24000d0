package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// Problem types for RFC 7807 Problem Details responses.
const (
	ProblemTypeNotFound      = "https://flowforge.dev/problems/not-found"
	ProblemTypeBadRequest    = "https://flowforge.dev/problems/bad-request"
	ProblemTypeInternal      = "https://flowforge.dev/problems/internal-error"
	ProblemTypeUnauthorized  = "https://flowforge.dev/problems/unauthorized"
	ProblemTypeForbidden     = "https://flowforge.dev/problems/forbidden"
	ProblemTypeRateLimited   = "https://flowforge.dev/problems/rate-limited"
	ProblemTypeQuotaExceeded = "https://flowforge.dev/problems/quota-exceeded"
	ProblemTypeConflict      = "https://flowforge.dev/problems/conflict"
	ProblemTypeUnavailable   = "https://flowforge.dev/problems/service-unavailable"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type" example:"https://flowforge.dev/problems/bad-request"`
	Title    string `json:"title" example:"Bad Request"`
	Status   int    `json:"status" example:"400"`
	Detail   string `json:"detail,omitempty" example:"messages must be a non-empty array"`
	Instance string `json:"instance,omitempty" example:"/api/v1/chat/diagram"`
}

// QuotaProblem is a 429 problem extended with quota details, per the
// RFC 7807 extension-member rules.
type QuotaProblem struct {
	Problem
	Limit     int        `json:"limit"`
	Remaining int        `json:"remaining"`
	LastUsed  *time.Time `json:"lastUsed,omitempty"`
}

// WriteProblem writes an RFC 7807 Problem Details JSON response.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NotFound writes a 404 problem response.
func NotFound(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeNotFound,
		Title:    "Not Found",
		Status:   http.StatusNotFound,
		Detail:   detail,
		Instance: instance,
	})
}

// BadRequest writes a 400 problem response.
func BadRequest(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeBadRequest,
		Title:    "Bad Request",
		Status:   http.StatusBadRequest,
		Detail:   detail,
		Instance: instance,
	})
}

// Unauthorized writes a 401 problem response.
func Unauthorized(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeUnauthorized,
		Title:    "Unauthorized",
		Status:   http.StatusUnauthorized,
		Detail:   detail,
		Instance: instance,
	})
}

// Forbidden writes a 403 problem response.
func Forbidden(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeForbidden,
		Title:    "Forbidden",
		Status:   http.StatusForbidden,
		Detail:   detail,
		Instance: instance,
	})
}

// Conflict writes a 409 problem response.
func Conflict(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeConflict,
		Title:    "Conflict",
		Status:   http.StatusConflict,
		Detail:   detail,
		Instance: instance,
	})
}

// InternalError writes a 500 problem response.
func InternalError(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeInternal,
		Title:    "Internal Server Error",
		Status:   http.StatusInternalServerError,
		Detail:   detail,
		Instance: instance,
	})
}

// RateLimited writes a 429 problem response.
func RateLimited(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeRateLimited,
		Title:    "Too Many Requests",
		Status:   http.StatusTooManyRequests,
		Detail:   detail,
		Instance: instance,
	})
}

// ServiceUnavailable writes a 503 problem response.
func ServiceUnavailable(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeUnavailable,
		Title:    "Service Unavailable",
		Status:   http.StatusServiceUnavailable,
		Detail:   detail,
		Instance: instance,
	})
}

// QuotaExceeded writes a 429 problem response carrying quota details.
func QuotaExceeded(w http.ResponseWriter, detail, instance string, limit, remaining int, lastUsed *time.Time) {
	p := QuotaProblem{
		Problem: Problem{
			Type:     ProblemTypeQuotaExceeded,
			Title:    "Quota Exceeded",
			Status:   http.StatusTooManyRequests,
			Detail:   detail,
			Instance: instance,
		},
		Limit:     limit,
		Remaining: remaining,
		LastUsed:  lastUsed,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
