package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/flowforge-ai/flowforge/internal/auth"
	"github.com/flowforge-ai/flowforge/internal/store"
)

// testEnvWithObservedLogs wires the auth stack through the full server
// middleware chain with a log-capturing logger.
func testEnvWithObservedLogs(t *testing.T) (*Server, *observer.ObservedLogs) {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	userStore, err := auth.NewUserStore(context.Background(), db)
	if err != nil {
		t.Fatalf("NewUserStore: %v", err)
	}

	tokens := auth.NewTokenService([]byte("test-secret-key-32bytes-long!!"), 15*time.Minute, 7*24*time.Hour)
	svc := auth.NewService(userStore, tokens, logger)
	handler := auth.NewHandler(svc, logger)

	return New("127.0.0.1:0", logger, nil, handler, false), logs
}

func postJSON(s *Server, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, strings.NewReader(string(raw)))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.20:4321"
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	return w
}

// allLogText flattens every captured log entry, including fields, into
// one searchable string.
func allLogText(logs *observer.ObservedLogs) string {
	var b strings.Builder
	for _, entry := range logs.All() {
		b.WriteString(entry.Message)
		b.WriteString(" ")
		for _, f := range entry.Context {
			b.WriteString(f.Key)
			b.WriteString("=")
			b.WriteString(f.String)
			b.WriteString(fmt.Sprintf("%v ", f.Interface))
		}
	}
	return b.String()
}

// TestLogsNeverContainPasswords runs a register and login round trip and
// asserts the plaintext password never reaches any log output.
func TestLogsNeverContainPasswords(t *testing.T) {
	s, logs := testEnvWithObservedLogs(t)

	const password = "super-secret-hunter2-password"

	w := postJSON(s, "/api/v1/auth/register", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": password,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", w.Code, w.Body.String())
	}

	w = postJSON(s, "/api/v1/auth/login", map[string]string{
		"username": "alice",
		"password": password,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", w.Code, w.Body.String())
	}

	if text := allLogText(logs); strings.Contains(text, password) {
		t.Error("plaintext password found in log output")
	}
}

// TestLogsNeverContainTokens asserts issued access and refresh tokens
// never reach the log output.
func TestLogsNeverContainTokens(t *testing.T) {
	s, logs := testEnvWithObservedLogs(t)

	w := postJSON(s, "/api/v1/auth/register", map[string]string{
		"username": "bob",
		"email":    "bob@example.com",
		"password": "another-strong-password",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Tokens struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"tokens"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal register response: %v", err)
	}
	if resp.Tokens.AccessToken == "" || resp.Tokens.RefreshToken == "" {
		t.Fatal("register response missing tokens")
	}

	text := allLogText(logs)
	if strings.Contains(text, resp.Tokens.AccessToken) {
		t.Error("access token found in log output")
	}
	if strings.Contains(text, resp.Tokens.RefreshToken) {
		t.Error("refresh token found in log output")
	}
}

// TestFailedLoginLogsNoCredentials asserts a rejected login does not
// leak the attempted password.
func TestFailedLoginLogsNoCredentials(t *testing.T) {
	s, logs := testEnvWithObservedLogs(t)

	const attempted = "wrong-password-attempt"
	w := postJSON(s, "/api/v1/auth/login", map[string]string{
		"username": "nobody",
		"password": attempted,
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("login status = %d, want 401", w.Code)
	}

	if text := allLogText(logs); strings.Contains(text, attempted) {
		t.Error("attempted password found in log output")
	}
}
