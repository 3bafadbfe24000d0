package diagram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/flowforge-ai/flowforge/internal/auth"
	"github.com/flowforge-ai/flowforge/internal/event"
	"github.com/flowforge-ai/flowforge/internal/store"
)

func newTestHandler(t *testing.T) *http.ServeMux {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ds, err := NewStore(context.Background(), st)
	if err != nil {
		t.Fatalf("diagram store: %v", err)
	}

	logger := zap.NewNop()
	mux := http.NewServeMux()
	NewHandler(ds, event.NewBus(logger), logger).RegisterRoutes(mux)
	return mux
}

func doAs(mux *http.ServeMux, userID, method, path, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		r = r.WithContext(auth.ContextWithClaims(r.Context(), &auth.Claims{UserID: userID}))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func TestDiagramCRUD(t *testing.T) {
	mux := newTestHandler(t)

	w := doAs(mux, "user-1", "POST", "/api/v1/diagrams", `{"title":"Login flow","content":"{\"elements\":[1]}"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var created CreateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}
	if created.ID == "" || created.PreCreated {
		t.Errorf("create response = %+v", created)
	}

	w = doAs(mux, "user-1", "GET", "/api/v1/diagrams/"+created.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d: %s", w.Code, w.Body.String())
	}
	var got Diagram
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal diagram: %v", err)
	}
	if got.Title != "Login flow" {
		t.Errorf("title = %q, want Login flow", got.Title)
	}

	w = doAs(mux, "user-1", "PUT", "/api/v1/diagrams/"+created.ID, `{"title":"Renamed","content":"{\"elements\":[2]}"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", w.Code, w.Body.String())
	}

	w = doAs(mux, "user-1", "GET", "/api/v1/diagrams", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list ListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Diagrams) != 1 || list.Diagrams[0].Title != "Renamed" {
		t.Errorf("list = %+v", list.Diagrams)
	}

	w = doAs(mux, "user-1", "DELETE", "/api/v1/diagrams/"+created.ID, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = doAs(mux, "user-1", "GET", "/api/v1/diagrams/"+created.ID, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
}

func TestDiagram_PreCreation(t *testing.T) {
	mux := newTestHandler(t)

	w := doAs(mux, "user-1", "POST", "/api/v1/diagrams", `{}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var created CreateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}
	if !created.PreCreated {
		t.Error("preCreated = false for an empty-content create")
	}

	w = doAs(mux, "user-1", "GET", "/api/v1/diagrams/"+created.ID, "")
	var got Diagram
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal diagram: %v", err)
	}
	if got.Title != "Untitled" {
		t.Errorf("title = %q, want Untitled", got.Title)
	}
	if !strings.Contains(got.Content, `"elements":[]`) {
		t.Errorf("content = %q, want blank canvas document", got.Content)
	}
}

func TestDiagram_RequiresAuth(t *testing.T) {
	mux := newTestHandler(t)

	paths := []struct {
		method, path string
	}{
		{"POST", "/api/v1/diagrams"},
		{"GET", "/api/v1/diagrams"},
		{"GET", "/api/v1/diagrams/some-id"},
		{"PUT", "/api/v1/diagrams/some-id"},
		{"DELETE", "/api/v1/diagrams/some-id"},
	}
	for _, p := range paths {
		w := doAs(mux, "", p.method, p.path, `{"content":"{}"}`)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want 401", p.method, p.path, w.Code)
		}
	}
}

func TestDiagram_OwnerIsolation(t *testing.T) {
	mux := newTestHandler(t)

	w := doAs(mux, "user-1", "POST", "/api/v1/diagrams", `{"content":"{}"}`)
	var created CreateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}

	if w := doAs(mux, "user-2", "GET", "/api/v1/diagrams/"+created.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("foreign get status = %d, want 404", w.Code)
	}
	if w := doAs(mux, "user-2", "DELETE", "/api/v1/diagrams/"+created.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("foreign delete status = %d, want 404", w.Code)
	}
	if w := doAs(mux, "user-2", "GET", "/api/v1/diagrams", ""); w.Code != http.StatusOK {
		t.Errorf("foreign list status = %d", w.Code)
	} else {
		var list ListResponse
		_ = json.Unmarshal(w.Body.Bytes(), &list)
		if len(list.Diagrams) != 0 {
			t.Errorf("foreign list sees %d diagrams, want 0", len(list.Diagrams))
		}
	}
}

func TestDiagram_UpdateRequiresContent(t *testing.T) {
	mux := newTestHandler(t)

	w := doAs(mux, "user-1", "POST", "/api/v1/diagrams", `{"content":"{}"}`)
	var created CreateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}

	if w := doAs(mux, "user-1", "PUT", "/api/v1/diagrams/"+created.ID, `{"title":"no content"}`); w.Code != http.StatusBadRequest {
		t.Errorf("content-less update status = %d, want 400", w.Code)
	}
}
