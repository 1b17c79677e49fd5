package persona

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/karen-os/backend/internal/model/persona"
)

func setupRouter(activeID string) *chi.Mux {
	r := chi.NewRouter()
	New(persona.NewMemoryStore(persona.Seed()), activeID).RegisterRoutes(r)
	return r
}

func TestListPersonas(t *testing.T) {
	resp := httptest.NewRecorder()
	setupRouter("karen").ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/personas", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var items []persona.Persona
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].ID != "karen" {
		t.Fatalf("unexpected personas %+v", items)
	}
	if items[0].SystemInstruction != "" {
		t.Fatal("system instruction must not be exposed")
	}
}

func TestActivePersona(t *testing.T) {
	resp := httptest.NewRecorder()
	setupRouter("karen").ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/personas/active", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	setupRouter("missing").ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/personas/active", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
