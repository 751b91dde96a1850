package embedclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbedReturnsVectorFromServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing/incorrect Authorization header: %q", r.Header.Get("Authorization"))
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Input != "hello world" {
			t.Errorf("Input = %q, want %q", req.Input, "hello world")
		}
		_ = json.NewEncoder(w).Encode(embedResponse{
			Data: []struct {
				Embedding []float32 `json:"embedding"`
			}{{Embedding: []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "text-embedding-3-small", Dim: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vec, err := c.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	want := []float32{0.1, 0.2, 0.3}
	if len(vec) != len(want) {
		t.Fatalf("Embed() = %v, want %v", vec, want)
	}
	for i := range want {
		if vec[i] != want[i] {
			t.Errorf("Embed()[%d] = %v, want %v", i, vec[i], want[i])
		}
	}
}

func TestEmbedRejectsDimMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{
			Data: []struct {
				Embedding []float32 `json:"embedding"`
			}{{Embedding: []float32{0.1, 0.2}}},
		})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "m", Dim: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.Embed(context.Background(), "x"); err == nil {
		t.Error("expected error on embedding dim mismatch")
	}
}

func TestEmbedSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{
			Error: &struct {
				Message string `json:"message"`
			}{Message: "rate limited"},
		})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "m", Dim: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.Embed(context.Background(), "x"); err == nil {
		t.Error("expected error surfaced from api error field")
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{APIKey: "k", Model: "m", Dim: 3}); err == nil {
		t.Error("expected error for missing base url")
	}
	if _, err := New(Config{BaseURL: "http://x", Model: "m", Dim: 3}); err == nil {
		t.Error("expected error for missing api key")
	}
	if _, err := New(Config{BaseURL: "http://x", APIKey: "k", Dim: 3}); err == nil {
		t.Error("expected error for missing model")
	}
	if _, err := New(Config{BaseURL: "http://x", APIKey: "k", Model: "m"}); err == nil {
		t.Error("expected error for non-positive dim")
	}
}
