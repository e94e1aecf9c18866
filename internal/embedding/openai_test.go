package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func embeddingServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vec := make([]float32, dim)
		for i := range vec {
			vec[i] = 0.1
		}
		resp := map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": vec},
			},
			"model": "all-minilm",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbed(t *testing.T) {
	srv := embeddingServer(t, 4)
	client, err := NewClient(srv.URL, "test", "all-minilm", 4)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	vec, err := client.Embed(context.Background(), "ERROR connection timeout")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 4 {
		t.Fatalf("expected 4 dims, got %d", len(vec))
	}
}

func TestEmbedDimensionMismatch(t *testing.T) {
	srv := embeddingServer(t, 3)
	client, err := NewClient(srv.URL, "test", "all-minilm", 4)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := client.Embed(context.Background(), "text"); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestEmbedBackendDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "test", "all-minilm", 4)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Embed(context.Background(), "text"); err == nil {
		t.Fatal("expected error from failing backend")
	}
}
