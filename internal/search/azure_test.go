package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"hrchat/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(config.SearchConfig{
		Endpoint: srv.URL,
		Key:      "test-key",
		Index:    "docs",
		TopK:     15,
	})
	return client, srv
}

func TestSearchParsesAndRanks(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") != "test-key" {
			t.Errorf("missing api-key header")
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["search"] != "vacation policy" {
			t.Errorf("unexpected query %v", req["search"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{"chunk": "low relevance", "@search.score": 0.4, "title": "Other"},
				{"content": "vacation days accrue monthly", "@search.score": 2.1, "title": "Handbook"},
				{"score_only_no_text": true, "@search.score": 9.9},
			},
		})
	})

	docs, err := client.Search(context.Background(), "vacation policy", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 usable docs, got %d", len(docs))
	}
	if docs[0].Content != "vacation days accrue monthly" {
		t.Fatalf("expected highest score first, got %q", docs[0].Content)
	}
	if docs[0].Title != "Handbook" {
		t.Fatalf("title not picked up: %q", docs[0].Title)
	}
}

func TestSearchZeroResultsIsNotAnError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"value": []map[string]any{}})
	})
	docs, err := client.Search(context.Background(), "nothing", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected no docs, got %d", len(docs))
	}
}

func TestSearchUpstreamFailure(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index not found", http.StatusNotFound)
	})
	if _, err := client.Search(context.Background(), "q", 0); err == nil {
		t.Fatalf("expected error on non-200 response")
	}
}

func TestDisabledClient(t *testing.T) {
	client := NewClient(config.SearchConfig{})
	if client.Enabled() {
		t.Fatalf("client without credentials must be disabled")
	}
	docs, err := client.Search(context.Background(), "q", 0)
	if err != nil || docs != nil {
		t.Fatalf("disabled client should return empty results, got %v %v", docs, err)
	}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatalf("ping should fail when not configured")
	}
}
