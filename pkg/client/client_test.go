package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateNote(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/notes" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("authorization: got %q", auth)
		}

		var req CreateNoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Text != "hello" {
			t.Errorf("text: got %q", req.Text)
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Note{ID: "note_1_abc", Text: req.Text})
	})

	c := New(srv.URL, WithAPIKey("secret"))
	n, reused, err := c.CreateNote(context.Background(), CreateNoteRequest{Text: "hello"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if reused {
		t.Fatal("201 must not report reuse")
	}
	if n.ID != "note_1_abc" {
		t.Fatalf("id: got %s", n.ID)
	}
}

func TestCreateNote_ReusedOn200(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Note{ID: "note_1_abc"})
	})

	c := New(srv.URL)
	_, reused, err := c.CreateNote(context.Background(), CreateNoteRequest{Text: "dup"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !reused {
		t.Fatal("200 must report reuse")
	}
}

func TestGetNote_APIError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "note_not_found",
			"message": "note not found",
		})
	})

	c := New(srv.URL)
	_, err := c.GetNote(context.Background(), "missing")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "note_not_found" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestSearch(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/search" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		if q := r.URL.Query().Get("query"); q != "docker" {
			t.Errorf("query: got %q", q)
		}
		if l := r.URL.Query().Get("limit"); l != "5" {
			t.Errorf("limit: got %q", l)
		}
		json.NewEncoder(w).Encode(SearchResponse{
			Items: []SearchResult{{Note: Note{ID: "n1"}, Score: 0.71}},
			Total: 1,
			Mode:  "primary",
		})
	})

	c := New(srv.URL)
	resp, err := c.Search(context.Background(), "docker", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Total != 1 || resp.Items[0].Score != 0.71 || resp.Mode != "primary" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestDeleteNote_NoContent(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method: got %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	c := New(srv.URL)
	if err := c.DeleteNote(context.Background(), "n1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Health{Status: "ok", StoreMode: "degraded", Notes: 3})
	})

	c := New(srv.URL)
	h, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if h.Status != "ok" || h.StoreMode != "degraded" || h.Notes != 3 {
		t.Fatalf("unexpected health: %+v", h)
	}
}
