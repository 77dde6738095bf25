package index

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMemorySearch_OrdersByDistanceAndCapsK(t *testing.T) {
	m := NewMemory([]Entry{
		{ProductID: 1, Vector: []float32{0, 1}},
		{ProductID: 2, Vector: []float32{1, 0}},
		{ProductID: 3, Vector: []float32{1, 1}},
		{ProductID: 4, Vector: nil},
		{ProductID: 5, Vector: []float32{1, 0, 0}},
	})
	if m.Len() != 4 {
		t.Fatalf("Len = %d, want 4 (empty vectors dropped)", m.Len())
	}

	hits, err := m.Search(context.Background(), []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].ProductID != 2 || hits[1].ProductID != 3 {
		t.Fatalf("unexpected order: %+v", hits)
	}
	if hits[0].Distance > 1e-9 {
		t.Fatalf("identical vector distance = %v", hits[0].Distance)
	}
}

func TestMemorySearch_CancelledContext(t *testing.T) {
	m := NewMemory([]Entry{{ProductID: 1, Vector: []float32{1}}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Search(ctx, []float32{1}, 1); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestQdrantSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/shop_image/points/search" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("api-key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req struct {
			Limit int `json:"limit"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Limit != 2 {
			t.Errorf("limit = %d, want 2", req.Limit)
		}
		w.Write([]byte(`{"result":[{"score":0.95,"payload":{"product_id":7}},{"score":0.5,"payload":{}}]}`))
	}))
	defer srv.Close()

	q := NewQdrant(QdrantConfig{URL: srv.URL, APIKey: "k", Collection: "shop_image"})
	hits, err := q.Search(context.Background(), []float32{0.1, 0.2}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].ProductID != 7 {
		t.Fatalf("unexpected hits: %+v", hits)
	}
	if d := hits[0].Distance; d < 0.0499 || d > 0.0501 {
		t.Fatalf("distance = %v, want 0.05", d)
	}
}

func TestQdrantCountAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections/ok/points/count":
			w.Write([]byte(`{"result":{"count":12}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	n, err := NewQdrant(QdrantConfig{URL: srv.URL, Collection: "ok"}).Count(context.Background())
	if err != nil || n != 12 {
		t.Fatalf("count = %d, err = %v", n, err)
	}
	if _, err := NewQdrant(QdrantConfig{URL: srv.URL, Collection: "missing"}).Count(context.Background()); err == nil {
		t.Fatalf("expected error for missing collection")
	}
	if err := NewQdrant(QdrantConfig{URL: srv.URL, Collection: "missing"}).DeleteCollection(context.Background()); err != nil {
		t.Fatalf("deleting a missing collection should succeed, got %v", err)
	}
}
