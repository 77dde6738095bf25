package embedding

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCLIPClientEmbedImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/embed" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Image string `json:"image"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		raw, _ := base64.StdEncoding.DecodeString(req.Image)
		if string(raw) != "jpeg-bytes" {
			http.Error(w, "bad image", http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"embedding":[0.25,0.5,0.75]}`))
	}))
	defer srv.Close()

	c := NewCLIPClient(CLIPConfig{BaseURL: srv.URL})
	vec, err := c.EmbedImage(context.Background(), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.5 {
		t.Fatalf("unexpected vector: %v", vec)
	}
}

func TestCLIPClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewCLIPClient(CLIPConfig{BaseURL: srv.URL})
	if _, err := c.EmbedImage(context.Background(), []byte("x")); err == nil {
		t.Fatalf("expected error on 503")
	}
	if _, err := c.EmbedImage(context.Background(), nil); err == nil {
		t.Fatalf("expected error on empty image")
	}
}
