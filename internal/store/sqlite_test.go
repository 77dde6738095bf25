package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProductCRUD(t *testing.T) {
	s := newTestStore(t)

	p := Product{
		Name:          "Leather Loafer",
		Description:   "Soft leather. Sizes: 40, 41, 42",
		Price:         decimal.RequireFromString("1250.50"),
		MarginalPrice: decimal.RequireFromString("900"),
		Code:          "LF-01",
		Link:          "https://shop.example/lf-01",
		Images:        []string{"lf-01-a.jpg", "lf-01-b.jpg"},
	}
	if err := s.CreateProduct(&p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == 0 {
		t.Fatalf("expected id to be assigned")
	}

	got, err := s.GetProduct(p.ID)
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if !got.Price.Equal(p.Price) || !got.MarginalPrice.Equal(p.MarginalPrice) {
		t.Fatalf("prices not round-tripped: %s / %s", got.Price, got.MarginalPrice)
	}
	if len(got.Images) != 2 || got.Images[0] != "lf-01-a.jpg" {
		t.Fatalf("images = %v", got.Images)
	}

	got.Price = decimal.RequireFromString("1100")
	got.Images = []string{"lf-01-c.jpg"}
	if err := s.UpdateProduct(got); err != nil {
		t.Fatalf("update: %v", err)
	}
	updated, _ := s.GetProduct(p.ID)
	if !updated.Price.Equal(decimal.RequireFromString("1100")) || len(updated.Images) != 1 {
		t.Fatalf("update not applied: %+v", updated)
	}

	if err := s.DeleteProduct(p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if gone, _ := s.GetProduct(p.ID); gone != nil {
		t.Fatalf("expected product to be deleted")
	}
	if err := s.DeleteProduct(p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestListProductsFilters(t *testing.T) {
	s := newTestStore(t)
	for _, p := range []Product{
		{Name: "Canvas Sneaker", Price: decimal.NewFromInt(800), MarginalPrice: decimal.NewFromInt(600), Code: "SN-1"},
		{Name: "Leather Sandal", Price: decimal.NewFromInt(1500), MarginalPrice: decimal.NewFromInt(1100), Code: "SD-1"},
		{Name: "Running Sneaker", Price: decimal.NewFromInt(2500), MarginalPrice: decimal.NewFromInt(2000), Code: "SN-2"},
	} {
		p := p
		if err := s.CreateProduct(&p); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	minPrice := decimal.NewFromInt(1000)
	cases := []struct {
		name   string
		filter ProductFilter
		want   int
	}{
		{"all", ProductFilter{}, 3},
		{"name", ProductFilter{Name: "Sneaker"}, 2},
		{"code", ProductFilter{Code: "SD-1"}, 1},
		{"min price", ProductFilter{MinPrice: &minPrice}, 2},
		{"name and min price", ProductFilter{Name: "Sneaker", MinPrice: &minPrice}, 1},
	}
	for _, tc := range cases {
		got, err := s.ListProducts(tc.filter)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if len(got) != tc.want {
			t.Fatalf("%s: got %d products, want %d", tc.name, len(got), tc.want)
		}
	}
}

func TestIndexVectorsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	p := Product{Name: "Boot", Price: decimal.NewFromInt(3000), MarginalPrice: decimal.NewFromInt(2500)}
	if err := s.CreateProduct(&p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateIndexVector(&IndexVector{Kind: VectorKindImage, ProductID: p.ID, Embedding: []float32{0.1, 0.2, 0.3}}); err != nil {
		t.Fatalf("create vector: %v", err)
	}

	vectors, err := s.GetIndexVectors(VectorKindImage)
	if err != nil {
		t.Fatalf("get vectors: %v", err)
	}
	if len(vectors) != 1 || vectors[0].ProductID != p.ID || len(vectors[0].Embedding) != 3 {
		t.Fatalf("unexpected vectors: %+v", vectors)
	}
	if text, _ := s.GetIndexVectors(VectorKindText); len(text) != 0 {
		t.Fatalf("expected no text vectors, got %d", len(text))
	}
}

func TestIngestCatalogFile(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("fake-jpeg"), 0o600); err != nil {
		t.Fatalf("write image: %v", err)
	}
	catalog := `[
	  {"name": "Loafer", "description": "Brown", "price": "1200", "marginal_price": "950", "code": "L1", "images": ["a.jpg", "missing.jpg"]},
	  {"name": "", "price": 10, "marginal_price": 5},
	  {"name": "Sandal", "description": "Black", "price": 700, "marginal_price": 500, "code": "S1"}
	]`
	path := filepath.Join(dir, "catalog.json")
	if err := os.WriteFile(path, []byte(catalog), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	var embeddedTexts []string
	embedText := func(_ context.Context, text string) ([]float32, error) {
		embeddedTexts = append(embeddedTexts, text)
		return []float32{1, 0}, nil
	}
	embedImage := func(_ context.Context, data []byte) ([]float32, error) {
		return []float32{0, 1}, nil
	}

	stats, err := s.IngestCatalogFile(context.Background(), path, embedText, embedImage)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if stats.Products != 2 || stats.TextVectors != 2 || stats.ImageVectors != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	for _, text := range embeddedTexts {
		if strings.Contains(text, "950") || strings.Contains(text, "500") {
			t.Fatalf("marginal price leaked into index text: %q", text)
		}
	}
}
