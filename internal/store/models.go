package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt    time.Time `json:"created_at"`
}

// Product is a catalog entry. MarginalPrice is the internal price floor;
// it is only serialized on the authenticated catalog surface.
type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	MarginalPrice decimal.Decimal `json:"marginal_price"`
	Code          string          `json:"code"`
	Link          string          `json:"link"`
	Images        []string        `json:"images"`
	CreatedAt     time.Time       `json:"created_at"`
}

// IndexText is the text that gets embedded for the text-similarity index.
// The marginal price never goes into it.
func (p Product) IndexText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", strings.TrimSpace(p.Name))
	if p.Code != "" {
		fmt.Fprintf(&b, "Code: %s\n", strings.TrimSpace(p.Code))
	}
	fmt.Fprintf(&b, "Price: %s\n", p.Price.String())
	fmt.Fprintf(&b, "Description: %s", strings.TrimSpace(p.Description))
	return b.String()
}

// ProductFilter narrows ListProducts. Zero values mean "no filter".
type ProductFilter struct {
	Name     string
	Code     string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
}

// Vector kinds stored in index_vectors.
const (
	VectorKindText  = "text"
	VectorKindImage = "image"
)

type IndexVector struct {
	ID            int64     `json:"id"`
	Kind          string    `json:"kind"`
	ProductID     int64     `json:"product_id"`
	Embedding     []float32 `json:"-"` // Don't marshal to JSON response, internal
	EmbeddingJSON string    `json:"-"` // Store as JSON string for DB
}

// CatalogRecord is one entry of the catalog ingest file.
type CatalogRecord struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	MarginalPrice decimal.Decimal `json:"marginal_price"`
	Code          string          `json:"code"`
	Link          string          `json:"link"`
	Images        []string        `json:"images"`
}
