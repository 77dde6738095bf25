package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Embedder funcs used by ingest. A nil image embedder skips image vectors.
type (
	TextEmbedFunc  func(ctx context.Context, text string) ([]float32, error)
	ImageEmbedFunc func(ctx context.Context, image []byte) ([]float32, error)
)

// IngestStats summarizes one catalog ingest run.
type IngestStats struct {
	Products     int
	TextVectors  int
	ImageVectors int
}

// IngestCatalogFile replaces the catalog with the records of a JSON file and
// stores one text vector per product plus one image vector per readable image.
// Relative image paths are resolved against the catalog file's directory.
func (s *SQLiteStore) IngestCatalogFile(ctx context.Context, filePath string, embedText TextEmbedFunc, embedImage ImageEmbedFunc) (IngestStats, error) {
	var stats IngestStats

	contentBytes, err := os.ReadFile(filePath)
	if err != nil {
		return stats, fmt.Errorf("failed to read catalog file %s: %w", filePath, err)
	}
	var records []CatalogRecord
	if err := json.Unmarshal(contentBytes, &records); err != nil {
		return stats, fmt.Errorf("failed to parse catalog file %s: %w", filePath, err)
	}
	if len(records) == 0 {
		log.Println("No records found in catalog file.")
		return stats, nil
	}

	log.Printf("Loaded %d catalog records. Now embedding (this may take a while)...", len(records))

	if err := s.ClearCatalog(); err != nil {
		return stats, fmt.Errorf("failed to clear existing catalog: %w", err)
	}

	baseDir := filepath.Dir(filePath)

	ticker := time.NewTicker(40 * time.Millisecond) // delay to not hit rate limit (1500/min)
	defer ticker.Stop()

	for i, rec := range records {
		if strings.TrimSpace(rec.Name) == "" {
			log.Printf("Skipping catalog record %d without a name.", i+1)
			continue
		}

		product := Product{
			Name:          rec.Name,
			Description:   rec.Description,
			Price:         rec.Price,
			MarginalPrice: rec.MarginalPrice,
			Code:          rec.Code,
			Link:          rec.Link,
			Images:        rec.Images,
		}
		if err := s.CreateProduct(&product); err != nil {
			log.Printf("Failed to store product %d (%q): %v. Skipping.", i+1, rec.Name, err)
			continue
		}
		stats.Products++

		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-ticker.C:
		}

		embedding, err := embedText(ctx, product.IndexText())
		if err != nil {
			log.Printf("Failed to embed text of product %d (%q): %v.", product.ID, product.Name, err)
		} else if err := s.CreateIndexVector(&IndexVector{Kind: VectorKindText, ProductID: product.ID, Embedding: embedding}); err != nil {
			log.Printf("Failed to store text vector of product %d: %v.", product.ID, err)
		} else {
			stats.TextVectors++
		}

		for _, imagePath := range product.Images {
			if embedImage == nil {
				break
			}
			if !filepath.IsAbs(imagePath) {
				imagePath = filepath.Join(baseDir, imagePath)
			}
			data, err := os.ReadFile(imagePath)
			if err != nil {
				log.Printf("Failed to read image %s of product %d: %v. Skipping.", imagePath, product.ID, err)
				continue
			}
			embedding, err := embedImage(ctx, data)
			if err != nil {
				log.Printf("Failed to embed image %s of product %d: %v. Skipping.", imagePath, product.ID, err)
				continue
			}
			if err := s.CreateIndexVector(&IndexVector{Kind: VectorKindImage, ProductID: product.ID, Embedding: embedding}); err != nil {
				log.Printf("Failed to store image vector of product %d: %v.", product.ID, err)
				continue
			}
			stats.ImageVectors++
		}

		if stats.Products%10 == 0 || i == len(records)-1 {
			log.Printf("Ingested %d/%d products...", stats.Products, len(records))
		}
	}
	log.Printf("Successfully ingested %d products (%d text vectors, %d image vectors).", stats.Products, stats.TextVectors, stats.ImageVectors)
	return stats, nil
}
