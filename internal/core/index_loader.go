package core

import (
	"context"
	"errors"
	"fmt"
	"log"

	"smartrag.com/shop-assistant/internal/index"
	"smartrag.com/shop-assistant/internal/store"
)

// CatalogSource is the read side of the catalog the index loader needs.
type CatalogSource interface {
	ListProducts(filter store.ProductFilter) ([]store.Product, error)
	GetIndexVectors(kind string) ([]store.IndexVector, error)
}

// CatalogIndexLoader builds index snapshots from the catalog database. With
// no Qdrant collections it searches the stored vectors in memory; otherwise
// it hands queries to the Qdrant collection for the modality.
type CatalogIndexLoader struct {
	catalog     CatalogSource
	collections map[Modality]*index.Qdrant
}

func NewMemoryIndexLoader(catalog CatalogSource) *CatalogIndexLoader {
	return &CatalogIndexLoader{catalog: catalog}
}

func NewQdrantIndexLoader(catalog CatalogSource, collections map[Modality]*index.Qdrant) *CatalogIndexLoader {
	return &CatalogIndexLoader{catalog: catalog, collections: collections}
}

func vectorKind(m Modality) string {
	if m == ModalityImage {
		return store.VectorKindImage
	}
	return store.VectorKindText
}

func (l *CatalogIndexLoader) Load(ctx context.Context, m Modality) (*IndexSnapshot, error) {
	products, err := l.catalog.ListProducts(store.ProductFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	byID := make(map[int64]store.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	if l.collections != nil {
		q := l.collections[m]
		if q == nil {
			return nil, fmt.Errorf("no qdrant collection for %s", m)
		}
		n, err := q.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("qdrant collection %s: %w", q.Collection(), err)
		}
		if n == 0 {
			return nil, fmt.Errorf("qdrant collection %s is empty", q.Collection())
		}
		return &IndexSnapshot{Index: q, Products: byID, Size: n}, nil
	}

	vectors, err := l.catalog.GetIndexVectors(vectorKind(m))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s vectors: %w", m, err)
	}
	entries := make([]index.Entry, 0, len(vectors))
	for _, v := range vectors {
		entries = append(entries, index.Entry{ProductID: v.ProductID, Vector: v.Embedding})
	}
	mem := index.NewMemory(entries)
	if mem.Len() == 0 {
		return nil, errors.New("no vectors stored")
	}
	return &IndexSnapshot{Index: mem, Products: byID, Size: mem.Len()}, nil
}

// PublishToQdrant copies the vectors stored in the catalog into the Qdrant
// collection of each modality, recreating the collections first.
func PublishToQdrant(ctx context.Context, catalog CatalogSource, collections map[Modality]*index.Qdrant) error {
	for m, q := range collections {
		vectors, err := catalog.GetIndexVectors(vectorKind(m))
		if err != nil {
			return fmt.Errorf("failed to load %s vectors: %w", m, err)
		}
		if len(vectors) == 0 {
			log.Printf("No %s vectors to publish to %s.", m, q.Collection())
			continue
		}
		if err := q.DeleteCollection(ctx); err != nil {
			return fmt.Errorf("failed to drop %s: %w", q.Collection(), err)
		}
		if err := q.EnsureCollection(ctx, len(vectors[0].Embedding)); err != nil {
			return fmt.Errorf("failed to create %s: %w", q.Collection(), err)
		}
		points := make([]index.Point, 0, len(vectors))
		for _, v := range vectors {
			points = append(points, index.Point{ID: uint64(v.ID), ProductID: v.ProductID, Vector: v.Embedding})
		}
		if err := q.Upsert(ctx, points); err != nil {
			return fmt.Errorf("failed to upsert into %s: %w", q.Collection(), err)
		}
		log.Printf("Published %d %s vectors to %s.", len(points), m, q.Collection())
	}
	return nil
}
