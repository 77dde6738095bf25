package index

import (
	"context"
	"sort"

	"smartrag.com/shop-assistant/internal/utils"
)

// Entry is a stored vector and the product it belongs to.
type Entry struct {
	ProductID int64
	Vector    []float32
}

// Memory is a brute-force cosine index. It is immutable once built, so
// concurrent searches need no locking.
type Memory struct {
	entries []Entry
}

func NewMemory(entries []Entry) *Memory {
	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if len(e.Vector) > 0 {
			kept = append(kept, e)
		}
	}
	return &Memory{entries: kept}
}

func (m *Memory) Len() int { return len(m.entries) }

func (m *Memory) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	hits := make([]Hit, 0, len(m.entries))
	for _, e := range m.entries {
		d, err := utils.CosineDistance(vector, e.Vector)
		if err != nil {
			// dimension mismatch: the entry was embedded by another model
			continue
		}
		hits = append(hits, Hit{ProductID: e.ProductID, Distance: d})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
