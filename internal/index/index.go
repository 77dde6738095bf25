// Package index provides nearest-neighbor indexes over product embeddings.
// Every backend reports a raw distance where 0 means identical.
package index

import "context"

// Hit is one nearest-neighbor result.
type Hit struct {
	ProductID int64
	Distance  float64
}

type Index interface {
	// Search returns at most k hits ordered by ascending distance.
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
}
