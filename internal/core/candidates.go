package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"smartrag.com/shop-assistant/internal/index"
	"smartrag.com/shop-assistant/internal/store"
)

// ErrSearchUnavailable means a modality's index or embedder cannot serve
// queries right now. It is a typed, recoverable result.
var ErrSearchUnavailable = errors.New("search unavailable")

type Modality string

const (
	ModalityImage Modality = "image"
	ModalityText  Modality = "text"
)

const (
	minSearchK = 1
	maxSearchK = 5

	indexLoadTimeout = time.Minute
)

// Candidate is a product ranked by one retrieval modality.
type Candidate struct {
	Product  store.Product
	Score    float64 // similarity in [0,1], higher is better
	Modality Modality
}

type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

type ImageEmbedder interface {
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)
}

// IndexSnapshot pairs an index handle with the product metadata its hits
// refer to. The two are always swapped together.
type IndexSnapshot struct {
	Index    index.Index
	Products map[int64]store.Product
	Size     int
}

type IndexLoader interface {
	Load(ctx context.Context, modality Modality) (*IndexSnapshot, error)
}

// IndexStatus is reported on the admin surface.
type IndexStatus struct {
	Loaded   bool `json:"loaded"`
	Vectors  int  `json:"vectors"`
	Products int  `json:"products"`
}

// CandidateStore adapts the image and text indexes to a uniform search
// contract. Snapshots are loaded lazily; a failed load is not cached so the
// next request retries it.
type CandidateStore struct {
	loader IndexLoader
	text   TextEmbedder
	image  ImageEmbedder

	mu        sync.Mutex
	snapshots map[Modality]*IndexSnapshot

	// generation advances on Reload so loads started before it are discarded
	generation uint64

	loads singleflight.Group
}

func NewCandidateStore(loader IndexLoader, text TextEmbedder, image ImageEmbedder) *CandidateStore {
	return &CandidateStore{
		loader:    loader,
		text:      text,
		image:     image,
		snapshots: make(map[Modality]*IndexSnapshot),
	}
}

// Load eagerly loads both modalities. Modalities that fail stay unloaded.
func (s *CandidateStore) Load(ctx context.Context) error {
	var errs []error
	for _, m := range []Modality{ModalityImage, ModalityText} {
		if _, err := s.snapshot(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reload drops every cached handle; the next search loads fresh ones.
func (s *CandidateStore) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = make(map[Modality]*IndexSnapshot)
	s.generation++
	log.Println("Candidate indexes dropped, they will reload on next access.")
}

func (s *CandidateStore) IsLoaded(m Modality) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots[m] != nil
}

func (s *CandidateStore) Status() map[Modality]IndexStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Modality]IndexStatus, 2)
	for _, m := range []Modality{ModalityImage, ModalityText} {
		snap := s.snapshots[m]
		if snap == nil {
			out[m] = IndexStatus{}
			continue
		}
		out[m] = IndexStatus{Loaded: true, Vectors: snap.Size, Products: len(snap.Products)}
	}
	return out
}

// snapshot returns the cached handle for m, loading it when absent. The load
// runs without s.mu held and concurrent callers share one load.
func (s *CandidateStore) snapshot(ctx context.Context, m Modality) (*IndexSnapshot, error) {
	s.mu.Lock()
	snap, gen := s.snapshots[m], s.generation
	s.mu.Unlock()
	if snap != nil {
		return snap, nil
	}
	if s.loader == nil {
		return nil, fmt.Errorf("%w: no %s index configured", ErrSearchUnavailable, m)
	}

	ch := s.loads.DoChan(fmt.Sprintf("%s/%d", m, gen), func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), indexLoadTimeout)
		defer cancel()
		return s.load(loadCtx, m, gen)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*IndexSnapshot), nil
	}
}

func (s *CandidateStore) load(ctx context.Context, m Modality, gen uint64) (*IndexSnapshot, error) {
	snap, err := s.loader.Load(ctx, m)
	if err != nil {
		log.Printf("Failed to load %s index: %v", m, err)
		return nil, fmt.Errorf("%w: %s index: %v", ErrSearchUnavailable, m, err)
	}
	if snap == nil || snap.Index == nil || len(snap.Products) == 0 {
		log.Printf("The %s index is empty; has the catalog been ingested?", m)
		return nil, fmt.Errorf("%w: %s index is empty", ErrSearchUnavailable, m)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen {
		s.snapshots[m] = snap
	}
	log.Printf("Loaded %s index with %d vectors over %d products.", m, snap.Size, len(snap.Products))
	return snap, nil
}

// SearchByText returns at most k candidates for a free-text query.
func (s *CandidateStore) SearchByText(ctx context.Context, query string, k int) ([]Candidate, error) {
	if s.text == nil {
		return nil, fmt.Errorf("%w: no text embedder", ErrSearchUnavailable)
	}
	snap, err := s.snapshot(ctx, ModalityText)
	if err != nil {
		return nil, err
	}
	vec, err := s.text.EmbedText(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: embed text: %v", ErrSearchUnavailable, err)
	}
	return s.search(ctx, snap, vec, clampK(k), 0, ModalityText)
}

// SearchByImage returns at most k candidates whose similarity to the image
// is at least threshold.
func (s *CandidateStore) SearchByImage(ctx context.Context, image []byte, k int, threshold float64) ([]Candidate, error) {
	if s.image == nil {
		return nil, fmt.Errorf("%w: no image embedder", ErrSearchUnavailable)
	}
	snap, err := s.snapshot(ctx, ModalityImage)
	if err != nil {
		return nil, err
	}
	vec, err := s.image.EmbedImage(ctx, image)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: embed image: %v", ErrSearchUnavailable, err)
	}
	return s.search(ctx, snap, vec, clampK(k), threshold, ModalityImage)
}

func (s *CandidateStore) search(ctx context.Context, snap *IndexSnapshot, vec []float32, k int, threshold float64, m Modality) ([]Candidate, error) {
	hits, err := snap.Index.Search(ctx, vec, k)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s index search: %v", ErrSearchUnavailable, m, err)
	}

	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		similarity := clampUnit(1 - h.Distance)
		if similarity < threshold {
			continue
		}
		product, ok := snap.Products[h.ProductID]
		if !ok {
			// vector outlived its product
			continue
		}
		out = append(out, Candidate{Product: product, Score: similarity, Modality: m})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func clampK(k int) int {
	if k < minSearchK {
		return minSearchK
	}
	if k > maxSearchK {
		return maxSearchK
	}
	return k
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
