package core

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"smartrag.com/shop-assistant/internal/store"
)

func product(id int64, name, code string, price, marginal int64) store.Product {
	return store.Product{
		ID:            id,
		Name:          name,
		Code:          code,
		Description:   name + " description",
		Price:         decimal.NewFromInt(price),
		MarginalPrice: decimal.NewFromInt(marginal),
		Link:          "https://shop.example/" + code,
	}
}

func candidate(p store.Product, m Modality) Candidate {
	return Candidate{Product: p, Score: 0.9, Modality: m}
}

type fakeSearcher struct {
	mu sync.Mutex

	textResults []Candidate
	textErr     error
	textQueries []string
	textKs      []int

	// imageResults[i] answers the i-th image search; missing entries are empty.
	imageResults [][]Candidate
	imageErr     error
	imageCalls   int
}

func (f *fakeSearcher) SearchByText(_ context.Context, query string, k int) ([]Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textQueries = append(f.textQueries, query)
	f.textKs = append(f.textKs, k)
	if f.textErr != nil {
		return nil, f.textErr
	}
	if len(f.textResults) > k {
		return f.textResults[:k], nil
	}
	return f.textResults, nil
}

func (f *fakeSearcher) SearchByImage(_ context.Context, _ []byte, _ int, _ float64) ([]Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.imageCalls
	f.imageCalls++
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	if call < len(f.imageResults) {
		return f.imageResults[call], nil
	}
	return nil, nil
}

func (f *fakeSearcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.imageCalls + len(f.textQueries)
}

type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
	hook    func()
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.hook != nil {
		f.hook()
	}
	return f.reply, f.err
}

func (f *fakeCompleter) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}
