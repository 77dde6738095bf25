package core

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Searcher is the candidate-store contract the orchestrator depends on.
type Searcher interface {
	SearchByText(ctx context.Context, query string, k int) ([]Candidate, error)
	SearchByImage(ctx context.Context, image []byte, k int, threshold float64) ([]Candidate, error)
}

type RetrievalSource string

const (
	SourceNone    RetrievalSource = "none"
	SourceImage   RetrievalSource = "image"
	SourceText    RetrievalSource = "text"
	SourceSession RetrievalSource = "session"
)

const (
	defaultTextK        = 1
	productSearchTextK  = 3
	showAllTextK        = 5
	imageFallbackTextK  = 3
	defaultImageK       = 1
	defaultImageMinimum = 0.8
)

type RetrieveRequest struct {
	Intent          Intent
	Confidence      float64
	Utterance       string
	Images          [][]byte
	SessionProducts []Candidate
}

type Retrieval struct {
	Candidates []Candidate
	Context    string
	// Replaced is set when a fresh image supersedes the session's products,
	// even if the new search found nothing.
	Replaced    bool
	Source      RetrievalSource
	Unavailable []Modality
}

type OrchestratorOptions struct {
	ImageK         int
	ImageThreshold float64
	ShowAllPhrases []string
	JustOnePhrases []string
}

// Orchestrator decides whether and how to search for a turn.
type Orchestrator struct {
	search Searcher
	opts   OrchestratorOptions
}

func NewOrchestrator(search Searcher, opts OrchestratorOptions) *Orchestrator {
	if opts.ImageK <= 0 {
		opts.ImageK = defaultImageK
	}
	if opts.ImageThreshold <= 0 {
		opts.ImageThreshold = defaultImageMinimum
	}
	return &Orchestrator{search: search, opts: opts}
}

// reusesSessionProducts reports intents that answer about the item already
// under discussion.
func reusesSessionProducts(intent Intent) bool {
	switch intent {
	case IntentPriceInquiry, IntentOrderInquiry, IntentImageRequest, IntentBargaining:
		return true
	}
	return false
}

func (o *Orchestrator) Retrieve(ctx context.Context, req RetrieveRequest) Retrieval {
	res := Retrieval{Source: SourceNone}
	text := strings.TrimSpace(req.Utterance)
	var found []Candidate

	switch {
	case len(req.Images) > 0:
		res.Replaced = true
		res.Source = SourceImage
		failed := 0
		for i, img := range req.Images {
			cands, err := o.search.SearchByImage(ctx, img, o.opts.ImageK, o.opts.ImageThreshold)
			if err != nil {
				log.Printf("Image search %d/%d failed: %v", i+1, len(req.Images), err)
				failed++
				continue
			}
			found = append(found, cands...)
		}
		if failed > 0 {
			res.Unavailable = append(res.Unavailable, ModalityImage)
			searchUnavailableTotal.WithLabelValues(string(ModalityImage)).Inc()
		}
		if failed == len(req.Images) && text != "" && ctx.Err() == nil {
			log.Printf("Image search unavailable, falling back to text search.")
			cands, err := o.searchText(ctx, text, imageFallbackTextK, &res)
			if err == nil {
				found = append(found, cands...)
				res.Source = SourceText
			}
		}

	case reusesSessionProducts(req.Intent) && len(req.SessionProducts) > 0:
		res.Source = SourceSession
		found = append(found, req.SessionProducts...)

	case ShouldSearchProducts(req.Intent, req.Confidence) && text != "":
		cands, err := o.searchText(ctx, text, o.textK(req.Intent, text), &res)
		if err == nil {
			found = cands
			res.Source = SourceText
		}
	}

	res.Candidates = Deduplicate(found)
	res.Context = RenderContext(res.Candidates)
	return res
}

func (o *Orchestrator) searchText(ctx context.Context, text string, k int, res *Retrieval) ([]Candidate, error) {
	cands, err := o.search.SearchByText(ctx, text, k)
	if err != nil {
		log.Printf("Text search failed: %v", err)
		res.Unavailable = append(res.Unavailable, ModalityText)
		searchUnavailableTotal.WithLabelValues(string(ModalityText)).Inc()
		return nil, err
	}
	return cands, nil
}

// textK picks the result count: three for product searches, one otherwise,
// five when the user asks to see everything and one when they single out
// an item.
func (o *Orchestrator) textK(intent Intent, text string) int {
	k := defaultTextK
	if intent == IntentProductSearch {
		k = productSearchTextK
	}
	lower := strings.ToLower(text)
	if containsAny(lower, o.opts.ShowAllPhrases) {
		k = showAllTextK
	}
	if containsAny(lower, o.opts.JustOnePhrases) {
		k = defaultTextK
	}
	return k
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && strings.Contains(text, p) {
			return true
		}
	}
	return false
}

type productKey struct {
	name, code string
}

// Deduplicate keeps the first candidate per (name, code) identity,
// whitespace-trimmed, preserving order.
func Deduplicate(cands []Candidate) []Candidate {
	seen := make(map[productKey]struct{}, len(cands))
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		key := productKey{strings.TrimSpace(c.Product.Name), strings.TrimSpace(c.Product.Code)}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// RenderContext formats candidates for the prompt. The marginal price is
// never included.
func RenderContext(cands []Candidate) string {
	if len(cands) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Available products:\n")
	for _, c := range cands {
		p := c.Product
		fmt.Fprintf(&b, "- Name: %s, Price: %s, Description: %s Link: %s\n",
			strings.TrimSpace(p.Name), p.Price.String(), strings.TrimSpace(p.Description), p.Link)
	}
	return strings.TrimRight(b.String(), "\n")
}
