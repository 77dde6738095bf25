package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"text/template"

	"github.com/shopspring/decimal"
	"smartrag.com/shop-assistant/internal/config"
)

// ErrEmptyCompletion is returned when the model answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Branch string

const (
	BranchGreeting          Branch = "greeting"
	BranchLookAlike         Branch = "look_alike"
	BranchNeedPhoto         Branch = "need_photo"
	BranchSizePrompt        Branch = "size_prompt"
	BranchPolicy            Branch = "policy"
	BranchSearchUnavailable Branch = "search_unavailable"
	BranchGenerative        Branch = "generative"
	BranchFallback          Branch = "fallback"
)

type ComposeInput struct {
	Intent            Intent
	Utterance         string
	Context           string
	Transcript        []Turn
	Candidates        []Candidate
	SearchUnavailable bool
}

type Composition struct {
	Reply          string
	Branch         Branch
	PriceCorrected bool
}

// PromptData is what the persona's prompt template is executed with.
type PromptData struct {
	ShopName  string
	Tone      string
	Language  string
	Intent    string
	Policy    string
	Context   string
	History   []Turn
	Utterance string
}

type Composer struct {
	completer Completer
	persona   *config.Persona
	prompt    *template.Template

	// amounts quoted in the policy blocks, exempt from the price floor
	policyAmounts []decimal.Decimal
}

func NewComposer(completer Completer, persona *config.Persona) (*Composer, error) {
	if persona == nil {
		persona = config.DefaultPersona()
	}
	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(persona.PromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	pol := persona.Policies
	return &Composer{
		completer:     completer,
		persona:       persona,
		prompt:        tmpl,
		policyAmounts: PriceAmounts(pol.Delivery + "\n" + pol.Return + "\n" + pol.SizeChart),
	}, nil
}

// Compose picks a canned reply when the turn must not reach the model and
// otherwise generates one. It never fails; generation errors become the
// apology reply.
func (c *Composer) Compose(ctx context.Context, in ComposeInput) Composition {
	replies := c.persona.Replies
	lower := strings.ToLower(in.Utterance)

	switch {
	case in.Intent == IntentGreeting && in.Context == "":
		return Composition{Reply: replies.Greeting, Branch: BranchGreeting}

	case containsAny(lower, c.persona.LookAlikePhrases):
		return Composition{Reply: replies.LookAlike, Branch: BranchLookAlike}

	case isPolicyIntent(in.Intent) && in.Context == "":
		return Composition{Reply: c.policyText(in.Intent), Branch: BranchPolicy}

	case in.SearchUnavailable && len(in.Candidates) == 0:
		return Composition{Reply: replies.SearchUnavailable, Branch: BranchSearchUnavailable}

	case in.Intent == IntentPriceInquiry && in.Context == "":
		return Composition{Reply: replies.NeedPhoto, Branch: BranchNeedPhoto}

	case in.Intent == IntentOrderInquiry && c.hasSizeVariants(in.Candidates):
		return Composition{Reply: replies.SizePrompt + "\n" + replies.OrderForm, Branch: BranchSizePrompt}
	}

	return c.generate(ctx, in)
}

func (c *Composer) generate(ctx context.Context, in ComposeInput) Composition {
	prompt, err := c.renderPrompt(in)
	if err != nil {
		log.Printf("Failed to render prompt: %v", err)
		generativeFallbacksTotal.Inc()
		return Composition{Reply: c.persona.Replies.Apology, Branch: BranchFallback}
	}

	reply, err := c.completer.Complete(ctx, prompt)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = ErrEmptyCompletion
	}
	if err != nil {
		log.Printf("Generative completion failed, sending apology: %v", err)
		generativeFallbacksTotal.Inc()
		return Composition{Reply: c.persona.Replies.Apology, Branch: BranchFallback}
	}
	reply = strings.TrimSpace(reply)

	out := Composition{Reply: reply, Branch: BranchGenerative}
	if in.Intent == IntentBargaining && len(in.Candidates) > 0 {
		floor := in.Candidates[0].Product.MarginalPrice
		if corrected, changed := EnforcePriceFloor(reply, floor, c.policyAmounts...); changed {
			log.Printf("Generated offer was below the floor for %q, corrected.", in.Candidates[0].Product.Name)
			priceCorrectionsTotal.Inc()
			out.Reply = corrected
			out.PriceCorrected = true
		}
	}
	return out
}

func (c *Composer) renderPrompt(in ComposeInput) (string, error) {
	data := PromptData{
		ShopName:  c.persona.ShopName,
		Tone:      c.persona.Tone,
		Language:  c.persona.Language,
		Intent:    in.Intent.String(),
		Context:   in.Context,
		History:   in.Transcript,
		Utterance: in.Utterance,
	}
	switch {
	case isPolicyIntent(in.Intent):
		data.Policy = c.policyText(in.Intent)
	case in.Intent == IntentOrderInquiry:
		data.Policy = c.persona.Replies.OrderForm
	}

	var b strings.Builder
	if err := c.prompt.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func isPolicyIntent(intent Intent) bool {
	switch intent {
	case IntentDeliveryInquiry, IntentReturnPolicy, IntentSizeChart:
		return true
	}
	return false
}

func (c *Composer) policyText(intent Intent) string {
	switch intent {
	case IntentDeliveryInquiry:
		return c.persona.Policies.Delivery
	case IntentReturnPolicy:
		return c.persona.Policies.Return
	case IntentSizeChart:
		return c.persona.Policies.SizeChart
	}
	return ""
}

func (c *Composer) hasSizeVariants(cands []Candidate) bool {
	for _, cand := range cands {
		if containsAny(strings.ToLower(cand.Product.Description), c.persona.SizeMarkers) {
			return true
		}
	}
	return false
}
