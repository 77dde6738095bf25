package core

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"smartrag.com/shop-assistant/internal/config"
)

// ErrNoInput rejects a message with neither text nor an image.
var ErrNoInput = errors.New("either text or an image is required")

type ChatRequest struct {
	SessionID string
	Text      string
	Images    [][]byte
}

// PublicProduct is a candidate as shown to customers. It has no marginal
// price field.
type PublicProduct struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	Code            string          `json:"code"`
	Link            string          `json:"link"`
	Images          []string        `json:"images"`
	SimilarityScore float64         `json:"similarity_score"`
	Modality        Modality        `json:"modality"`
}

func NewPublicProduct(c Candidate) PublicProduct {
	images := c.Product.Images
	if images == nil {
		images = []string{}
	}
	return PublicProduct{
		ID:              c.Product.ID,
		Name:            c.Product.Name,
		Description:     c.Product.Description,
		Price:           c.Product.Price,
		Code:            c.Product.Code,
		Link:            c.Product.Link,
		Images:          images,
		SimilarityScore: c.Score,
		Modality:        c.Modality,
	}
}

type ChatResponse struct {
	Reply           string          `json:"reply"`
	RelatedProducts []PublicProduct `json:"related_products"`
	SessionID       string          `json:"session_id"`
	Intent          string          `json:"intent"`
	Degraded        bool            `json:"degraded"`
}

// Retriever and ReplyComposer are the orchestration steps the chat service
// drives; Orchestrator and Composer implement them.
type Retriever interface {
	Retrieve(ctx context.Context, req RetrieveRequest) Retrieval
}

type ReplyComposer interface {
	Compose(ctx context.Context, in ComposeInput) Composition
}

type ChatService struct {
	classifier *Classifier
	retriever  Retriever
	composer   ReplyComposer
	sessions   *SessionStore
	persona    *config.Persona
}

func NewChatService(classifier *Classifier, retriever Retriever, composer ReplyComposer, sessions *SessionStore, persona *config.Persona) *ChatService {
	if persona == nil {
		persona = config.DefaultPersona()
	}
	return &ChatService{
		classifier: classifier,
		retriever:  retriever,
		composer:   composer,
		sessions:   sessions,
		persona:    persona,
	}
}

// HandleMessage answers one inbound message. The session is only read
// before the slow steps and written once after the reply is known, so a
// cancelled request leaves it untouched.
func (s *ChatService) HandleMessage(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	text := strings.TrimSpace(req.Text)
	images := make([][]byte, 0, len(req.Images))
	for _, img := range req.Images {
		if len(img) > 0 {
			images = append(images, img)
		}
	}
	if text == "" && len(images) == 0 {
		return nil, ErrNoInput
	}

	start := time.Now()
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	snapshot := s.sessions.Get(sessionID)
	intent, confidence := s.classifier.Classify(text, len(images) > 0)

	retrieval := s.retriever.Retrieve(ctx, RetrieveRequest{
		Intent:          intent,
		Confidence:      confidence,
		Utterance:       text,
		Images:          images,
		SessionProducts: snapshot.LastProducts,
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	utterance := text
	if utterance == "" {
		utterance = s.persona.ImageOnlyQuery
	}
	composition := s.composer.Compose(ctx, ComposeInput{
		Intent:            intent,
		Utterance:         utterance,
		Context:           retrieval.Context,
		Transcript:        snapshot.Transcript,
		Candidates:        retrieval.Candidates,
		SearchUnavailable: len(retrieval.Unavailable) > 0,
	})
	if err := ctx.Err(); err != nil {
		log.Printf("Request for session %s cancelled before commit: %v", sessionID, err)
		return nil, err
	}

	s.sessions.Commit(sessionID, TurnCommit{
		User:            utterance,
		Bot:             composition.Reply,
		Products:        retrieval.Candidates,
		ReplaceProducts: retrieval.Replaced,
	})

	chatTurnsTotal.WithLabelValues(intent.String(), string(composition.Branch)).Inc()
	chatTurnDuration.Observe(time.Since(start).Seconds())
	liveSessions.Set(float64(s.sessions.Len()))

	related := make([]PublicProduct, 0, len(retrieval.Candidates))
	for _, c := range retrieval.Candidates {
		related = append(related, NewPublicProduct(c))
	}
	return &ChatResponse{
		Reply:           composition.Reply,
		RelatedProducts: related,
		SessionID:       sessionID,
		Intent:          intent.String(),
		Degraded:        len(retrieval.Unavailable) > 0 || composition.Branch == BranchFallback,
	}, nil
}
