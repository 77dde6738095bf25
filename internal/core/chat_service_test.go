package core

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"smartrag.com/shop-assistant/internal/config"
)

type chatFixture struct {
	svc       *ChatService
	searcher  *fakeSearcher
	completer *fakeCompleter
	sessions  *SessionStore
	persona   *config.Persona
}

func newChatFixture(t *testing.T, expireAfter int) *chatFixture {
	t.Helper()
	persona := config.DefaultPersona()
	searcher := &fakeSearcher{}
	completer := &fakeCompleter{reply: "ok"}
	composer, err := NewComposer(completer, persona)
	if err != nil {
		t.Fatalf("NewComposer failed: %v", err)
	}
	sessions := NewSessionStore(expireAfter, 10, time.Hour)
	orch := NewOrchestrator(searcher, OrchestratorOptions{
		ImageK:         1,
		ImageThreshold: 0.8,
		ShowAllPhrases: persona.ShowAllPhrases,
		JustOnePhrases: persona.JustOnePhrases,
	})
	return &chatFixture{
		svc:       NewChatService(NewClassifier(), orch, composer, sessions, persona),
		searcher:  searcher,
		completer: completer,
		sessions:  sessions,
		persona:   persona,
	}
}

func TestHandleMessage_PriceWithoutContextAsksForPhoto(t *testing.T) {
	f := newChatFixture(t, 20)

	resp, err := f.svc.HandleMessage(context.Background(), ChatRequest{SessionID: "s1", Text: "pp"})
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if resp.Reply != f.persona.Replies.NeedPhoto {
		t.Fatalf("reply = %q", resp.Reply)
	}
	if resp.Intent != "price_inquiry" || len(resp.RelatedProducts) != 0 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if f.searcher.calls() != 0 || f.completer.calls() != 0 {
		t.Fatalf("canned reply should not search or generate")
	}
	sess := f.sessions.Get("s1")
	if sess.MessageCount != 1 || len(sess.LastProducts) != 0 {
		t.Fatalf("session = %+v", sess)
	}
}

func TestHandleMessage_ImageThenBargain(t *testing.T) {
	f := newChatFixture(t, 20)
	boot := candidate(product(3, "Chelsea Boot", "CB3", 750, 600), ModalityImage)
	f.searcher.imageResults = [][]Candidate{{boot}}
	f.completer.reply = "এটি Chelsea Boot, দাম ৭৫০ টাকা। অর্ডার করবেন?"

	resp, err := f.svc.HandleMessage(context.Background(), ChatRequest{
		SessionID: "s1",
		Images:    [][]byte{[]byte("photo")},
	})
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if resp.Intent != "product_search" || len(resp.RelatedProducts) != 1 || resp.RelatedProducts[0].Name != "Chelsea Boot" {
		t.Fatalf("unexpected response %+v", resp)
	}
	prompt := f.completer.lastPrompt()
	if !strings.Contains(prompt, "Chelsea Boot") || !strings.Contains(prompt, "750") {
		t.Fatalf("prompt lacks the product:\n%s", prompt)
	}
	if !strings.Contains(prompt, f.persona.ImageOnlyQuery) {
		t.Fatalf("image-only turn should use the stand-in query")
	}
	if strings.Contains(prompt, "600") {
		t.Fatalf("prompt leaked the marginal price")
	}
	sess := f.sessions.Get("s1")
	if len(sess.LastProducts) != 1 || sess.LastProducts[0].Product.ID != 3 {
		t.Fatalf("last products = %+v", sess.LastProducts)
	}

	f.completer.reply = "ঠিক আছে, আপনার জন্য ৫৫০ টাকা। অর্ডার কনফার্ম করবেন?"
	resp, err = f.svc.HandleMessage(context.Background(), ChatRequest{SessionID: "s1", Text: "দাম কমানো যায়?"})
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if resp.Intent != "bargaining" {
		t.Fatalf("intent = %s", resp.Intent)
	}
	if resp.Reply != "ঠিক আছে, আপনার জন্য ৬০০ টাকা। অর্ডার কনফার্ম করবেন?" {
		t.Fatalf("reply = %q", resp.Reply)
	}
	if f.searcher.imageCalls != 1 || len(f.searcher.textQueries) != 0 {
		t.Fatalf("bargaining should reuse session products")
	}
	if got := f.sessions.Get("s1"); got.MessageCount != 2 || len(got.Transcript) != 2 {
		t.Fatalf("session = %+v", got)
	}
}

func TestHandleMessage_ImageWithoutMatchesClearsProducts(t *testing.T) {
	f := newChatFixture(t, 20)
	f.sessions.SetLastProducts("s1", []Candidate{candidate(product(1, "Old", "O1", 500, 400), ModalityImage)})

	if _, err := f.svc.HandleMessage(context.Background(), ChatRequest{SessionID: "s1", Images: [][]byte{[]byte("x")}}); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if got := f.sessions.Get("s1"); len(got.LastProducts) != 0 {
		t.Fatalf("last products = %+v", got.LastProducts)
	}
}

func TestHandleMessage_RejectsEmptyInput(t *testing.T) {
	f := newChatFixture(t, 20)
	_, err := f.svc.HandleMessage(context.Background(), ChatRequest{SessionID: "s1", Text: "   ", Images: [][]byte{{}}})
	if !errors.Is(err, ErrNoInput) {
		t.Fatalf("err = %v, want ErrNoInput", err)
	}
	if f.sessions.Len() != 0 {
		t.Fatalf("rejected input must not create a session")
	}
}

func TestHandleMessage_AssignsSessionID(t *testing.T) {
	f := newChatFixture(t, 20)
	resp, err := f.svc.HandleMessage(context.Background(), ChatRequest{Text: "hello"})
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if resp.SessionID == "" || f.sessions.Get(resp.SessionID).MessageCount != 1 {
		t.Fatalf("session id %q not tracked", resp.SessionID)
	}
}

func TestHandleMessage_ResponseNeverCarriesMarginalPrice(t *testing.T) {
	f := newChatFixture(t, 20)
	f.searcher.textResults = []Candidate{candidate(product(3, "Chelsea Boot", "CB3", 750, 600), ModalityText)}

	resp, err := f.svc.HandleMessage(context.Background(), ChatRequest{SessionID: "s1", Text: "show me boots"})
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(raw), "marginal") || strings.Contains(string(raw), "600") {
		t.Fatalf("response leaked the marginal price: %s", raw)
	}
}

func TestHandleMessage_CancelledRequestLeavesSessionUntouched(t *testing.T) {
	f := newChatFixture(t, 20)
	f.searcher.textResults = []Candidate{candidate(product(3, "Chelsea Boot", "CB3", 750, 600), ModalityText)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.completer.hook = cancel

	_, err := f.svc.HandleMessage(ctx, ChatRequest{SessionID: "s1", Text: "show me boots"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	sess := f.sessions.Get("s1")
	if sess.MessageCount != 0 || len(sess.Transcript) != 0 || len(sess.LastProducts) != 0 {
		t.Fatalf("session mutated: %+v", sess)
	}
}

func TestHandleMessage_SessionExpires(t *testing.T) {
	f := newChatFixture(t, 3)
	for i := 0; i < 2; i++ {
		if _, err := f.svc.HandleMessage(context.Background(), ChatRequest{SessionID: "s1", Text: "thanks"}); err != nil {
			t.Fatalf("HandleMessage failed: %v", err)
		}
	}
	if got := f.sessions.Get("s1"); got.MessageCount != 2 || len(got.Transcript) != 2 {
		t.Fatalf("session = %+v", got)
	}
	if _, err := f.svc.HandleMessage(context.Background(), ChatRequest{SessionID: "s1", Text: "thanks"}); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if got := f.sessions.Get("s1"); got.MessageCount != 0 || len(got.Transcript) != 0 {
		t.Fatalf("session should have expired: %+v", got)
	}
	if f.sessions.Len() != 0 {
		t.Fatalf("expired session should be purged, Len = %d", f.sessions.Len())
	}
}

func TestHandleMessage_AnonymousTurnsDoNotAccumulate(t *testing.T) {
	f := newChatFixture(t, 2)
	for i := 0; i < 100; i++ {
		resp, err := f.svc.HandleMessage(context.Background(), ChatRequest{Text: "pp"})
		if err != nil {
			t.Fatalf("HandleMessage failed: %v", err)
		}
		if _, err := f.svc.HandleMessage(context.Background(), ChatRequest{SessionID: resp.SessionID, Text: "pp"}); err != nil {
			t.Fatalf("HandleMessage failed: %v", err)
		}
	}
	if f.sessions.Len() != 0 {
		t.Fatalf("Len = %d, want 0", f.sessions.Len())
	}
}

func TestHandleMessage_GenerationFailureIsDegraded(t *testing.T) {
	f := newChatFixture(t, 20)
	f.completer.err = errors.New("quota")

	resp, err := f.svc.HandleMessage(context.Background(), ChatRequest{SessionID: "s1", Text: "thanks"})
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if resp.Reply != f.persona.Replies.Apology || !resp.Degraded {
		t.Fatalf("unexpected response %+v", resp)
	}
}
