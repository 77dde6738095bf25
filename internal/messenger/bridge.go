// Package messenger connects a Facebook page webhook to the chat service.
package messenger

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"smartrag.com/shop-assistant/internal/config"
	"smartrag.com/shop-assistant/internal/core"
)

const (
	maxAttachmentBytes = 10 << 20
	maxWebhookBytes    = 1 << 20

	signatureHeader = "X-Hub-Signature-256"
)

type ChatResponder interface {
	HandleMessage(ctx context.Context, req core.ChatRequest) (*core.ChatResponse, error)
}

type Sender interface {
	SendText(ctx context.Context, recipientID, text string) error
}

// BridgeConfig holds the page's webhook credentials. AppSecret signs every
// event delivery; without it all events are rejected.
type BridgeConfig struct {
	VerifyToken string
	AppSecret   string
}

type Bridge struct {
	chat       ChatResponder
	sender     Sender
	cfg        BridgeConfig
	persona    *config.Persona
	downloader *http.Client
}

func NewBridge(chat ChatResponder, sender Sender, cfg BridgeConfig, persona *config.Persona) *Bridge {
	if persona == nil {
		persona = config.DefaultPersona()
	}
	return &Bridge{
		chat:       chat,
		sender:     sender,
		cfg:        cfg,
		persona:    persona,
		downloader: &http.Client{Timeout: 30 * time.Second},
	}
}

// VerifyHandler answers the platform's subscription handshake.
func (b *Bridge) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if b.cfg.VerifyToken == "" || q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != b.cfg.VerifyToken {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, q.Get("hub.challenge"))
}

type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Messaging []messagingEvent `json:"messaging"`
	} `json:"entry"`
}

type messagingEvent struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Message *inboundMessage `json:"message"`
}

type inboundMessage struct {
	IsEcho      bool         `json:"is_echo"`
	Text        string       `json:"text"`
	Attachments []attachment `json:"attachments"`
}

type attachment struct {
	Type    string `json:"type"`
	Payload struct {
		URL string `json:"url"`
	} `json:"payload"`
}

// ReceiveHandler processes inbound page events. Deliveries without a valid
// signature get 403. Signed deliveries always get 200 so the platform does
// not redeliver; failures are reported to the customer instead.
func (b *Bridge) ReceiveHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	if !b.validSignature(body, r.Header.Get(signatureHeader)) {
		log.Printf("Rejecting webhook delivery with a bad signature from %s", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Printf("Ignoring undecodable webhook body: %v", err)
		writeOK(w)
		return
	}
	if payload.Object != "page" {
		writeOK(w)
		return
	}

	for _, entry := range payload.Entry {
		for _, event := range entry.Messaging {
			if event.Message == nil || event.Message.IsEcho || event.Sender.ID == "" {
				continue
			}
			b.handleEvent(r.Context(), event.Sender.ID, event.Message)
		}
	}
	writeOK(w)
}

// validSignature checks header ("sha256=<hex>") against the HMAC-SHA256 of
// body keyed with the app secret.
func (b *Bridge) validSignature(body []byte, header string) bool {
	if b.cfg.AppSecret == "" {
		return false
	}
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(b.cfg.AppSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func (b *Bridge) handleEvent(ctx context.Context, senderID string, msg *inboundMessage) {
	req := core.ChatRequest{SessionID: senderID, Text: msg.Text}

	if len(msg.Attachments) > 0 && msg.Attachments[0].Type == "image" {
		img, err := b.download(ctx, msg.Attachments[0].Payload.URL)
		if err != nil {
			log.Printf("Failed to download image from %s: %v", senderID, err)
			b.reply(ctx, senderID, b.persona.Replies.ImageDownloadFailed)
			return
		}
		req.Images = [][]byte{img}
	}

	if req.Text == "" && len(req.Images) == 0 {
		b.reply(ctx, senderID, b.persona.Replies.EmptyMessage)
		return
	}

	resp, err := b.chat.HandleMessage(ctx, req)
	if err != nil {
		log.Printf("Chat service failed for %s: %v", senderID, err)
		b.reply(ctx, senderID, b.persona.Replies.Apology)
		return
	}
	b.reply(ctx, senderID, resp.Reply)
}

var errInsecureAttachment = errors.New("attachment url must be https")

func (b *Bridge) download(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "https" || u.Host == "" {
		return nil, errInsecureAttachment
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.downloader.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attachment download returned %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxAttachmentBytes {
		return nil, fmt.Errorf("attachment exceeds %d bytes", maxAttachmentBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("attachment is empty")
	}
	return data, nil
}

func (b *Bridge) reply(ctx context.Context, recipientID, text string) {
	if err := b.sender.SendText(ctx, recipientID, text); err != nil {
		log.Printf("Error sending message to %s: %v", recipientID, err)
	}
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
