// Package embedding holds clients for embedding models that run outside the
// Gemini API.
package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CLIPClient talks to an image-embedding sidecar that serves
// POST /embed {"image": "<base64>"} -> {"embedding": [...]}.
// It does not retry.
type CLIPClient struct {
	baseURL string
	client  *http.Client
}

type CLIPConfig struct {
	BaseURL string
	Timeout time.Duration
}

func NewCLIPClient(cfg CLIPConfig) *CLIPClient {
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	return &CLIPClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: t},
	}
}

func (c *CLIPClient) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	if len(image) == 0 {
		return nil, errors.New("image is empty")
	}
	data, err := json.Marshal(map[string]string{"image": base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image embedder request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("image embedder failed: %s: %s", resp.Status, bytes.TrimSpace(snippet))
	}

	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode image embedding: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, errors.New("no embedding data received from image embedder")
	}
	return out.Embedding, nil
}
