package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// GraphClient sends replies through the Messenger Send API.
type GraphClient struct {
	endpoint    string
	accessToken string
	client      *http.Client
}

type GraphConfig struct {
	URL         string
	AccessToken string
	Timeout     time.Duration
}

func NewGraphClient(cfg GraphConfig) *GraphClient {
	t := cfg.Timeout
	if t == 0 {
		t = 15 * time.Second
	}
	return &GraphClient{
		endpoint:    cfg.URL,
		accessToken: cfg.AccessToken,
		client:      &http.Client{Timeout: t},
	}
}

type sendRequest struct {
	MessagingType string      `json:"messaging_type"`
	Recipient     recipient   `json:"recipient"`
	Message       textMessage `json:"message"`
}

type recipient struct {
	ID string `json:"id"`
}

type textMessage struct {
	Text string `json:"text"`
}

func (c *GraphClient) SendText(ctx context.Context, recipientID, text string) error {
	data, err := json.Marshal(sendRequest{
		MessagingType: "RESPONSE",
		Recipient:     recipient{ID: recipientID},
		Message:       textMessage{Text: text},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal send request: %w", err)
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("invalid graph url: %w", err)
	}
	q := u.Query()
	q.Set("access_token", c.accessToken)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send api returned %s: %s", resp.Status, bytes.TrimSpace(snippet))
	}
	return nil
}
