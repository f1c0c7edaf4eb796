package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

// Mail is one outgoing message handed to the relay.
type Mail struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// RelayClient posts rendered mail to an HTTP mail relay (transactional mail API).
type RelayClient struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewRelayClient returns a client for the relay at baseURL authenticated with apiKey.
func NewRelayClient(apiKey, baseURL string) *RelayClient {
	return &RelayClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Send posts m to the relay. Does not log the body.
func (c *RelayClient) Send(ctx context.Context, m Mail) error {
	if c.BaseURL == "" {
		return fmt.Errorf("mailer: relay URL not configured")
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("mailer: relay failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
