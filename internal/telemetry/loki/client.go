// Package loki pushes mail delivery records from the notification worker to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const job = "consultancy-auth"

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // each entry is [timestamp_ns, log_line]
}

// DeliveryRecord is the log line pushed per processed notification. It never carries the payload.
type DeliveryRecord struct {
	Kind      string `json:"kind"`
	Recipient string `json:"recipient"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// Client pushes to the Loki instance at BaseURL (e.g. http://localhost:3100).
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a Client with a bounded HTTP timeout.
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTPClient: &http.Client{Timeout: 10 * time.Second}}
}

// PushDelivery sends rec as a JSON line labelled with kind and status.
func (c *Client) PushDelivery(ctx context.Context, ts time.Time, rec DeliveryRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.Push(ctx, ts, string(line), map[string]string{"kind": rec.Kind, "status": rec.Status})
}

// Push sends a single log line. Labels are sanitized and merged with job.
func (c *Client) Push(ctx context.Context, ts time.Time, line string, labels map[string]string) error {
	if c == nil || c.BaseURL == "" {
		return fmt.Errorf("loki: base URL is empty")
	}
	streamLabels := map[string]string{"job": job}
	for k, v := range labels {
		if s := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); s != "" {
			streamLabels[k] = s
		}
	}
	payload, err := json.Marshal(PushRequest{Streams: []Stream{{
		Stream: streamLabels,
		Values: [][]string{{fmt.Sprintf("%d", ts.UnixNano()), line}},
	}}})
	if err != nil {
		return err
	}
	url := strings.TrimSuffix(c.BaseURL, "/") + "/loki/api/v1/push"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
