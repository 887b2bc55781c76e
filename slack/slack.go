// Package slack posts notifications to an incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"mealwise"
)

const maxErrorBody = 256

type payload struct {
	Channel  string `json:"channel,omitempty"`
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
}

type Client struct {
	webhookURL string
	username   string
	httpClient mealwise.HTTPClient
}

var _ mealwise.SlackClient = (*Client)(nil)

func NewClient(webhookURL string, httpClient mealwise.HTTPClient) *Client {
	return &Client{
		webhookURL: webhookURL,
		username:   "mealwise",
		httpClient: httpClient,
	}
}

func (c *Client) PostMessage(ctx context.Context, channel string, message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("refusing to post an empty message")
	}
	body, err := json.Marshal(payload{Channel: channel, Text: message, Username: c.username})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("failed to post message: %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	slog.Info("SLACK: Message posted", "channel", channel, "bytes", len(message))
	return nil
}

// Nop drops every message. It stands in when no webhook is configured.
type Nop struct{}

func (Nop) PostMessage(_ context.Context, channel string, _ string) error {
	slog.Debug("SLACK: Webhook not configured, message dropped", "channel", channel)
	return nil
}

// FromConfig returns a webhook client, or Nop when cfg has no webhook URL.
func FromConfig(cfg mealwise.NotifyConfig, httpClient mealwise.HTTPClient) mealwise.SlackClient {
	if cfg.SlackWebhookURL == "" {
		return Nop{}
	}
	return NewClient(cfg.SlackWebhookURL, httpClient)
}
