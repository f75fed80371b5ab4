package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/classplay/novodash/internal/config"
)

// ErrMissingWebhook is returned when the client is constructed without
// a webhook URL.
var ErrMissingWebhook = errors.New("slack: missing webhook URL")

// Client posts messages to a Slack incoming webhook.
type Client struct {
	webhookURL string
	httpClient *http.Client
	logger     *zap.Logger
}

func New(cfg config.SlackConfig, logger *zap.Logger) (*Client, error) {
	if cfg.WebhookURL == "" {
		return nil, ErrMissingWebhook
	}
	return &Client{
		webhookURL: cfg.WebhookURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}, nil
}

// SendText delivers a plain-text message and returns the webhook's
// HTTP status code. Slack answers 200 with body "ok" on success.
func (c *Client) SendText(ctx context.Context, text string) (int, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return 0, fmt.Errorf("slack: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("slack: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("slack: send: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("slack webhook rejected message",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body))
		return resp.StatusCode, fmt.Errorf("slack: webhook status %d", resp.StatusCode)
	}
	c.logger.Debug("slack message delivered", zap.Int("chars", len(text)))
	return resp.StatusCode, nil
}
