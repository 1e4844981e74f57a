package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/NairaLink/chat_layer/pkg/logger"
)

// HTTPSender delivers messages through the chat channel's REST API.
type HTTPSender struct {
	client   *http.Client
	endpoint string
	token    string
	log      *logger.Logger
}

var _ Sender = (*HTTPSender)(nil)

// NewHTTPSender creates a channel client for the given endpoint.
func NewHTTPSender(client *http.Client, endpoint, token string, log *logger.Logger) (*HTTPSender, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("channel endpoint is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("channel")
	}
	return &HTTPSender{client: client, endpoint: endpoint, token: token, log: log}, nil
}

// Send posts one text message to the user over the channel API.
func (s *HTTPSender) Send(ctx context.Context, userID, text string) error {
	body, err := json.Marshal(map[string]any{
		"messaging_product": "whatsapp",
		"to":                userID,
		"type":              "text",
		"text":              map[string]string{"body": text},
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("channel send: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("channel send: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}
