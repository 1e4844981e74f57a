// Package kyc wraps the external identity verification capability.
package kyc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/NairaLink/chat_layer/internal/app/domain/user"
	"github.com/NairaLink/chat_layer/pkg/logger"
)

// Verifier performs identity verification and returns the resulting tier.
// The call is synchronous and can be slow; callers must treat it as
// blocking I/O.
type Verifier interface {
	Verify(ctx context.Context, userID string) (user.KYCTier, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, userID string) (user.KYCTier, error)

func (f VerifierFunc) Verify(ctx context.Context, userID string) (user.KYCTier, error) {
	return f(ctx, userID)
}

// HTTPVerifier calls the external KYC provider over HTTP.
type HTTPVerifier struct {
	client   *http.Client
	endpoint string
	apiKey   string
	log      *logger.Logger
}

var _ Verifier = (*HTTPVerifier)(nil)

// NewHTTPVerifier creates a verifier client for the given endpoint.
func NewHTTPVerifier(client *http.Client, endpoint, apiKey string, log *logger.Logger) (*HTTPVerifier, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("kyc endpoint is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("kyc")
	}
	return &HTTPVerifier{client: client, endpoint: endpoint, apiKey: apiKey, log: log}, nil
}

func (v *HTTPVerifier) Verify(ctx context.Context, userID string) (user.KYCTier, error) {
	body, err := json.Marshal(map[string]string{"user_id": userID})
	if err != nil {
		return user.TierNone, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint+"/verify", bytes.NewReader(body))
	if err != nil {
		return user.TierNone, err
	}
	req.Header.Set("Content-Type", "application/json")
	if v.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return user.TierNone, fmt.Errorf("kyc provider: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return user.TierNone, err
	}
	if resp.StatusCode != http.StatusOK {
		return user.TierNone, fmt.Errorf("kyc provider: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		Tier  int    `json:"tier"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return user.TierNone, err
	}
	if out.Error != "" {
		return user.TierNone, fmt.Errorf("kyc provider: %s", out.Error)
	}
	return user.KYCTier(out.Tier), nil
}
