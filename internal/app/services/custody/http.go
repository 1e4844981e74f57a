package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/NairaLink/chat_layer/internal/app/domain/money"
	"github.com/NairaLink/chat_layer/pkg/logger"
)

// HTTPGateway implements Gateway against the chain RPC bridge's REST
// surface.
type HTTPGateway struct {
	client   *http.Client
	endpoint string
	apiKey   string
	log      *logger.Logger
}

var _ Gateway = (*HTTPGateway)(nil)

// NewHTTPGateway creates a gateway client for the given endpoint.
func NewHTTPGateway(client *http.Client, endpoint, apiKey string, log *logger.Logger) (*HTTPGateway, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("custody endpoint is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("custody")
	}
	return &HTTPGateway{client: client, endpoint: endpoint, apiKey: apiKey, log: log}, nil
}

type txResponse struct {
	TxID   string `json:"tx_id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (g *HTTPGateway) BalanceOf(ctx context.Context, address, token string) (money.Amount, error) {
	var out struct {
		Balance int64  `json:"balance"`
		Error   string `json:"error"`
	}
	err := g.post(ctx, "/balance", map[string]string{"address": address, "token": token}, &out)
	if err != nil {
		return 0, err
	}
	if out.Error != "" {
		return 0, fmt.Errorf("balance query: %s", out.Error)
	}
	return money.Amount(out.Balance), nil
}

func (g *HTTPGateway) Deposit(ctx context.Context, signer, token string, amount money.Amount) (string, error) {
	return g.submit(ctx, "/deposit", map[string]any{
		"signer": signer, "token": token, "amount": int64(amount),
	})
}

func (g *HTTPGateway) Transfer(ctx context.Context, signer, recipient string, amount money.Amount) (string, error) {
	return g.submit(ctx, "/transfer", map[string]any{
		"signer": signer, "recipient": recipient, "amount": int64(amount),
	})
}

func (g *HTTPGateway) Withdraw(ctx context.Context, signer, token string, amount money.Amount, destination string) (string, error) {
	return g.submit(ctx, "/withdraw", map[string]any{
		"signer": signer, "token": token, "amount": int64(amount), "destination": destination,
	})
}

func (g *HTTPGateway) TransactionStatus(ctx context.Context, txID string) (TxStatus, error) {
	var out txResponse
	if err := g.post(ctx, "/tx/status", map[string]string{"tx_id": txID}, &out); err != nil {
		return "", err
	}
	switch out.Status {
	case "confirmed":
		return TxConfirmed, nil
	case "reverted":
		return TxReverted, nil
	default:
		return TxPending, nil
	}
}

func (g *HTTPGateway) submit(ctx context.Context, path string, payload map[string]any) (string, error) {
	var out txResponse
	if err := g.post(ctx, path, payload, &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", fmt.Errorf("%s: %s", strings.TrimPrefix(path, "/"), out.Error)
	}
	if out.TxID == "" {
		return "", fmt.Errorf("%s: missing tx id in response", strings.TrimPrefix(path, "/"))
	}
	return out.TxID, nil
}

func (g *HTTPGateway) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("custody rpc: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("custody rpc %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
