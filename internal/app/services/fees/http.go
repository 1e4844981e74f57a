package fees

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/NairaLink/chat_layer/pkg/logger"
)

// HTTPPriceSource implements PriceSource against a price oracle's REST
// surface.
type HTTPPriceSource struct {
	client   *http.Client
	endpoint string
	apiKey   string
	log      *logger.Logger
}

var _ PriceSource = (*HTTPPriceSource)(nil)

// NewHTTPPriceSource creates a price source client for the given endpoint.
func NewHTTPPriceSource(client *http.Client, endpoint, apiKey string, log *logger.Logger) (*HTTPPriceSource, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("oracle endpoint is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("price-oracle")
	}
	return &HTTPPriceSource{client: client, endpoint: endpoint, apiKey: apiKey, log: log}, nil
}

// Fetch returns the oracle's current gas price and FX rate. The fx_rate
// field is expected pre-scaled by FXScale.
func (s *HTTPPriceSource) Fetch(ctx context.Context) (int64, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/prices", nil)
	if err != nil {
		return 0, 0, fmt.Errorf("build request: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("price oracle: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, 0, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("price oracle: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		GasPrice int64  `json:"gas_price"`
		FXRate   int64  `json:"fx_rate"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, 0, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return 0, 0, fmt.Errorf("price oracle: %s", out.Error)
	}
	if out.GasPrice <= 0 || out.FXRate <= 0 {
		return 0, 0, fmt.Errorf("price oracle: non-positive prices (gas %d, fx %d)", out.GasPrice, out.FXRate)
	}
	return out.GasPrice, out.FXRate, nil
}
