package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// ProviderClient fetches daily quotations from an external rate feed.
type ProviderClient struct {
	endpoint string
	client   *http.Client
}

// NewProviderClient builds a client for the configured feed. An empty endpoint
// disables refreshing.
func NewProviderClient(endpoint string) *ProviderClient {
	return &ProviderClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Enabled reports whether a feed endpoint is configured.
func (c *ProviderClient) Enabled() bool {
	return c != nil && c.endpoint != ""
}

type providerResponse struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// FetchLatest retrieves quotations against the base currency.
func (c *ProviderClient) FetchLatest(ctx context.Context, base string) ([]ExchangeRate, error) {
	if !c.Enabled() {
		return nil, nil
	}
	url := fmt.Sprintf("%s?base=%s", c.endpoint, base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fx: fetch rates: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fx: provider status %d", resp.StatusCode)
	}
	var payload providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("fx: decode provider payload: %w", err)
	}
	rateDate, err := time.Parse("2006-01-02", payload.Date)
	if err != nil {
		rateDate = time.Now().UTC().Truncate(24 * time.Hour)
	}
	// The feed quotes units of foreign currency per one base unit; postings
	// need foreign -> base, so the stored rate is the inverse.
	rates := make([]ExchangeRate, 0, len(payload.Rates))
	for code, value := range payload.Rates {
		if !ValidCode(code) || value <= 0 {
			continue
		}
		rates = append(rates, ExchangeRate{
			FromCode: code,
			ToCode:   payload.Base,
			Rate:     decimal.NewFromInt(1).Div(decimal.NewFromFloat(value)),
			RateDate: rateDate,
			Source:   "provider",
		})
	}
	return rates, nil
}
