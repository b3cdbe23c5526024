package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/automarket/consignment-service/internal/domain/entity"
)

const valuationRequestTimeout = 30 * time.Second

// Estimate is the valuation engine's answer for one submitted item.
type Estimate struct {
	Price         float64           `json:"price"`
	PriceRangeMin float64           `json:"price_range_min"`
	PriceRangeMax float64           `json:"price_range_max"`
	Confidence    entity.Confidence `json:"confidence"`
}

// ValuationClient calls the external pricing engine. Consumed once at item
// creation; valuation quality is entirely the engine's concern.
type ValuationClient interface {
	Estimate(ctx context.Context, title, description string, condition entity.Condition, defects string) (*Estimate, error)
}

type ValuationClientConfig struct {
	Address string
	APIKey  string
}

type valuationHTTPClient struct {
	cfg  ValuationClientConfig
	http *http.Client
}

func NewValuationClient(cfg ValuationClientConfig) (ValuationClient, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valuation engine address is not configured")
	}
	return &valuationHTTPClient{
		cfg:  cfg,
		http: &http.Client{Timeout: valuationRequestTimeout},
	}, nil
}

func (c *valuationHTTPClient) Estimate(ctx context.Context, title, description string, condition entity.Condition, defects string) (*Estimate, error) {
	payload, err := json.Marshal(map[string]string{
		"title":       title,
		"description": description,
		"condition":   string(condition),
		"defects":     defects,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode valuation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Address+"/v1/estimate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build valuation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("valuation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("valuation engine returned %d: %s", resp.StatusCode, string(raw))
	}

	var estimate Estimate
	if err := json.NewDecoder(resp.Body).Decode(&estimate); err != nil {
		return nil, fmt.Errorf("failed to decode valuation response: %w", err)
	}
	if estimate.Price <= 0 {
		return nil, fmt.Errorf("valuation engine returned non-positive price %.2f", estimate.Price)
	}
	if estimate.Confidence == "" {
		estimate.Confidence = entity.ConfidenceMedium
	}
	return &estimate, nil
}
