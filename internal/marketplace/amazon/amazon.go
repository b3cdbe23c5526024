package amazon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/automarket/consignment-service/internal/domain/entity"
	"github.com/automarket/consignment-service/internal/marketplace"
	"github.com/automarket/consignment-service/internal/platform/logger"
)

const (
	listingsAPIVersion = "2021-08-01"
	tokenExpiryMargin  = 5 * time.Minute
)

type Config struct {
	BaseURL       string
	TokenURL      string
	ClientID      string
	ClientSecret  string
	RefreshToken  string
	SellerID      string
	MarketplaceID string
	ProductType   string
}

// Adapter drives the Amazon Selling Partner listings-items API. One item maps
// to one seller SKU with quantity 1; the SKU is the platform listing id.
type Adapter struct {
	cfg  Config
	http *http.Client
	log  logger.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.BaseURL == "" || cfg.TokenURL == "" {
		return nil, errors.New("amazon base URL and token URL must be configured")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("amazon LWA credentials must be configured")
	}
	if cfg.SellerID == "" || cfg.MarketplaceID == "" {
		return nil, errors.New("amazon seller and marketplace ids must be configured")
	}
	if cfg.ProductType == "" {
		cfg.ProductType = "PRODUCT"
	}
	return &Adapter{
		cfg:  cfg,
		http: &http.Client{},
		log:  log,
	}, nil
}

func (a *Adapter) Platform() entity.Platform {
	return entity.PlatformAmazon
}

func (a *Adapter) listingURL(sku string) string {
	return fmt.Sprintf("%s/listings/%s/items/%s/%s?marketplaceIds=%s",
		a.cfg.BaseURL, listingsAPIVersion, url.PathEscape(a.cfg.SellerID), url.PathEscape(sku), url.QueryEscape(a.cfg.MarketplaceID))
}

func (a *Adapter) CreateListing(ctx context.Context, item *entity.Item) (*marketplace.ListingRef, error) {
	sku := "AUTO-" + item.ID

	body := map[string]interface{}{
		"productType": a.cfg.ProductType,
		"requirements": "LISTING_OFFER_ONLY",
		"attributes": map[string]interface{}{
			"condition_type": []map[string]interface{}{
				{"value": mapCondition(item.Condition), "marketplace_id": a.cfg.MarketplaceID},
			},
			"purchasable_offer": []map[string]interface{}{
				{
					"marketplace_id": a.cfg.MarketplaceID,
					"currency":       "USD",
					"our_price": []map[string]interface{}{
						{"schedule": []map[string]interface{}{{"value_with_tax": item.ListingPrice()}}},
					},
				},
			},
			"fulfillment_availability": []map[string]interface{}{
				{"fulfillment_channel_code": "DEFAULT", "quantity": 1},
			},
		},
	}

	var resp struct {
		SKU    string `json:"sku"`
		Status string `json:"status"`
		ASIN   string `json:"asin"`
	}
	if err := a.do(ctx, marketplace.OpCreateListing, http.MethodPut, a.listingURL(sku), body, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "" && resp.Status != "ACCEPTED" {
		return nil, marketplace.NewError(a.Platform(), marketplace.OpCreateListing, marketplace.ClassValidationRejected,
			fmt.Sprintf("submission status %s", resp.Status), nil)
	}

	ref := &marketplace.ListingRef{ListingID: sku}
	if resp.ASIN != "" {
		ref.ListingURL = "https://www.amazon.com/dp/" + resp.ASIN
	}
	a.log.Infof("Amazon listing accepted: sku=%s asin=%s", sku, resp.ASIN)
	return ref, nil
}

func (a *Adapter) EndListing(ctx context.Context, listingID string) error {
	err := a.do(ctx, marketplace.OpEndListing, http.MethodDelete, a.listingURL(listingID), nil, nil)
	if err == nil {
		return nil
	}
	// A SKU that no longer exists is already ended.
	var me *marketplace.Error
	if errors.As(err, &me) && me.Class == marketplace.ClassValidationRejected && strings.Contains(me.Detail, "404") {
		return nil
	}
	return err
}

func (a *Adapter) UpdatePrice(ctx context.Context, listingID string, newPrice float64) error {
	body := map[string]interface{}{
		"productType": a.cfg.ProductType,
		"patches": []map[string]interface{}{
			{
				"op":   "replace",
				"path": "/attributes/purchasable_offer",
				"value": []map[string]interface{}{
					{
						"marketplace_id": a.cfg.MarketplaceID,
						"currency":       "USD",
						"our_price": []map[string]interface{}{
							{"schedule": []map[string]interface{}{{"value_with_tax": newPrice}}},
						},
					},
				},
			},
		},
	}
	return a.do(ctx, marketplace.OpUpdatePrice, http.MethodPatch, a.listingURL(listingID), body, nil)
}

func (a *Adapter) GetStatus(ctx context.Context, listingID string) (entity.RemoteStatus, error) {
	var resp struct {
		Summaries []struct {
			Status []string `json:"status"`
		} `json:"summaries"`
		FulfillmentAvailability []struct {
			Quantity int `json:"quantity"`
		} `json:"fulfillmentAvailability"`
	}
	getURL := a.listingURL(listingID) + "&includedData=summaries,fulfillmentAvailability"
	err := a.do(ctx, marketplace.OpGetStatus, http.MethodGet, getURL, nil, &resp)
	if err != nil {
		var me *marketplace.Error
		if errors.As(err, &me) && me.Class == marketplace.ClassValidationRejected && strings.Contains(me.Detail, "404") {
			return entity.RemoteEnded, nil
		}
		return entity.RemoteUnknown, err
	}

	if len(resp.Summaries) == 0 {
		return entity.RemoteEnded, nil
	}
	for _, f := range resp.FulfillmentAvailability {
		if f.Quantity == 0 {
			return entity.RemoteSold, nil
		}
	}
	for _, status := range resp.Summaries[0].Status {
		if status == "BUYABLE" || status == "DISCOVERABLE" {
			return entity.RemoteActive, nil
		}
	}
	return entity.RemoteUnknown, nil
}

func (a *Adapter) do(ctx context.Context, operation, method, rawURL string, body, out interface{}) error {
	token, err := a.accessTokenFor(ctx, operation)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return marketplace.NewError(a.Platform(), operation, marketplace.ClassUnknown, "failed to encode request body", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return marketplace.NewError(a.Platform(), operation, marketplace.ClassUnknown, "failed to build request", err)
	}
	req.Header.Set("x-amz-access-token", token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return marketplace.NewError(a.Platform(), operation, marketplace.ClassTransient, "request timed out", err)
		}
		return marketplace.NewError(a.Platform(), operation, marketplace.ClassTransient, "request failed", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return marketplace.NewError(a.Platform(), operation, marketplace.ClassUnknown, "failed to decode response", err)
			}
		}
		return nil
	}

	detail := fmt.Sprintf("%d: %s", resp.StatusCode, truncate(string(raw), 400))
	class := classify(resp.StatusCode)
	if class == marketplace.ClassAuthExpired {
		a.invalidateToken()
	}
	return marketplace.NewError(a.Platform(), operation, class, detail, nil)
}

// accessTokenFor exchanges the LWA refresh token for an access token, cached
// until shortly before expiry.
func (a *Adapter) accessTokenFor(ctx context.Context, operation string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry.Add(-tokenExpiryMargin)) {
		return a.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", a.cfg.RefreshToken)
	form.Set("client_id", a.cfg.ClientID)
	form.Set("client_secret", a.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", marketplace.NewError(a.Platform(), operation, marketplace.ClassUnknown, "failed to build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.http.Do(req)
	if err != nil {
		return "", marketplace.NewError(a.Platform(), operation, marketplace.ClassTransient, "token request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", marketplace.NewError(a.Platform(), operation, marketplace.ClassAuthExpired,
			fmt.Sprintf("token request rejected: %d: %s", resp.StatusCode, truncate(string(raw), 200)), nil)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", marketplace.NewError(a.Platform(), operation, marketplace.ClassUnknown, "failed to decode token response", err)
	}
	if tokenResp.ExpiresIn == 0 {
		tokenResp.ExpiresIn = 3600
	}

	a.accessToken = tokenResp.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	return a.accessToken, nil
}

func (a *Adapter) invalidateToken() {
	a.mu.Lock()
	a.accessToken = ""
	a.mu.Unlock()
}

func classify(statusCode int) marketplace.ErrorClass {
	switch {
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return marketplace.ClassAuthExpired
	case statusCode == http.StatusBadRequest, statusCode == http.StatusUnprocessableEntity,
		statusCode == http.StatusNotFound, statusCode == http.StatusConflict:
		return marketplace.ClassValidationRejected
	case statusCode == http.StatusRequestTimeout, statusCode == http.StatusTooManyRequests, statusCode >= 500:
		return marketplace.ClassTransient
	default:
		return marketplace.ClassUnknown
	}
}

func mapCondition(c entity.Condition) string {
	switch c {
	case entity.ConditionNew:
		return "new_new"
	case entity.ConditionLikeNew:
		return "used_like_new"
	case entity.ConditionExcellent:
		return "used_very_good"
	case entity.ConditionGood:
		return "used_good"
	default:
		return "used_acceptable"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
