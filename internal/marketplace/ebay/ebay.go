package ebay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/automarket/consignment-service/internal/domain/entity"
	"github.com/automarket/consignment-service/internal/marketplace"
	"github.com/automarket/consignment-service/internal/platform/logger"
)

const (
	marketplaceID     = "EBAY_US"
	tokenExpiryMargin = 5 * time.Minute
)

type Config struct {
	BaseURL       string
	TokenURL      string
	ClientID      string
	ClientSecret  string
	FulfillmentID string
	PaymentID     string
	ReturnID      string
	LocationKey   string
	CategoryID    string
}

// Adapter drives the eBay Sell Inventory API: create-inventory-item, then
// create-offer, then publish. The offer id is the platform listing id the
// orchestrator tracks.
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
		return nil, errors.New("ebay base URL and token URL must be configured")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("ebay client credentials must be configured")
	}
	return &Adapter{
		cfg:  cfg,
		http: &http.Client{},
		log:  log,
	}, nil
}

func (a *Adapter) Platform() entity.Platform {
	return entity.PlatformEbay
}

type offerPayload struct {
	SKU              string            `json:"sku"`
	MarketplaceID    string            `json:"marketplaceId"`
	Format           string            `json:"format"`
	AvailableQty     int               `json:"availableQuantity"`
	CategoryID       string            `json:"categoryId"`
	ListingPolicies  map[string]string `json:"listingPolicies"`
	MerchantLocation string            `json:"merchantLocationKey"`
	PricingSummary   struct {
		Price struct {
			Value    string `json:"value"`
			Currency string `json:"currency"`
		} `json:"price"`
	} `json:"pricingSummary"`
}

func (a *Adapter) CreateListing(ctx context.Context, item *entity.Item) (*marketplace.ListingRef, error) {
	sku := fmt.Sprintf("AUTO-%s-%s", item.ID, uuid.NewString()[:8])

	inventory := map[string]interface{}{
		"availability": map[string]interface{}{
			"shipToLocationAvailability": map[string]int{"quantity": 1},
		},
		"condition": mapCondition(item.Condition),
		"product": map[string]interface{}{
			"title":       item.Title,
			"description": formatDescription(item),
		},
	}
	invURL := fmt.Sprintf("%s/sell/inventory/v1/inventory_item/%s?marketplaceId=%s", a.cfg.BaseURL, url.PathEscape(sku), marketplaceID)
	if err := a.do(ctx, marketplace.OpCreateListing, http.MethodPut, invURL, inventory, nil); err != nil {
		return nil, err
	}

	offer := offerPayload{
		SKU:           sku,
		MarketplaceID: marketplaceID,
		Format:        "FIXED_PRICE",
		AvailableQty:  1,
		CategoryID:    a.cfg.CategoryID,
		ListingPolicies: map[string]string{
			"fulfillmentPolicyId": a.cfg.FulfillmentID,
			"paymentPolicyId":     a.cfg.PaymentID,
			"returnPolicyId":      a.cfg.ReturnID,
		},
		MerchantLocation: a.cfg.LocationKey,
	}
	offer.PricingSummary.Price.Value = fmt.Sprintf("%.2f", item.ListingPrice())
	offer.PricingSummary.Price.Currency = "USD"

	var offerResp struct {
		OfferID string `json:"offerId"`
	}
	offerURL := fmt.Sprintf("%s/sell/inventory/v1/offer?marketplaceId=%s", a.cfg.BaseURL, marketplaceID)
	if err := a.do(ctx, marketplace.OpCreateListing, http.MethodPost, offerURL, offer, &offerResp); err != nil {
		return nil, err
	}
	if offerResp.OfferID == "" {
		return nil, marketplace.NewError(a.Platform(), marketplace.OpCreateListing, marketplace.ClassUnknown, "no offer id returned", nil)
	}

	var publishResp struct {
		ListingID string `json:"listingId"`
	}
	publishURL := fmt.Sprintf("%s/sell/inventory/v1/offer/%s/publish", a.cfg.BaseURL, url.PathEscape(offerResp.OfferID))
	if err := a.do(ctx, marketplace.OpCreateListing, http.MethodPost, publishURL, struct{}{}, &publishResp); err != nil {
		return nil, err
	}
	if publishResp.ListingID == "" {
		return nil, marketplace.NewError(a.Platform(), marketplace.OpCreateListing, marketplace.ClassUnknown, "offer published but no listing id returned", nil)
	}

	a.log.Infof("eBay listing published: offer=%s listing=%s sku=%s", offerResp.OfferID, publishResp.ListingID, sku)
	return &marketplace.ListingRef{
		ListingID:  offerResp.OfferID,
		ListingURL: fmt.Sprintf("https://www.ebay.com/itm/%s", publishResp.ListingID),
	}, nil
}

func (a *Adapter) EndListing(ctx context.Context, listingID string) error {
	withdrawURL := fmt.Sprintf("%s/sell/inventory/v1/offer/%s/withdraw", a.cfg.BaseURL, url.PathEscape(listingID))
	err := a.do(ctx, marketplace.OpEndListing, http.MethodPost, withdrawURL, struct{}{}, nil)
	if err == nil {
		return nil
	}
	// An offer that is gone or already withdrawn counts as ended.
	var me *marketplace.Error
	if errors.As(err, &me) && me.Class == marketplace.ClassValidationRejected {
		if strings.Contains(me.Detail, "404") || strings.Contains(strings.ToLower(me.Detail), "not found") || strings.Contains(strings.ToLower(me.Detail), "already") {
			return nil
		}
	}
	return err
}

func (a *Adapter) UpdatePrice(ctx context.Context, listingID string, newPrice float64) error {
	body := map[string]interface{}{
		"pricingSummary": map[string]interface{}{
			"price": map[string]string{
				"value":    fmt.Sprintf("%.2f", newPrice),
				"currency": "USD",
			},
		},
	}
	offerURL := fmt.Sprintf("%s/sell/inventory/v1/offer/%s", a.cfg.BaseURL, url.PathEscape(listingID))
	return a.do(ctx, marketplace.OpUpdatePrice, http.MethodPut, offerURL, body, nil)
}

func (a *Adapter) GetStatus(ctx context.Context, listingID string) (entity.RemoteStatus, error) {
	var resp struct {
		Status    string `json:"status"`
		Available int    `json:"availableQuantity"`
	}
	offerURL := fmt.Sprintf("%s/sell/inventory/v1/offer/%s", a.cfg.BaseURL, url.PathEscape(listingID))
	err := a.do(ctx, marketplace.OpGetStatus, http.MethodGet, offerURL, nil, &resp)
	if err != nil {
		var me *marketplace.Error
		if errors.As(err, &me) && me.Class == marketplace.ClassValidationRejected && strings.Contains(me.Detail, "404") {
			return entity.RemoteEnded, nil
		}
		return entity.RemoteUnknown, err
	}
	switch resp.Status {
	case "PUBLISHED":
		if resp.Available == 0 {
			return entity.RemoteSold, nil
		}
		return entity.RemoteActive, nil
	case "UNPUBLISHED", "ENDED":
		return entity.RemoteEnded, nil
	default:
		return entity.RemoteUnknown, nil
	}
}

// do issues one authenticated JSON round-trip and normalizes failures into
// marketplace error classes.
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
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Language", "en-US")

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

func (a *Adapter) accessTokenFor(ctx context.Context, operation string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry.Add(-tokenExpiryMargin)) {
		return a.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "https://api.ebay.com/oauth/api_scope/sell.inventory")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", marketplace.NewError(a.Platform(), operation, marketplace.ClassUnknown, "failed to build token request", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(a.cfg.ClientID + ":" + a.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
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
		tokenResp.ExpiresIn = 7200
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
	case statusCode == http.StatusUnauthorized:
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
		return "NEW"
	case entity.ConditionLikeNew:
		return "LIKE_NEW"
	case entity.ConditionExcellent, entity.ConditionGood:
		return "USED_EXCELLENT"
	default:
		return "USED_ACCEPTABLE"
	}
}

func formatDescription(item *entity.Item) string {
	desc := item.Description
	if item.Defects != "" {
		desc += "\n\nCondition Notes: " + item.Defects
	}
	return desc
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
