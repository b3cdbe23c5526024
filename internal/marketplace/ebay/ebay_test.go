package ebay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automarket/consignment-service/internal/domain/entity"
	"github.com/automarket/consignment-service/internal/marketplace"
	"github.com/automarket/consignment-service/internal/platform/logger"
)

func newFakeEbay(t *testing.T, api http.HandlerFunc) (*Adapter, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/identity/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-token",
			"expires_in":   7200,
		})
	})
	mux.HandleFunc("/", api)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	adapter, err := NewAdapter(Config{
		BaseURL:       srv.URL,
		TokenURL:      srv.URL + "/identity/v1/oauth2/token",
		ClientID:      "client",
		ClientSecret:  "secret",
		FulfillmentID: "fp-1",
		PaymentID:     "pp-1",
		ReturnID:      "rp-1",
		LocationKey:   "loc-1",
		CategoryID:    "6000",
	}, logger.NoOp{})
	require.NoError(t, err)
	return adapter, srv
}

func testItem() *entity.Item {
	price := 125.0
	return &entity.Item{
		ID:             "item-1",
		Title:          "Vintage camera",
		Description:    "Working Leica M3 body",
		Condition:      entity.ConditionGood,
		Defects:        "light scuffs",
		EstimatedPrice: 100,
		FinalPrice:     &price,
	}
}

func TestCreateListing_InventoryOfferPublishFlow(t *testing.T) {
	var steps []string
	adapter, _ := newFakeEbay(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/sell/inventory/v1/inventory_item/"):
			steps = append(steps, "inventory")
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			product := body["product"].(map[string]interface{})
			assert.Equal(t, "Vintage camera", product["title"])
			assert.Contains(t, product["description"], "Condition Notes: light scuffs")
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && r.URL.Path == "/sell/inventory/v1/offer":
			steps = append(steps, "offer")
			var offer offerPayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&offer))
			assert.Equal(t, "125.00", offer.PricingSummary.Price.Value)
			assert.Equal(t, "FIXED_PRICE", offer.Format)
			_ = json.NewEncoder(w).Encode(map[string]string{"offerId": "offer-42"})
		case r.Method == http.MethodPost && r.URL.Path == "/sell/inventory/v1/offer/offer-42/publish":
			steps = append(steps, "publish")
			_ = json.NewEncoder(w).Encode(map[string]string{"listingId": "110042"})
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	})

	ref, err := adapter.CreateListing(context.Background(), testItem())

	require.NoError(t, err)
	assert.Equal(t, "offer-42", ref.ListingID)
	assert.Equal(t, "https://www.ebay.com/itm/110042", ref.ListingURL)
	assert.Equal(t, []string{"inventory", "offer", "publish"}, steps)
}

func TestCreateListing_PublishRejectedIsValidationError(t *testing.T) {
	adapter, _ := newFakeEbay(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut:
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/sell/inventory/v1/offer":
			_ = json.NewEncoder(w).Encode(map[string]string{"offerId": "offer-42"})
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"errors":[{"message":"missing aspect"}]}`))
		}
	})

	_, err := adapter.CreateListing(context.Background(), testItem())

	require.Error(t, err)
	assert.Equal(t, marketplace.ClassValidationRejected, marketplace.ClassOf(err))
}

func TestEndListing_AlreadyGoneIsSuccess(t *testing.T) {
	adapter, _ := newFakeEbay(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":[{"message":"offer not found"}]}`))
	})

	err := adapter.EndListing(context.Background(), "offer-42")

	assert.NoError(t, err)
}

func TestGetStatus_Mapping(t *testing.T) {
	cases := []struct {
		name     string
		status   string
		qty      int
		httpCode int
		want     entity.RemoteStatus
	}{
		{"published with stock", "PUBLISHED", 1, http.StatusOK, entity.RemoteActive},
		{"published sold out", "PUBLISHED", 0, http.StatusOK, entity.RemoteSold},
		{"unpublished", "UNPUBLISHED", 0, http.StatusOK, entity.RemoteEnded},
		{"gone", "", 0, http.StatusNotFound, entity.RemoteEnded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			adapter, _ := newFakeEbay(t, func(w http.ResponseWriter, r *http.Request) {
				if tc.httpCode != http.StatusOK {
					w.WriteHeader(tc.httpCode)
					return
				}
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"status":            tc.status,
					"availableQuantity": tc.qty,
				})
			})

			got, err := adapter.GetStatus(context.Background(), "offer-42")

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExpiredTokenSurfacesAuthClass(t *testing.T) {
	adapter, _ := newFakeEbay(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := adapter.UpdatePrice(context.Background(), "offer-42", 99)

	require.Error(t, err)
	assert.Equal(t, marketplace.ClassAuthExpired, marketplace.ClassOf(err))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, marketplace.ClassAuthExpired, classify(http.StatusUnauthorized))
	assert.Equal(t, marketplace.ClassValidationRejected, classify(http.StatusBadRequest))
	assert.Equal(t, marketplace.ClassValidationRejected, classify(http.StatusUnprocessableEntity))
	assert.Equal(t, marketplace.ClassTransient, classify(http.StatusTooManyRequests))
	assert.Equal(t, marketplace.ClassTransient, classify(http.StatusServiceUnavailable))
	assert.Equal(t, marketplace.ClassUnknown, classify(http.StatusTeapot))
}
