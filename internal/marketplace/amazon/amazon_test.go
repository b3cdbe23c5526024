package amazon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automarket/consignment-service/internal/domain/entity"
	"github.com/automarket/consignment-service/internal/marketplace"
	"github.com/automarket/consignment-service/internal/platform/logger"
)

func newFakeAmazon(t *testing.T, api http.HandlerFunc) *Adapter {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/o2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "lwa-token",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/", api)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	adapter, err := NewAdapter(Config{
		BaseURL:       srv.URL,
		TokenURL:      srv.URL + "/auth/o2/token",
		ClientID:      "client",
		ClientSecret:  "secret",
		RefreshToken:  "refresh",
		SellerID:      "SELLER1",
		MarketplaceID: "ATVPDKIKX0DER",
	}, logger.NoOp{})
	require.NoError(t, err)
	return adapter
}

func TestCreateListing_PutsListingItem(t *testing.T) {
	adapter := newFakeAmazon(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/listings/2021-08-01/items/SELLER1/AUTO-item-1", r.URL.Path)
		assert.Equal(t, "lwa-token", r.Header.Get("x-amz-access-token"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "PRODUCT", body["productType"])

		_ = json.NewEncoder(w).Encode(map[string]string{
			"sku":    "AUTO-item-1",
			"status": "ACCEPTED",
			"asin":   "B0TEST123",
		})
	})

	price := 59.99
	ref, err := adapter.CreateListing(context.Background(), &entity.Item{
		ID:         "item-1",
		Title:      "Mechanical keyboard",
		Condition:  entity.ConditionLikeNew,
		FinalPrice: &price,
	})

	require.NoError(t, err)
	assert.Equal(t, "AUTO-item-1", ref.ListingID)
	assert.Equal(t, "https://www.amazon.com/dp/B0TEST123", ref.ListingURL)
}

func TestCreateListing_InvalidSubmission(t *testing.T) {
	adapter := newFakeAmazon(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"sku": "AUTO-item-1", "status": "INVALID"})
	})

	_, err := adapter.CreateListing(context.Background(), &entity.Item{ID: "item-1", Condition: entity.ConditionGood})

	require.Error(t, err)
	assert.Equal(t, marketplace.ClassValidationRejected, marketplace.ClassOf(err))
}

func TestEndListing_MissingSKUIsSuccess(t *testing.T) {
	adapter := newFakeAmazon(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	})

	assert.NoError(t, adapter.EndListing(context.Background(), "AUTO-item-1"))
}

func TestGetStatus_Mapping(t *testing.T) {
	cases := []struct {
		name     string
		statuses []string
		quantity int
		want     entity.RemoteStatus
	}{
		{"buyable with stock", []string{"BUYABLE"}, 1, entity.RemoteActive},
		{"discoverable", []string{"DISCOVERABLE"}, 2, entity.RemoteActive},
		{"sold out", []string{"BUYABLE"}, 0, entity.RemoteSold},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			adapter := newFakeAmazon(t, func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"summaries": []map[string]interface{}{{"status": tc.statuses}},
					"fulfillmentAvailability": []map[string]interface{}{
						{"quantity": tc.quantity},
					},
				})
			})

			got, err := adapter.GetStatus(context.Background(), "AUTO-item-1")

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetStatus_NoSummariesMeansEnded(t *testing.T) {
	adapter := newFakeAmazon(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"summaries": []interface{}{}})
	})

	got, err := adapter.GetStatus(context.Background(), "AUTO-item-1")

	require.NoError(t, err)
	assert.Equal(t, entity.RemoteEnded, got)
}

func TestClassify_ForbiddenIsAuth(t *testing.T) {
	assert.Equal(t, marketplace.ClassAuthExpired, classify(http.StatusForbidden))
	assert.Equal(t, marketplace.ClassTransient, classify(http.StatusBadGateway))
	assert.Equal(t, marketplace.ClassValidationRejected, classify(http.StatusConflict))
}
