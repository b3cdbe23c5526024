package repository

import (
	"context"
	"time"

	"github.com/automarket/consignment-service/internal/domain/entity"
)

// PlatformStatusSnapshot is the cached per-marketplace view served to status
// queries without touching the item store.
type PlatformStatusSnapshot struct {
	Listed            bool                `json:"listed"`
	ListingID         string              `json:"listing_id,omitempty"`
	ListingURL        string              `json:"listing_url,omitempty"`
	RemoteStatus      entity.RemoteStatus `json:"remote_status,omitempty"`
	NeedsManualUnlist bool                `json:"needs_manual_unlist,omitempty"`
	LastSyncedAt      time.Time           `json:"last_synced_at,omitempty"`
}

type ListingStatusSnapshot struct {
	ItemID    string                                     `json:"item_id"`
	Title     string                                     `json:"title"`
	Status    entity.ItemStatus                          `json:"status"`
	Platforms map[entity.Platform]PlatformStatusSnapshot `json:"platforms"`
	UpdatedAt time.Time                                  `json:"updated_at"`
}

type ListingStatusCache interface {
	Get(ctx context.Context, itemID string) (*ListingStatusSnapshot, error)
	Set(ctx context.Context, snapshot *ListingStatusSnapshot, ttl time.Duration) error
	Delete(ctx context.Context, itemID string) error
}
