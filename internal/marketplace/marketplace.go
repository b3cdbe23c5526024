package marketplace

import (
	"context"

	"github.com/automarket/consignment-service/internal/domain/entity"
)

// ListingRef identifies a live offer created on one marketplace.
type ListingRef struct {
	ListingID  string
	ListingURL string
}

// Adapter is the capability contract one marketplace exposes to the
// orchestrator. Implementations own their credential/session lifecycle and may
// perform several remote round-trips per call; the orchestrator only consumes
// the outcome and the normalized error class.
//
// EndListing must treat "already ended" and "not found" as success.
type Adapter interface {
	Platform() entity.Platform
	CreateListing(ctx context.Context, item *entity.Item) (*ListingRef, error)
	EndListing(ctx context.Context, listingID string) error
	UpdatePrice(ctx context.Context, listingID string, newPrice float64) error
	GetStatus(ctx context.Context, listingID string) (entity.RemoteStatus, error)
}
