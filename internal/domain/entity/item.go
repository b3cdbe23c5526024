package entity

import (
	"errors"
	"fmt"
	"time"
)

type ItemStatus string

const (
	StatusPending       ItemStatus = "PENDING"
	StatusApproved      ItemStatus = "APPROVED"
	StatusListed        ItemStatus = "LISTED"
	StatusListedPartial ItemStatus = "LISTED_PARTIAL"
	StatusListFailed    ItemStatus = "LIST_FAILED"
	StatusSoldEbay      ItemStatus = "SOLD_EBAY"
	StatusSoldAmazon    ItemStatus = "SOLD_AMAZON"
	StatusRejected      ItemStatus = "REJECTED"
	StatusRemoved       ItemStatus = "REMOVED"
)

func ParseItemStatus(s string) (ItemStatus, error) {
	switch ItemStatus(s) {
	case StatusPending, StatusApproved, StatusListed, StatusListedPartial,
		StatusListFailed, StatusSoldEbay, StatusSoldAmazon, StatusRejected, StatusRemoved:
		return ItemStatus(s), nil
	default:
		return "", fmt.Errorf("unknown item status %q", s)
	}
}

type Platform string

const (
	PlatformEbay   Platform = "EBAY"
	PlatformAmazon Platform = "AMAZON"
)

// Platforms lists every marketplace an item can be offered on.
var Platforms = []Platform{PlatformEbay, PlatformAmazon}

func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case PlatformEbay:
		return PlatformEbay, nil
	case PlatformAmazon:
		return PlatformAmazon, nil
	default:
		return "", fmt.Errorf("unknown platform %q", s)
	}
}

// Other returns the sibling marketplace.
func (p Platform) Other() Platform {
	if p == PlatformEbay {
		return PlatformAmazon
	}
	return PlatformEbay
}

// SoldStatus maps a selling platform to its terminal lifecycle status.
func (p Platform) SoldStatus() ItemStatus {
	if p == PlatformEbay {
		return StatusSoldEbay
	}
	return StatusSoldAmazon
}

// RemoteStatus is the status a marketplace reports for one of its listings.
type RemoteStatus string

const (
	RemoteActive  RemoteStatus = "ACTIVE"
	RemoteEnded   RemoteStatus = "ENDED"
	RemoteSold    RemoteStatus = "SOLD"
	RemoteUnknown RemoteStatus = "UNKNOWN"
)

type Condition string

const (
	ConditionNew       Condition = "NEW"
	ConditionLikeNew   Condition = "LIKE_NEW"
	ConditionExcellent Condition = "EXCELLENT"
	ConditionGood      Condition = "GOOD"
	ConditionFair      Condition = "FAIR"
	ConditionPoor      Condition = "POOR"
)

func ParseCondition(s string) (Condition, error) {
	switch Condition(s) {
	case ConditionNew, ConditionLikeNew, ConditionExcellent, ConditionGood, ConditionFair, ConditionPoor:
		return Condition(s), nil
	default:
		return "", fmt.Errorf("unknown condition %q", s)
	}
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// PlatformListing is the per-marketplace sub-record of an item. An absent
// sub-record means the item is not offered on that platform.
type PlatformListing struct {
	ListingID             string       `bson:"listing_id"`
	ListingURL            string       `bson:"listing_url,omitempty"`
	LastSyncedAt          time.Time    `bson:"last_synced_at"`
	LastKnownRemoteStatus RemoteStatus `bson:"last_known_remote_status,omitempty"`
	NeedsManualUnlist     bool         `bson:"needs_manual_unlist,omitempty"`
}

type Item struct {
	ID          string    `bson:"_id,omitempty"`
	Title       string    `bson:"title"`
	Description string    `bson:"description"`
	Condition   Condition `bson:"condition"`
	Defects     string    `bson:"defects,omitempty"`

	EstimatedPrice float64    `bson:"estimated_price"`
	MinPriceRange  float64    `bson:"min_price_range"`
	MaxPriceRange  float64    `bson:"max_price_range"`
	Confidence     Confidence `bson:"confidence"`

	FinalPrice      *float64   `bson:"final_price,omitempty"`
	Status          ItemStatus `bson:"status"`
	RejectionReason string     `bson:"rejection_reason,omitempty"`

	Listings map[Platform]*PlatformListing `bson:"listings,omitempty"`

	SoldPlatform *Platform  `bson:"sold_platform,omitempty"`
	SoldPrice    *float64   `bson:"sold_price,omitempty"`
	SoldAt       *time.Time `bson:"sold_at,omitempty"`

	ArchivedAt *time.Time `bson:"archived_at,omitempty"`
	CreatedAt  time.Time  `bson:"created_at"`
	UpdatedAt  time.Time  `bson:"updated_at"`
	Version    int        `bson:"version"`
}

func NewItem(title, description string, condition Condition, defects string) (*Item, error) {
	if title == "" {
		return nil, errors.New("item title cannot be empty")
	}
	if description == "" {
		return nil, errors.New("item description cannot be empty")
	}
	if _, err := ParseCondition(string(condition)); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Item{
		Title:       title,
		Description: description,
		Condition:   condition,
		Defects:     defects,
		Confidence:  ConfidenceMedium,
		Status:      StatusPending,
		Listings:    make(map[Platform]*PlatformListing),
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}, nil
}

// validTransitions is the closed lifecycle transition table. Listing directly
// from REJECTED or REMOVED is allowed and behaves exactly like listing an
// approved item.
var validTransitions = map[ItemStatus][]ItemStatus{
	StatusPending:       {StatusApproved, StatusRejected},
	StatusApproved:      {StatusListed, StatusListedPartial, StatusListFailed, StatusRejected},
	StatusListFailed:    {StatusListed, StatusListedPartial, StatusListFailed, StatusApproved},
	StatusListed:        {StatusListedPartial, StatusSoldEbay, StatusSoldAmazon, StatusRemoved},
	StatusListedPartial: {StatusSoldEbay, StatusSoldAmazon, StatusRemoved},
	StatusRejected:      {StatusApproved, StatusListed, StatusListedPartial, StatusListFailed},
	StatusRemoved:       {StatusApproved, StatusListed, StatusListedPartial, StatusListFailed},
	StatusSoldEbay:      {},
	StatusSoldAmazon:    {},
}

func (i *Item) CanTransitionTo(newStatus ItemStatus) bool {
	if i.Status == newStatus {
		return true
	}
	for _, s := range validTransitions[i.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo applies a lifecycle transition, rejecting anything outside the
// transition table. The version guard is owned by the repository, not here.
func (i *Item) TransitionTo(newStatus ItemStatus) error {
	if !i.CanTransitionTo(newStatus) {
		return fmt.Errorf("invalid lifecycle transition from %s to %s", i.Status, newStatus)
	}
	i.Status = newStatus
	i.UpdatedAt = time.Now().UTC()
	if i.IsTerminal() && i.ArchivedAt == nil {
		now := time.Now().UTC()
		i.ArchivedAt = &now
	}
	return nil
}

func (i *Item) IsTerminal() bool {
	switch i.Status {
	case StatusSoldEbay, StatusSoldAmazon, StatusRejected, StatusRemoved:
		return true
	default:
		return false
	}
}

func (i *Item) IsSold() bool {
	return i.Status == StatusSoldEbay || i.Status == StatusSoldAmazon
}

// Listing returns the sub-record for a platform, or nil if the item is not
// offered there.
func (i *Item) Listing(p Platform) *PlatformListing {
	if i.Listings == nil {
		return nil
	}
	return i.Listings[p]
}

func (i *Item) SetListing(p Platform, listingID, listingURL string) {
	if i.Listings == nil {
		i.Listings = make(map[Platform]*PlatformListing)
	}
	i.Listings[p] = &PlatformListing{
		ListingID:             listingID,
		ListingURL:            listingURL,
		LastSyncedAt:          time.Now().UTC(),
		LastKnownRemoteStatus: RemoteActive,
	}
}

func (i *Item) ClearListing(p Platform) {
	if i.Listings != nil {
		delete(i.Listings, p)
	}
}

// LivePlatforms returns the platforms that currently carry a listing id, in
// stable order.
func (i *Item) LivePlatforms() []Platform {
	var out []Platform
	for _, p := range Platforms {
		if l := i.Listing(p); l != nil && l.ListingID != "" {
			out = append(out, p)
		}
	}
	return out
}

// NeedsManualUnlist reports whether any platform still carries a listing whose
// best-effort unlist failed.
func (i *Item) NeedsManualUnlist() bool {
	for _, p := range Platforms {
		if l := i.Listing(p); l != nil && l.NeedsManualUnlist {
			return true
		}
	}
	return false
}

// ListingPrice is the price offered to the marketplaces. FinalPrice is fixed
// before the first create-listing call; until then the valuation estimate
// stands in.
func (i *Item) ListingPrice() float64 {
	if i.FinalPrice != nil {
		return *i.FinalPrice
	}
	return i.EstimatedPrice
}

// MarkSoldOn records the sale locally: terminal sold status, sale attribution,
// and the selling platform's sub-record cleared. Ending the sibling listing is
// the orchestrator's follow-up and must never gate this mutation.
func (i *Item) MarkSoldOn(p Platform, price float64) error {
	if err := i.TransitionTo(p.SoldStatus()); err != nil {
		return err
	}
	now := time.Now().UTC()
	i.SoldPlatform = &p
	i.SoldPrice = &price
	i.SoldAt = &now
	i.ClearListing(p)
	return nil
}

// AggregateStatusFromListings recomputes LISTED/LISTED_PARTIAL/REMOVED from the
// surviving sub-records. Used by the reconciliation sweep after clearing dead
// listings; a no-op for terminal items.
func (i *Item) AggregateStatusFromListings() ItemStatus {
	if i.IsTerminal() {
		return i.Status
	}
	switch len(i.LivePlatforms()) {
	case len(Platforms):
		return StatusListed
	case 0:
		return StatusRemoved
	default:
		return StatusListedPartial
	}
}
