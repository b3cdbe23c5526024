package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	natsadapter "github.com/automarket/consignment-service/internal/adapter/nats"
	"github.com/automarket/consignment-service/internal/domain/entity"
	"github.com/automarket/consignment-service/internal/marketplace"
	"github.com/automarket/consignment-service/internal/platform/logger"
	"github.com/automarket/consignment-service/internal/repository"
)

const defaultStatusCacheTTL = 10 * time.Minute

// SaleNotifier receives best-effort operational notifications. Failures are
// logged and never affect command outcomes.
type SaleNotifier interface {
	NotifySold(ctx context.Context, item *entity.Item)
	NotifyManualUnlistNeeded(ctx context.Context, item *entity.Item, platform entity.Platform)
}

// CommandResult is the aggregate answer to one lifecycle command: the
// committed state plus every per-platform outcome, failed ones included.
type CommandResult struct {
	ItemID      string                `json:"item_id"`
	NewState    entity.ItemStatus     `json:"new_state"`
	PerPlatform []marketplace.Outcome `json:"per_platform,omitempty"`
	Errors      []string              `json:"errors,omitempty"`
}

func (r *CommandResult) addOutcome(out marketplace.Outcome) {
	r.PerPlatform = append(r.PerPlatform, out)
	if !out.Success {
		msg := fmt.Sprintf("%s: %s %s", out.Platform, out.Operation, out.ErrorClass)
		if out.ErrorDetail != "" {
			msg += ": " + out.ErrorDetail
		}
		r.Errors = append(r.Errors, msg)
	}
}

// Orchestrator owns every item lifecycle mutation. Commands for the same item
// are serialized through a per-item lock; the two platform calls inside one
// command run concurrently and their outcomes are joined before the single
// atomic commit.
type Orchestrator struct {
	repo      repository.ItemRepository
	adapters  map[entity.Platform]marketplace.Adapter
	cache     repository.ListingStatusCache
	publisher natsadapter.MessagePublisher
	notifier  SaleNotifier
	log       logger.Logger
	locks     *itemLocks
	cacheTTL  time.Duration
}

func NewOrchestrator(
	repo repository.ItemRepository,
	adapters []marketplace.Adapter,
	cache repository.ListingStatusCache,
	publisher natsadapter.MessagePublisher,
	notifier SaleNotifier,
	log logger.Logger,
) *Orchestrator {
	byPlatform := make(map[entity.Platform]marketplace.Adapter, len(adapters))
	for _, a := range adapters {
		byPlatform[a.Platform()] = a
	}
	return &Orchestrator{
		repo:      repo,
		adapters:  byPlatform,
		cache:     cache,
		publisher: publisher,
		notifier:  notifier,
		log:       log,
		locks:     newItemLocks(),
		cacheTTL:  defaultStatusCacheTTL,
	}
}

// SetCacheTTL overrides the status snapshot lifetime.
func (o *Orchestrator) SetCacheTTL(ttl time.Duration) {
	if ttl > 0 {
		o.cacheTTL = ttl
	}
}

// Approve moves a pending item (or a removed/rejected one being revived) into
// the APPROVED pool the lister works from.
func (o *Orchestrator) Approve(ctx context.Context, itemID string) (*CommandResult, error) {
	release := o.locks.Acquire(itemID)
	defer release()

	item, err := o.repo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if err := item.TransitionTo(entity.StatusApproved); err != nil {
		return nil, NewValidationError("cannot approve item %s: %v", itemID, err)
	}
	item.RejectionReason = ""
	if err := o.commit(ctx, item); err != nil {
		return nil, err
	}
	o.afterCommit(ctx, item, natsadapter.SubjectItemApproved)
	return &CommandResult{ItemID: item.ID, NewState: item.Status}, nil
}

func (o *Orchestrator) Reject(ctx context.Context, itemID, reason string) (*CommandResult, error) {
	release := o.locks.Acquire(itemID)
	defer release()

	item, err := o.repo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if err := item.TransitionTo(entity.StatusRejected); err != nil {
		return nil, NewValidationError("cannot reject item %s: %v", itemID, err)
	}
	item.RejectionReason = reason
	if err := o.commit(ctx, item); err != nil {
		return nil, err
	}
	o.afterCommit(ctx, item, natsadapter.SubjectItemRejected)
	return &CommandResult{ItemID: item.ID, NewState: item.Status}, nil
}

// List offers the item on both marketplaces at once. Both creates are issued
// concurrently; the aggregate state honestly reflects what happened: LISTED,
// LISTED_PARTIAL with exactly one live listing, or LIST_FAILED with none.
// A remote failure never leaves the record stuck: every combination of
// outcomes commits to a well-defined state and is reported to the caller.
func (o *Orchestrator) List(ctx context.Context, itemID string) (*CommandResult, error) {
	release := o.locks.Acquire(itemID)
	defer release()

	item, err := o.repo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !item.CanTransitionTo(entity.StatusListed) || item.Status == entity.StatusListed {
		return nil, NewValidationError("item %s cannot be listed from state %s", itemID, item.Status)
	}

	// The offered price is fixed before any create call goes out.
	if item.FinalPrice == nil {
		price := item.EstimatedPrice
		item.FinalPrice = &price
	}

	result := &CommandResult{ItemID: item.ID}
	outcomes := o.fanOut(ctx, entity.Platforms, func(p entity.Platform) marketplace.Outcome {
		ref, err := o.adapters[p].CreateListing(ctx, item)
		if err != nil {
			o.log.Errorf("create listing on %s failed for item %s: %v", p, itemID, err)
			return marketplace.FailureOutcome(p, marketplace.OpCreateListing, err)
		}
		return marketplace.CreatedOutcome(p, ref)
	})

	created := 0
	for _, out := range outcomes {
		result.addOutcome(out)
		if out.Success {
			item.SetListing(out.Platform, out.ListingID, out.ListingURL)
			created++
		}
	}

	var next entity.ItemStatus
	switch created {
	case len(entity.Platforms):
		next = entity.StatusListed
	case 0:
		next = entity.StatusListFailed
	default:
		next = entity.StatusListedPartial
	}
	if err := item.TransitionTo(next); err != nil {
		return nil, err
	}
	if err := o.commit(ctx, item); err != nil {
		return nil, err
	}
	o.afterCommit(ctx, item, natsadapter.SubjectItemListed)

	result.NewState = item.Status
	return result, nil
}

// Unlist ends every live listing best-effort and always lands in REMOVED. A
// failed end is flagged for manual unlisting so the reconciliation sweep has a
// deterministic signal to act on.
func (o *Orchestrator) Unlist(ctx context.Context, itemID string) (*CommandResult, error) {
	release := o.locks.Acquire(itemID)
	defer release()

	item, err := o.repo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !item.CanTransitionTo(entity.StatusRemoved) {
		return nil, NewValidationError("item %s cannot be unlisted from state %s", itemID, item.Status)
	}

	result := &CommandResult{ItemID: item.ID}
	live := item.LivePlatforms()
	outcomes := o.fanOut(ctx, live, func(p entity.Platform) marketplace.Outcome {
		if err := o.adapters[p].EndListing(ctx, item.Listing(p).ListingID); err != nil {
			o.log.Errorf("end listing on %s failed for item %s: %v", p, itemID, err)
			return marketplace.FailureOutcome(p, marketplace.OpEndListing, err)
		}
		return marketplace.SuccessOutcome(p, marketplace.OpEndListing)
	})

	var flagged []entity.Platform
	for _, out := range outcomes {
		result.addOutcome(out)
		if out.Success {
			item.ClearListing(out.Platform)
		} else {
			item.Listing(out.Platform).NeedsManualUnlist = true
			flagged = append(flagged, out.Platform)
		}
	}

	if err := item.TransitionTo(entity.StatusRemoved); err != nil {
		return nil, err
	}
	if err := o.commit(ctx, item); err != nil {
		return nil, err
	}
	o.afterCommit(ctx, item, natsadapter.SubjectItemRemoved)
	o.reportManualUnlist(ctx, item, flagged)

	result.NewState = item.Status
	return result, nil
}

// MarkSold records a sale on one platform and removes the listing from the
// other. The sold state is committed before the cross-platform end-listing
// attempt: being sold must never depend on a second network call succeeding.
// If ending the sibling listing fails, the failure is recorded as a
// needs-manual-unlisting flag; the sold state is never reverted.
func (o *Orchestrator) MarkSold(ctx context.Context, itemID string, platform entity.Platform, price float64) (*CommandResult, error) {
	if price <= 0 {
		return nil, NewValidationError("sale price must be positive, got %.2f", price)
	}
	if _, ok := o.adapters[platform]; !ok {
		return nil, NewValidationError("unknown platform %q", platform)
	}

	release := o.locks.Acquire(itemID)
	defer release()

	item, err := o.repo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !item.CanTransitionTo(platform.SoldStatus()) {
		return nil, NewValidationError("item %s cannot be marked sold from state %s", itemID, item.Status)
	}

	return o.finalizeSale(ctx, item, platform, price)
}

// finalizeSale is the shared sold protocol used by explicit MarkSold commands
// and by sweep-detected external sales. Caller must hold the item lock.
func (o *Orchestrator) finalizeSale(ctx context.Context, item *entity.Item, platform entity.Platform, price float64) (*CommandResult, error) {
	if err := item.MarkSoldOn(platform, price); err != nil {
		return nil, NewValidationError("cannot mark item %s sold: %v", item.ID, err)
	}

	// First commit: the sale itself, before any cross-platform call.
	if err := o.commit(ctx, item); err != nil {
		return nil, err
	}
	o.afterCommit(ctx, item, natsadapter.SubjectItemSold)
	if o.notifier != nil {
		o.notifier.NotifySold(ctx, item)
	}

	result := &CommandResult{ItemID: item.ID, NewState: item.Status}

	other := platform.Other()
	listing := item.Listing(other)
	if listing == nil || listing.ListingID == "" {
		return result, nil
	}

	if err := o.adapters[other].EndListing(ctx, listing.ListingID); err != nil {
		o.log.Errorf("cross-platform unlist on %s failed for sold item %s: %v", other, item.ID, err)
		result.addOutcome(marketplace.FailureOutcome(other, marketplace.OpEndListing, err))
		listing.NeedsManualUnlist = true
		o.reportManualUnlist(ctx, item, []entity.Platform{other})
	} else {
		result.addOutcome(marketplace.SuccessOutcome(other, marketplace.OpEndListing))
		item.ClearListing(other)
	}

	// Second commit: the cross-platform cleanup result. A failure here only
	// delays convergence until the next sweep, never the sale.
	if err := o.commit(ctx, item); err != nil {
		o.log.Errorf("failed to persist cross-platform cleanup for sold item %s: %v", item.ID, err)
	} else {
		o.refreshStatusCache(ctx, item)
	}
	return result, nil
}

// Reprice commits the new internal price unconditionally and then pushes it to
// every platform with a live listing. Re-applying the current price skips the
// remote call but still refreshes the sync timestamp.
func (o *Orchestrator) Reprice(ctx context.Context, itemID string, price float64) (*CommandResult, error) {
	if price <= 0 {
		return nil, NewValidationError("price must be positive, got %.2f", price)
	}

	release := o.locks.Acquire(itemID)
	defer release()

	item, err := o.repo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	switch item.Status {
	case entity.StatusApproved, entity.StatusListFailed, entity.StatusListed, entity.StatusListedPartial:
	default:
		return nil, NewValidationError("item %s cannot be repriced in state %s", itemID, item.Status)
	}

	unchanged := item.FinalPrice != nil && *item.FinalPrice == price
	item.FinalPrice = &price

	result := &CommandResult{ItemID: item.ID}
	live := item.LivePlatforms()
	if len(live) > 0 && !unchanged {
		outcomes := o.fanOut(ctx, live, func(p entity.Platform) marketplace.Outcome {
			if err := o.adapters[p].UpdatePrice(ctx, item.Listing(p).ListingID, price); err != nil {
				o.log.Errorf("price update on %s failed for item %s: %v", p, itemID, err)
				return marketplace.FailureOutcome(p, marketplace.OpUpdatePrice, err)
			}
			return marketplace.SuccessOutcome(p, marketplace.OpUpdatePrice)
		})
		for _, out := range outcomes {
			result.addOutcome(out)
		}
	}
	now := time.Now().UTC()
	for _, p := range live {
		item.Listing(p).LastSyncedAt = now
	}

	// The internal price is committed even when every remote update failed;
	// the failures are in the result for the caller to act on.
	if err := o.commit(ctx, item); err != nil {
		return nil, err
	}
	o.afterCommit(ctx, item, natsadapter.SubjectItemRepriced)

	result.NewState = item.Status
	return result, nil
}

// Status serves the cached cross-platform snapshot, falling back to the item
// store on a miss.
func (o *Orchestrator) Status(ctx context.Context, itemID string) (*repository.ListingStatusSnapshot, error) {
	if snapshot, err := o.cache.Get(ctx, itemID); err == nil {
		return snapshot, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		o.log.Warnf("listing status cache read failed for item %s: %v", itemID, err)
	}

	item, err := o.repo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	snapshot := buildSnapshot(item)
	if err := o.cache.Set(ctx, snapshot, o.cacheTTL); err != nil {
		o.log.Warnf("listing status cache write failed for item %s: %v", itemID, err)
	}
	return snapshot, nil
}

// fanOut runs fn for each platform concurrently and returns outcomes in
// platform order. Total latency is bounded by the slowest call, not the sum.
func (o *Orchestrator) fanOut(ctx context.Context, platforms []entity.Platform, fn func(entity.Platform) marketplace.Outcome) []marketplace.Outcome {
	outcomes := make([]marketplace.Outcome, len(platforms))
	var wg sync.WaitGroup
	for i, p := range platforms {
		wg.Add(1)
		go func(i int, p entity.Platform) {
			defer wg.Done()
			outcomes[i] = fn(p)
		}(i, p)
	}
	wg.Wait()
	return outcomes
}

func (o *Orchestrator) commit(ctx context.Context, item *entity.Item) error {
	err := o.repo.CommitTransition(ctx, item)
	if errors.Is(err, repository.ErrOptimisticLock) {
		return fmt.Errorf("item %s: %w", item.ID, ErrConcurrencyConflict)
	}
	return err
}

func (o *Orchestrator) afterCommit(ctx context.Context, item *entity.Item, subject string) {
	o.refreshStatusCache(ctx, item)
	o.publishEvent(ctx, subject, item)
}

func (o *Orchestrator) refreshStatusCache(ctx context.Context, item *entity.Item) {
	if err := o.cache.Set(ctx, buildSnapshot(item), o.cacheTTL); err != nil {
		o.log.Warnf("failed to refresh listing status cache for item %s: %v", item.ID, err)
	}
}

type itemEventPayload struct {
	ItemID       string            `json:"item_id"`
	Status       entity.ItemStatus `json:"status"`
	Title        string            `json:"title"`
	FinalPrice   *float64          `json:"final_price,omitempty"`
	SoldPlatform *entity.Platform  `json:"sold_platform,omitempty"`
	SoldPrice    *float64          `json:"sold_price,omitempty"`
	Platform     *entity.Platform  `json:"platform,omitempty"`
}

func (o *Orchestrator) publishEvent(ctx context.Context, subject string, item *entity.Item) {
	payload := itemEventPayload{
		ItemID:       item.ID,
		Status:       item.Status,
		Title:        item.Title,
		FinalPrice:   item.FinalPrice,
		SoldPlatform: item.SoldPlatform,
		SoldPrice:    item.SoldPrice,
	}
	if err := o.publisher.Publish(ctx, subject, payload); err != nil {
		o.log.Warnf("failed to publish %s event for item %s: %v", subject, item.ID, err)
	}
}

func (o *Orchestrator) reportManualUnlist(ctx context.Context, item *entity.Item, platforms []entity.Platform) {
	for _, p := range platforms {
		payload := itemEventPayload{
			ItemID:   item.ID,
			Status:   item.Status,
			Title:    item.Title,
			Platform: &p,
		}
		if err := o.publisher.Publish(ctx, natsadapter.SubjectItemNeedsUnlist, payload); err != nil {
			o.log.Warnf("failed to publish %s event for item %s: %v", natsadapter.SubjectItemNeedsUnlist, item.ID, err)
		}
		if o.notifier != nil {
			o.notifier.NotifyManualUnlistNeeded(ctx, item, p)
		}
	}
}

func buildSnapshot(item *entity.Item) *repository.ListingStatusSnapshot {
	snapshot := &repository.ListingStatusSnapshot{
		ItemID:    item.ID,
		Title:     item.Title,
		Status:    item.Status,
		Platforms: make(map[entity.Platform]repository.PlatformStatusSnapshot, len(entity.Platforms)),
		UpdatedAt: item.UpdatedAt,
	}
	for _, p := range entity.Platforms {
		listing := item.Listing(p)
		if listing == nil {
			snapshot.Platforms[p] = repository.PlatformStatusSnapshot{}
			continue
		}
		snapshot.Platforms[p] = repository.PlatformStatusSnapshot{
			Listed:            listing.ListingID != "",
			ListingID:         listing.ListingID,
			ListingURL:        listing.ListingURL,
			RemoteStatus:      listing.LastKnownRemoteStatus,
			NeedsManualUnlist: listing.NeedsManualUnlist,
			LastSyncedAt:      listing.LastSyncedAt,
		}
	}
	return snapshot
}
